package remoteconfig

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// 与 Android / iOS SDK 共用的签名测试向量
const (
	vectorPayload   = `{"testKey":"test_value"}`
	vectorSignature = "MEUCIQCHJfSffJ+yjuCAvH3HKprbSn3XqUtZm9a+6+w2GILfywIgOkpFyaPNyQReaylbuhegQpPS+uVDwczbUsKZtaHcSnw="
	vectorKey       = "BI2zZr56ghnMLXBMeC4bkIVg6zpFD2ICIS7V6cWo8p8LkibuershO+Hd5ru6oBFLlUk6IFFOIVfHKiOenHLBNIY="
)

const (
	testTimeout = 2 * time.Second
	testTick    = 5 * time.Millisecond
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testSigner 生成 P-256 密钥并对 payload 签名，模拟服务端。
type testSigner struct {
	priv *ecdsa.PrivateKey
}

func newTestSigner(t testing.TB) *testSigner {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return &testSigner{priv: priv}
}

// PublicKey 返回 base64 编码的未压缩公钥。
func (s *testSigner) PublicKey(t testing.TB) string {
	t.Helper()
	pub, err := s.priv.PublicKey.ECDH()
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(pub.Bytes())
}

func (s *testSigner) Sign(t testing.TB, payload []byte) string {
	t.Helper()
	digest := sha256.Sum256(payload)
	sig, err := ecdsa.SignASN1(rand.Reader, s.priv, digest[:])
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(sig)
}

// Model 返回一份已签名的配置。
func (s *testSigner) Model(t testing.TB, keyID string, entries map[string]string) *ConfigModel {
	t.Helper()
	payload := CanonicalPayload(entries)
	m, err := NewConfigModel(payload, keyID, s.Sign(t, payload))
	require.NoError(t, err)
	return m
}

// fakeFetcher 是可编程的 Fetcher。
type fakeFetcher struct {
	mu          sync.Mutex
	model       *ConfigModel
	configErr   error
	keys        map[string]*KeyModel
	configCalls int
	keyCalls    map[string]int

	// 可选：在 FetchKey / FetchConfig 返回前阻塞
	keyGate    chan struct{}
	configGate chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		keys:     make(map[string]*KeyModel),
		keyCalls: make(map[string]int),
	}
}

func (f *fakeFetcher) SetModel(m *ConfigModel, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.model = m
	f.configErr = err
}

func (f *fakeFetcher) SetKey(id string, km *KeyModel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[id] = km
}

func (f *fakeFetcher) ConfigCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.configCalls
}

func (f *fakeFetcher) KeyCalls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keyCalls[id]
}

func (f *fakeFetcher) FetchConfig(ctx context.Context) (*ConfigModel, error) {
	f.mu.Lock()
	f.configCalls++
	gate := f.configGate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.configErr != nil {
		return nil, f.configErr
	}
	if f.model == nil {
		return nil, errors.New("no config")
	}
	m := *f.model
	return &m, nil
}

func (f *fakeFetcher) FetchKey(ctx context.Context, keyID string) (*KeyModel, error) {
	f.mu.Lock()
	f.keyCalls[keyID]++
	gate := f.keyGate
	km, ok := f.keys[keyID]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if !ok {
		return nil, &APIError{Code: 404, Message: "key not found"}
	}
	return km, nil
}

// manualPoller 只在测试调用 Fire 时触发 tick。
type manualPoller struct {
	mu     sync.Mutex
	onTick func()
	stops  int
}

func (p *manualPoller) Start(onTick func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.onTick == nil {
		p.onTick = onTick
	}
}

func (p *manualPoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTick = nil
	p.stops++
}

// Fire 串行触发 n 次 tick。
func (p *manualPoller) Fire(n int) {
	for i := 0; i < n; i++ {
		p.mu.Lock()
		fn := p.onTick
		p.mu.Unlock()
		if fn == nil {
			return
		}
		fn()
	}
}

// memStore 是内存中的 Store，记录写入次数。
type memStore struct {
	mu      sync.Mutex
	rec     *CachedRecord
	loadErr error
	saveErr error
	saves   int
}

func (s *memStore) Load(ctx context.Context) (*CachedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if s.rec == nil {
		return nil, ErrNoCache
	}
	rec := *s.rec
	return &rec, nil
}

func (s *memStore) Save(ctx context.Context, rec CachedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.rec = &rec
	return nil
}

func (s *memStore) Record() *CachedRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil {
		return nil
	}
	rec := *s.rec
	return &rec
}

// waitReady 等待启动加载结束。
func waitReady(t testing.TB, c *Cache) {
	t.Helper()
	select {
	case <-c.Ready():
	case <-testContext(t).Done():
		t.Fatal("startup load did not finish")
	}
}

func testContext(t testing.TB) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
