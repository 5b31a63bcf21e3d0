package remoteconfig

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// fakeServer 模拟远端配置服务：/app/{appId}/config 和 /keys/{keyId}。
type fakeServer struct {
	t      testing.TB
	srv    *httptest.Server
	signer *testSigner
	appID  string
	apiKey string
	keyID  string

	mu          sync.Mutex
	body        []byte // body 字段的原始 JSON
	signature   string
	configCalls int
	keyCalls    int
	lastHeaders http.Header
}

func newFakeServer(t testing.TB, appID, subscriptionKey, keyID string) *fakeServer {
	fs := &fakeServer{
		t:      t,
		signer: newTestSigner(t),
		appID:  appID,
		apiKey: APIKeyPrefix + subscriptionKey,
		keyID:  keyID,
	}

	r := chi.NewRouter()
	r.Get("/app/{appId}/config", fs.handleConfig)
	r.Get("/keys/{keyId}", fs.handleKey)
	fs.srv = httptest.NewServer(r)
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) URL() string {
	return fs.srv.URL
}

// Publish 设置新的配置 body 并签名。
func (fs *fakeServer) Publish(entries map[string]string) {
	body := CanonicalPayload(entries)
	fs.PublishRaw(body, fs.signer.Sign(fs.t, body))
}

// PublishRaw 直接设置 body 原始字节和签名。
func (fs *fakeServer) PublishRaw(body []byte, signature string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.body = body
	fs.signature = signature
}

func (fs *fakeServer) ConfigCalls() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.configCalls
}

func (fs *fakeServer) KeyCalls() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.keyCalls
}

func (fs *fakeServer) LastHeaders() http.Header {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.lastHeaders.Clone()
}

func (fs *fakeServer) writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIError{Code: status, Message: msg})
}

func (fs *fakeServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	fs.configCalls++
	fs.lastHeaders = r.Header.Clone()
	body, signature := fs.body, fs.signature
	fs.mu.Unlock()

	if r.Header.Get(HeaderAPIKey) != fs.apiKey {
		fs.writeError(w, http.StatusUnauthorized, "invalid api key")
		return
	}
	if chi.URLParam(r, "appId") != fs.appID {
		fs.writeError(w, http.StatusNotFound, "app not found")
		return
	}
	if body == nil {
		fs.writeError(w, http.StatusNotFound, "no config published")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(HeaderSignature, signature)
	w.Header().Set(HeaderKeyID, fs.keyID)
	_, _ = w.Write([]byte(`{"body": `))
	_, _ = w.Write(body)
	_, _ = w.Write([]byte(`}`))
}

func (fs *fakeServer) handleKey(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	fs.keyCalls++
	fs.mu.Unlock()

	if r.Header.Get(HeaderAPIKey) != fs.apiKey {
		fs.writeError(w, http.StatusUnauthorized, "invalid api key")
		return
	}
	id := chi.URLParam(r, "keyId")
	if id != fs.keyID {
		fs.writeError(w, http.StatusNotFound, "key not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(KeyModel{ID: id, Key: fs.signer.PublicKey(fs.t)})
}
