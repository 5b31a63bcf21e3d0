package remoteconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

var (
	// ErrFetch 表示传输或解码失败，下一个 tick 会重试。
	ErrFetch = errors.New("config fetch failed")
	// ErrVerification 表示签名验证失败，可能存在完整性问题。
	ErrVerification = errors.New("config verification failed")
	ErrUnsigned     = fmt.Errorf("%w: missing key id or signature", ErrVerification)
	ErrKeyNotFound  = fmt.Errorf("%w: key not found", ErrVerification)
	ErrSignature    = fmt.Errorf("%w: signature mismatch", ErrVerification)
	// ErrPersist 表示配置已生效但未能写入 Store。
	ErrPersist = errors.New("config persist failed")
)

// Options 是 Cache 的可选依赖，零值字段使用默认实现。
type Options struct {
	Poller    Poller            // 默认 NewIntervalPoller(DefaultPollInterval)
	KeyStore  *KeyStore         // 默认空 KeyStore
	Verifier  Verifier          // 默认 ECDSAVerifier
	Bootstrap map[string]string // 任何 I/O 完成前对外提供的配置
	Logger    *slog.Logger      // 默认 slog.Default()
}

// Cache 是主要入口点：维护当前生效的配置，
// 只有验证通过的配置才会替换它并被持久化。
type Cache struct {
	fetcher  Fetcher
	store    Store
	poller   Poller
	keyStore *KeyStore
	verifier Verifier
	log      *slog.Logger

	snapshot atomic.Value // 存储 *snapshot
	initial  *snapshot
	ready    chan struct{}
	keyGroup singleflight.Group
	// 全局 ValueCache 减少反序列化开销
	// Key: snapshotSeq|key|type, Value: any
	valueCache sync.Map
}

// New 创建 Cache 并在后台加载 Store 中的缓存配置。
// New 不会阻塞在磁盘或网络上，加载完成前读到的是 Bootstrap 配置。
// store 为 nil 时不做持久化。
func New(fetcher Fetcher, store Store, opts Options) *Cache {
	if store == nil {
		store = nopStore{}
	}
	if opts.Poller == nil {
		opts.Poller = NewIntervalPoller(DefaultPollInterval)
	}
	if opts.KeyStore == nil {
		opts.KeyStore = NewKeyStore(nil)
	}
	if opts.Verifier == nil {
		opts.Verifier = ECDSAVerifier{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	c := &Cache{
		fetcher:  fetcher,
		store:    store,
		poller:   opts.Poller,
		keyStore: opts.KeyStore,
		verifier: opts.Verifier,
		log:      opts.Logger.With("component", "remoteconfig"),
		ready:    make(chan struct{}),
	}

	// 初始化快照
	c.initial = newSnapshot(ConfigModel{Entries: opts.Bootstrap})
	c.snapshot.Store(c.initial)

	go c.loadCached(context.Background())

	return c
}

// NewFromSettings 按 Settings 组装 Cache：HTTPFetcher 访问 Endpoint，
// FileStore 写入 CachePath，未指定 Poller 时按 PollInterval 轮询。
func NewFromSettings(s *Settings, opts Options) (*Cache, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	if opts.Poller == nil {
		opts.Poller = NewIntervalPoller(s.PollInterval)
	}
	path := s.CachePath
	if path == "" {
		path = DefaultCachePath()
	}
	return New(NewHTTPFetcher(s, nil), NewFileStore(path, opts.Logger), opts), nil
}

// Ready 在启动加载结束后关闭（无论是否成功）。
func (c *Cache) Ready() <-chan struct{} {
	return c.ready
}

// RefreshFromRemote 启动轮询，每个 tick 执行一次 Refresh。
func (c *Cache) RefreshFromRemote() {
	c.poller.Start(c.onTick)
}

// Close 停止轮询。正在进行的刷新会继续完成。
func (c *Cache) Close() {
	c.poller.Stop()
}

// Hash 返回当前配置 payload 的 Hash。
func (c *Cache) Hash() string {
	return c.current().hash
}

// KeyStore 返回 Cache 使用的 KeyStore。
func (c *Cache) KeyStore() *KeyStore {
	return c.keyStore
}

func (c *Cache) current() *snapshot {
	return c.snapshot.Load().(*snapshot)
}

// GetString 返回 key 对应的值，不存在时返回 fallback。
func (c *Cache) GetString(key, fallback string) string {
	if v, ok := c.current().model.Entries[key]; ok {
		return v
	}
	return fallback
}

// GetBool 返回 key 对应的布尔值，不存在或无法解析时返回 fallback。
func (c *Cache) GetBool(key string, fallback bool) bool {
	v, ok := c.current().model.Entries[key]
	if !ok {
		return fallback
	}
	if b, ok := ParseBool(v); ok {
		return b
	}
	return fallback
}

// GetNumber 返回 key 对应的数值，不存在或无法解析时返回 fallback。
func (c *Cache) GetNumber(key string, fallback float64) float64 {
	v, ok := c.current().model.Entries[key]
	if !ok {
		return fallback
	}
	if f, ok := ParseNumber(v); ok {
		return f
	}
	return fallback
}

// GetConfig 返回当前配置的副本。
func (c *Cache) GetConfig() map[string]string {
	return maps.Clone(c.current().model.Entries)
}

// GetJSON 把 key 对应的值按 JSON 反序列化为 T，不存在或失败时返回 fallback。
// 结果按快照缓存并在调用方之间共享，调用方不应修改返回的 map/slice。
func GetJSON[T any](c *Cache, key string, fallback T) T {
	ss := c.current()
	raw, ok := ss.model.Entries[key]
	if !ok {
		return fallback
	}

	typeKey := ss.cacheKey() + key + "|" + reflect.TypeOf((*T)(nil)).Elem().String()
	if cached, ok := c.valueCache.Load(typeKey); ok {
		// 接口类型的 T 解码 JSON null 后缓存的是 nil
		v, _ := cached.(T)
		return v
	}

	var val T
	if err := json.Unmarshal([]byte(raw), &val); err != nil {
		c.log.Debug("config value is not valid json", slog.String("key", key), "err", err)
		return fallback
	}
	c.valueCache.Store(typeKey, val)
	return val
}

// publish 发布新快照。old 非 nil 时仅当当前快照仍为 old 才替换。
func (c *Cache) publish(old *snapshot, model *ConfigModel) (*snapshot, bool) {
	ss := newSnapshot(*model)
	if old != nil {
		if !c.snapshot.CompareAndSwap(old, ss) {
			return nil, false
		}
	} else {
		c.snapshot.Store(ss)
	}

	// 清理 ValueCache (GC)
	// 移除不属于新快照的条目，防止内存泄漏
	c.valueCache.Range(func(key, _ any) bool {
		if k, ok := key.(string); ok && !strings.HasPrefix(k, ss.cacheKey()) {
			c.valueCache.Delete(key)
		}
		return true
	})
	return ss, true
}

type nopStore struct{}

func (nopStore) Load(context.Context) (*CachedRecord, error) { return nil, ErrNoCache }

func (nopStore) Save(context.Context, CachedRecord) error { return nil }
