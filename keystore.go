package remoteconfig

import "sync"

// KeyStore 是 keyId -> base64 公钥的内存映射。
// 只增不删：进程生命周期内一旦拿到的 key 一直可信，轮换 key 依赖服务端下发新的 keyId。
type KeyStore struct {
	mu   sync.RWMutex
	keys map[string]string
}

// NewKeyStore 创建 KeyStore，seed 可为 nil。
func NewKeyStore(seed map[string]string) *KeyStore {
	ks := &KeyStore{keys: make(map[string]string, len(seed))}
	for id, key := range seed {
		ks.keys[id] = key
	}
	return ks
}

// Key 返回 keyID 对应的公钥。
func (s *KeyStore) Key(keyID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[keyID]
	return key, ok
}

// AddKey 插入或覆盖 keyID 对应的公钥。
func (s *KeyStore) AddKey(key, keyID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[keyID] = key
}

// Len 返回已知 key 的数量。
func (s *KeyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}
