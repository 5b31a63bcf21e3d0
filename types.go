package remoteconfig

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"sync/atomic"
)

// ConfigModel 是一份带签名的配置快照。
type ConfigModel struct {
	Entries   map[string]string // Key -> Value
	KeyID     string            // 签名所用公钥的 ID
	Signature string            // base64 签名
	// Raw 是服务端下发的 body 原始字节，签名覆盖的就是它。
	// 为空时退回 CanonicalPayload(Entries)。
	Raw []byte
}

// Payload 返回参与签名验证的字节。
func (m *ConfigModel) Payload() []byte {
	if len(m.Raw) > 0 {
		return m.Raw
	}
	return CanonicalPayload(m.Entries)
}

// Signed 报告 KeyID 和 Signature 是否都已赋值。
func (m *ConfigModel) Signed() bool {
	return m.KeyID != "" && m.Signature != ""
}

// NewConfigModel 从已序列化的 entries 构建模型。
// data 会被原样保留为 Raw。
func NewConfigModel(data []byte, keyID, signature string) (*ConfigModel, error) {
	var entries map[string]string
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("unmarshal entries failed: %w", err)
	}
	if entries == nil {
		entries = make(map[string]string)
	}
	return &ConfigModel{
		Entries:   entries,
		KeyID:     keyID,
		Signature: signature,
		Raw:       append([]byte(nil), data...),
	}, nil
}

// Record 返回模型的持久化形式。
func (m *ConfigModel) Record() CachedRecord {
	return CachedRecord{
		Config:    m.Payload(),
		KeyID:     m.KeyID,
		Signature: m.Signature,
	}
}

// KeyModel 是 /keys/{keyId} 的响应。
type KeyModel struct {
	ID  string `json:"id"`
	Key string `json:"key"` // base64 公钥
}

// CachedRecord 是最近一次验证通过的配置在磁盘上的镜像。
type CachedRecord struct {
	Config    []byte `json:"config"` // 序列化后的 entries，原样保存以便重新验签
	KeyID     string `json:"keyId"`
	Signature string `json:"signature"`
}

// Model 把持久化记录还原为 ConfigModel。
func (r *CachedRecord) Model() (*ConfigModel, error) {
	return NewConfigModel(r.Config, r.KeyID, r.Signature)
}

// APIError 是服务端非 2xx 响应的错误体。
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote config server error %d: %s", e.Code, e.Message)
}

// HistoryRecord 提交历史记录
type HistoryRecord struct {
	Hash      string `json:"hash"`
	KeyID     string `json:"key_id"`
	Timestamp int64  `json:"timestamp"`
}

// snapshotSeq 为每个快照分配唯一序号，ValueCache 按序号区分快照。
var snapshotSeq atomic.Uint64

// snapshot 是当前对读者可见的配置，一经发布不再修改。
type snapshot struct {
	model ConfigModel
	hash  string
	seq   uint64
}

// cacheKey 返回 ValueCache Key 的快照前缀。
func (s *snapshot) cacheKey() string {
	return strconv.FormatUint(s.seq, 10) + "|"
}

func newSnapshot(m ConfigModel) *snapshot {
	m.Entries = maps.Clone(m.Entries)
	if m.Entries == nil {
		m.Entries = make(map[string]string)
	}
	return &snapshot{
		model: m,
		hash:  CalculateHash8(m.Payload()),
		seq:   snapshotSeq.Add(1),
	}
}
