package remoteconfig

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// CalculateHash8 返回 SHA256 Hex 字符串的前 8 位 (用于快照 Hash)。
func CalculateHash8(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:8]
}

// CanonicalPayload 返回 entries 的规范 JSON 编码：
// Key 升序、无空白、不做 HTML 转义。
func CanonicalPayload(entries map[string]string) []byte {
	if entries == nil {
		entries = map[string]string{}
	}
	// encoding/json 默认会对 map keys 进行排序，保证了 determinism。
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// map[string]string 不可能编码失败
	_ = enc.Encode(entries)
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
}
