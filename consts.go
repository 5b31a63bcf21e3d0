package remoteconfig

import "time"

// prefix 目前使用的 Redis Key 前缀
var prefix = "remote-config:"

// SetPrefix 设置全局 Redis Key 前缀。
// 这应该在任何其他操作之前调用。
func SetPrefix(p string) {
	prefix = p
	if len(prefix) > 0 && prefix[len(prefix)-1] != ':' {
		prefix += ":"
	}
}

// Suffix defs
const (
	SuffixCache   = "cache:"   // 已验证配置记录
	SuffixHistory = "history:" // 提交历史
)

// Redis Key Helper

// KeyCache 返回已验证配置记录的 Redis Key。
// 该 Hash 存储 config / keyId / signature / hash 四个字段。
func KeyCache(name string) string {
	return prefix + SuffixCache + name
}

// KeyHistory 返回提交历史的 Redis Key。
// 该 List 存储 HistoryRecord JSON 字符串 (RPush)。
func KeyHistory(name string) string {
	return prefix + SuffixHistory + name
}

// CachedRecord 在 Redis Hash 中的字段名，与文件格式保持一致。
const (
	FieldConfig    = "config"
	FieldKeyID     = "keyId"
	FieldSignature = "signature"
	FieldHash      = "hash"
)

// HTTP 头
const (
	HeaderAPIKey     = "apiKey"
	HeaderSignature  = "Signature"
	HeaderKeyID      = "Key-Id"
	HeaderAppID      = "ras-app-id"
	HeaderAppName    = "ras-app-name"
	HeaderAppVersion = "ras-app-version"
	HeaderDevice     = "ras-device-model"
	HeaderOSVersion  = "ras-os-version"
	HeaderSDKName    = "ras-sdk-name"
	HeaderSDKVersion = "ras-sdk-version"

	// apiKey 头的值为 "ras-" + subscription key
	APIKeyPrefix = "ras-"
)

// 默认值
const (
	DefaultPollInterval   = time.Hour
	DefaultHTTPTimeout    = 30 * time.Second
	DefaultCacheFileName  = "rrc-config.json"
	DefaultSDKName        = "remote-config-go"
	DefaultHistoryMaxSize = 20
)
