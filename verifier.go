package remoteconfig

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
)

// Verifier 校验 payload 上的签名。实现必须是纯函数，可并发调用。
type Verifier interface {
	Verify(signatureBase64 string, payload []byte, keyBase64 string) bool
}

// ECDSAVerifier 使用 P-256 + SHA-256 的 ECDSA 签名。
type ECDSAVerifier struct{}

// Verify 实现 Verifier。
func (ECDSAVerifier) Verify(signatureBase64 string, payload []byte, keyBase64 string) bool {
	return Verify(signatureBase64, payload, keyBase64)
}

// Verify 校验 signatureBase64 (ASN.1 DER) 是否为 keyBase64 对应私钥对 payload 的签名。
// 任何解码失败都返回 false。
func Verify(signatureBase64 string, payload []byte, keyBase64 string) bool {
	sig, err := base64.StdEncoding.DecodeString(signatureBase64)
	if err != nil || len(sig) == 0 {
		return false
	}
	pub, ok := parsePublicKey(keyBase64)
	if !ok {
		return false
	}
	digest := sha256.Sum256(payload)
	return ecdsa.VerifyASN1(pub, digest[:], sig)
}

// parsePublicKey 支持两种编码：未压缩点 (0x04||X||Y) 和 DER SubjectPublicKeyInfo。
func parsePublicKey(keyBase64 string) (*ecdsa.PublicKey, bool) {
	raw, err := base64.StdEncoding.DecodeString(keyBase64)
	if err != nil || len(raw) == 0 {
		return nil, false
	}
	if raw[0] == 0x04 {
		pub, err := ecdsa.ParseUncompressedPublicKey(elliptic.P256(), raw)
		if err != nil {
			return nil, false
		}
		return pub, true
	}
	parsed, err := x509.ParsePKIXPublicKey(raw)
	if err != nil {
		return nil, false
	}
	pub, ok := parsed.(*ecdsa.PublicKey)
	if !ok || pub.Curve != elliptic.P256() {
		return nil, false
	}
	return pub, true
}
