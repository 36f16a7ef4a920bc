/**
 * @module crypto_utils
 * @description 加密工具模块，负责钉钉 AppSecret 等敏感配置的加密存储与日志脱敏
 * @architecture 加密工具集模式，提供加解密和脱敏方法
 * @documentReference 参考 ai_docs/dingtalk_sync.md 配置章节
 * @stateFlow 无状态加密：明文 -> AES-GCM -> 带前缀的密文 / 密文 -> 解密 -> 明文
 * @rules
 *   - 密钥由 DINGTALK_SECRET_KEY 经 HKDF-SHA256 派生
 *   - 未带前缀的存量明文原样返回，保证老数据可读
 *   - 日志中只能出现脱敏后的密钥
 * @dependencies
 *   - crypto/aes, crypto/cipher: 加密算法
 *   - golang.org/x/crypto/hkdf: 密钥派生
 * @refs
 *   - service/dingtalk/dingtalk_sync/store.go: 配置存储
 */

package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// encryptedPrefix 加密值前缀
const encryptedPrefix = "enc:v1:"

const hkdfInfo = "dingtalk-sync-service/app-secret"

// SecretCipher 敏感配置加解密器，key 为空时不加密
type SecretCipher struct {
	aead cipher.AEAD
}

// NewSecretCipher 创建加解密器
func NewSecretCipher(key string) (*SecretCipher, error) {
	if key == "" {
		return &SecretCipher{}, nil
	}

	derived := make([]byte, 32)
	reader := hkdf.New(sha256.New, []byte(key), nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(reader, derived); err != nil {
		return nil, fmt.Errorf("派生密钥失败: %w", err)
	}

	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("创建AES块失败: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("创建GCM失败: %w", err)
	}

	return &SecretCipher{aead: aead}, nil
}

// Enabled 是否启用加密
func (c *SecretCipher) Enabled() bool {
	return c != nil && c.aead != nil
}

// Encrypt 加密明文，未启用加密或明文为空时原样返回
func (c *SecretCipher) Encrypt(plaintext string) (string, error) {
	if !c.Enabled() || plaintext == "" || IsEncrypted(plaintext) {
		return plaintext, nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("生成随机数失败: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return encryptedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt 解密密文，未加密的值原样返回
func (c *SecretCipher) Decrypt(value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}
	if !c.Enabled() {
		return "", fmt.Errorf("配置已加密，但未设置 DINGTALK_SECRET_KEY")
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, encryptedPrefix))
	if err != nil {
		return "", fmt.Errorf("解码base64失败: %w", err)
	}

	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("密文长度不足")
	}

	plaintext, err := c.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("解密失败: %w", err)
	}
	return string(plaintext), nil
}

// IsEncrypted 判断值是否为加密格式
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, encryptedPrefix)
}

// MaskSecret 密钥脱敏，保留前后各4位
func MaskSecret(secret string) string {
	runes := []rune(secret)
	if len(runes) <= 8 {
		return strings.Repeat("*", len(runes))
	}
	return string(runes[:4]) + strings.Repeat("*", len(runes)-8) + string(runes[len(runes)-4:])
}

// MaskPhone 手机号脱敏
func MaskPhone(phone string) string {
	if len(phone) == 11 {
		// 中国手机号格式：138****1234
		return phone[:3] + "****" + phone[7:]
	}
	if len(phone) > 7 {
		return phone[:3] + strings.Repeat("*", len(phone)-7) + phone[len(phone)-4:]
	}
	return phone
}
