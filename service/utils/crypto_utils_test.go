/*
 * @module service/utils/crypto_utils_test
 * @description 加密工具函数单元测试
 * @architecture 测试层 - 纯函数测试，无外部依赖
 * @rules 确保加密解密的正确性和对存量明文的兼容
 * @dependencies testing, testify
 * @refs crypto_utils.go
 */

package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretCipher_RoundTrip(t *testing.T) {
	testCases := []struct {
		name      string
		plaintext string
	}{
		{name: "普通密钥", plaintext: "dingxxxxSecret123"},
		{name: "包含特殊字符", plaintext: "s3cr3t!@#$%^&*()"},
		{name: "包含中文", plaintext: "密钥123"},
		{name: "长密钥", plaintext: strings.Repeat("a", 512)},
	}

	c, err := NewSecretCipher("unit-test-key")
	require.NoError(t, err)
	require.True(t, c.Enabled())

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			encrypted, err := c.Encrypt(tc.plaintext)
			require.NoError(t, err)
			assert.True(t, IsEncrypted(encrypted))
			assert.NotContains(t, encrypted, tc.plaintext)

			decrypted, err := c.Decrypt(encrypted)
			require.NoError(t, err)
			assert.Equal(t, tc.plaintext, decrypted)
		})
	}
}

func TestSecretCipher_NonceIsRandom(t *testing.T) {
	c, err := NewSecretCipher("unit-test-key")
	require.NoError(t, err)

	a, err := c.Encrypt("same")
	require.NoError(t, err)
	b, err := c.Encrypt("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSecretCipher_Passthrough(t *testing.T) {
	disabled, err := NewSecretCipher("")
	require.NoError(t, err)
	assert.False(t, disabled.Enabled())

	value, err := disabled.Encrypt("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", value)

	// 存量明文可直接读取
	enabled, err := NewSecretCipher("k")
	require.NoError(t, err)
	value, err = enabled.Decrypt("legacy-plain")
	require.NoError(t, err)
	assert.Equal(t, "legacy-plain", value)

	// 已加密的值不会重复加密
	once, err := enabled.Encrypt("x")
	require.NoError(t, err)
	twice, err := enabled.Encrypt(once)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestSecretCipher_Errors(t *testing.T) {
	a, _ := NewSecretCipher("key-a")
	b, _ := NewSecretCipher("key-b")
	disabled, _ := NewSecretCipher("")

	encrypted, err := a.Encrypt("secret")
	require.NoError(t, err)

	_, err = b.Decrypt(encrypted)
	assert.Error(t, err, "错误的密钥不能解密")

	_, err = disabled.Decrypt(encrypted)
	assert.Error(t, err, "未配置密钥时不能解密")

	_, err = a.Decrypt(encryptedPrefix + "not-base64!")
	assert.Error(t, err)
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret(""))
	assert.Equal(t, "******", MaskSecret("abcdef"))
	assert.Equal(t, "ding****1234", MaskSecret("dingabcd1234"))
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "138****5678", MaskPhone("13812345678"))
	assert.Equal(t, "123", MaskPhone("123"))
	assert.Equal(t, "852***5678", MaskPhone("8521235678"))
}
