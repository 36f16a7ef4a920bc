/*
 * @module service/utils/data_converter_test
 * @description 文本转换工具单元测试
 * @architecture 测试层 - 纯函数测试，无外部依赖
 * @refs data_converter.go
 */

package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeString(t *testing.T) {
	assert.Equal(t, "研发 中心", NormalizeString("  研发   中心 \n"))
	assert.Equal(t, "", NormalizeString("   "))
}

func TestNarrowString(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "全角手机号", input: "１３８１２３４５６７８", want: "13812345678"},
		{name: "全角工号", input: " ＥＭＰ００１ ", want: "EMP001"},
		{name: "中文保持不变", input: "张三", want: "张三"},
		{name: "半角保持不变", input: "abc123", want: "abc123"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NarrowString(tc.input))
		})
	}
}

func TestConvertEncoding(t *testing.T) {
	gbk, err := ConvertEncoding([]byte("离职人员"), "utf-8", "gbk")
	require.NoError(t, err)
	assert.NotEqual(t, []byte("离职人员"), gbk)

	utf8, err := ConvertEncoding(gbk, "GBK", "UTF-8")
	require.NoError(t, err)
	assert.Equal(t, "离职人员", string(utf8))

	same, err := ConvertEncoding([]byte("abc"), "utf-8", "utf-8")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(same))
}
