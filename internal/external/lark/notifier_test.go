package lark

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextContentEscapes(t *testing.T) {
	content, err := textContent("line with \"quotes\"\nand a newline")
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal([]byte(content), &decoded))
	assert.Equal(t, "line with \"quotes\"\nand a newline", decoded["text"])
}

func TestPostContentBuildsTitledBlock(t *testing.T) {
	content, err := postContent("Policy \"exfil\" triggered", "employee emp-1\nseverity high")
	require.NoError(t, err)

	var decoded struct {
		ZhCn struct {
			Title   string                `json:"title"`
			Content [][]map[string]string `json:"content"`
		} `json:"zh_cn"`
	}
	require.NoError(t, json.Unmarshal([]byte(content), &decoded))
	assert.Equal(t, "Policy \"exfil\" triggered", decoded.ZhCn.Title)
	require.Len(t, decoded.ZhCn.Content, 1)
	require.Len(t, decoded.ZhCn.Content[0], 1)
	assert.Equal(t, "text", decoded.ZhCn.Content[0][0]["tag"])
	assert.Equal(t, "employee emp-1\nseverity high", decoded.ZhCn.Content[0][0]["text"])
}
