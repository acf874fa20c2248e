package service

import (
	"bytes"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogPrefixer_Write(t *testing.T) {
	out := bytes.NewBuffer(nil)
	prefixer := NewLogPrefixer(out, "portraits-2024-september")

	n, err := prefixer.Write([]byte("Epoch 1/3 Step 1/5\n"))
	require.NoError(t, err)
	assert.Equal(t, 19, n)

	n, err = prefixer.Write([]byte("Epoch 1/3 Step 2/5\nEpoch 1/3 Step 3/5"))
	require.NoError(t, err)
	assert.Equal(t, 37, n)

	expected := "{portraits-2024-s...} Epoch 1/3 Step 1/5\n" +
		"{portraits-2024-s...} Epoch 1/3 Step 2/5\n" +
		"{portraits-2024-s...} Epoch 1/3 Step 3/5"
	assert.Equal(t, expected, out.String())
}

func TestLogPrefixer_prefixFor(t *testing.T) {
	assert.Equal(t, []byte("{catset} "), prefixFor("catset"))
	assert.Equal(t, []byte("{exactly-16-chars} "), prefixFor("exactly-16-chars"))
	assert.Equal(t, []byte("{seventeen-chars-...} "), prefixFor("seventeen-chars-xy"))

	t.Run("multibyte", func(t *testing.T) {
		assert.Equal(t, []byte("{котики-на-крыше} "), prefixFor("котики-на-крыше"), "15 runes, no cut")
		got := prefixFor("портреты-сентябрь-2024")
		assert.Equal(t, []byte("{портреты-сентябр...} "), got)
		assert.True(t, utf8.Valid(got))
		assert.True(t, utf8.Valid(prefixFor("日本語のデータセット名前がとても長い")))
	})
}
