package filesystem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SaveAndReadBlob(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	path, err := store.SaveBlob("invoice.pdf", []byte("%PDF-fake"))
	require.NoError(t, err)
	assert.Contains(t, path, "attachments/")
	assert.Contains(t, path, "invoice.pdf")

	content, err := store.ReadBlob(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-fake"), content)

	t.Run("同名附件不互相覆盖", func(t *testing.T) {
		other, err := store.SaveBlob("invoice.pdf", []byte("different"))
		require.NoError(t, err)
		assert.NotEqual(t, path, other)

		content, err := store.ReadBlob(path)
		require.NoError(t, err)
		assert.Equal(t, []byte("%PDF-fake"), content)
	})

	t.Run("删除后不可再读", func(t *testing.T) {
		require.NoError(t, store.DeleteBlob(path))
		_, err := store.ReadBlob(path)
		assert.Error(t, err)

		// 重复删除视为成功
		assert.NoError(t, store.DeleteBlob(path))
	})
}

func TestStore_PathTraversal(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	t.Run("读取拒绝越界路径", func(t *testing.T) {
		_, err := store.ReadBlob("../../etc/passwd")
		assert.Error(t, err)
	})

	t.Run("危险文件名被清洗", func(t *testing.T) {
		path, err := store.SaveBlob("../../../evil.sh", []byte("x"))
		require.NoError(t, err)
		assert.NotContains(t, path, "..")

		content, err := store.ReadBlob(path)
		require.NoError(t, err)
		assert.Equal(t, []byte("x"), content)
	})
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "report_final.pdf", sanitizeFilename("report final.pdf"))
	assert.Equal(t, "evil.sh", sanitizeFilename("../../evil.sh"))
	assert.Equal(t, "unnamed_file", sanitizeFilename(""))
	assert.Equal(t, "unnamed_file", sanitizeFilename(".."))
}
