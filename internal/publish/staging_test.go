package publish

import (
	"bytes"
	"mime/multipart"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStagePassesThroughNonLocal(t *testing.T) {
	dir := t.TempDir()
	for _, ref := range []string{"https://x/y.mp4", "relative.mp4", "/does/not/exist.mp4"} {
		got, err := stage(dir, ref)
		require.NoError(t, err)
		assert.Equal(t, ref, got)
	}
	got, err := stage("", "/etc/hostname")
	require.NoError(t, err)
	assert.Equal(t, "/etc/hostname", got)
}

func fileHeader(t *testing.T, name, body string) *multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, _ = part.Write([]byte(body))
	require.NoError(t, w.Close())
	req := httptest.NewRequest("POST", "/media/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))
	return req.MultipartForm.File["file"][0]
}

func TestMediaStoreSaveAndPath(t *testing.T) {
	m := NewMediaStore(t.TempDir())
	name, abs, err := m.Save(fileHeader(t, "Clip.MP4", "data"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(name, ".mp4"))
	assert.True(t, filepath.IsAbs(abs))

	p, err := m.Path(name)
	require.NoError(t, err)
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "data", string(b))
}

func TestMediaStoreRejectsTraversal(t *testing.T) {
	m := NewMediaStore(t.TempDir())
	for _, name := range []string{"", "../secret", "/etc/passwd", "a/b.mp4", `a\b.mp4`} {
		_, err := m.Path(name)
		assert.ErrorIs(t, err, ErrInvalidMediaName, name)
	}
	_, err := m.Path("missing.mp4")
	assert.True(t, os.IsNotExist(err))
}
