package upload

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 255, A: 255})
	}
	buf := new(bytes.Buffer)
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

func TestLocalUploaderPutImage(t *testing.T) {
	dir := t.TempDir()
	u, err := New(&Config{Provider: string(Local), LocalDir: dir})
	require.NoError(t, err)

	stored, err := u.Put(context.Background(), &File{
		Name:    "bank transfer.png",
		Mime:    "image/png",
		Content: pngBytes(t, 800, 600),
	}, "proofs/p1")
	require.NoError(t, err)

	assert.Equal(t, Local, stored.Provider)
	assert.Equal(t, ".png", stored.Ext)
	assert.Equal(t, int64(800), stored.Width)
	assert.Equal(t, int64(600), stored.Height)
	assert.True(t, strings.HasPrefix(stored.URL, "/uploads/proofs/p1/"))
	assert.NotContains(t, stored.URL, " ")
	assert.FileExists(t, stored.StoragePath)
	assert.FileExists(t, stored.ThumbnailStoragePath)

	thumb, err := os.ReadFile(stored.ThumbnailStoragePath)
	require.NoError(t, err)
	cfg, err := png.DecodeConfig(bytes.NewReader(thumb))
	require.NoError(t, err)
	assert.LessOrEqual(t, cfg.Width, DefaultThumbnailWidthInPx)
	assert.LessOrEqual(t, cfg.Height, DefaultThumbnailHeightInPx)

	link, err := u.PresignGet(context.Background(), stored.StoragePath, 0)
	require.NoError(t, err)
	assert.Equal(t, stored.URL, link)

	require.NoError(t, u.Remove(context.Background(), stored))
	assert.NoFileExists(t, stored.StoragePath)
	assert.NoFileExists(t, stored.ThumbnailStoragePath)
}

func TestLocalUploaderPutPDF(t *testing.T) {
	u, err := NewLocalUploader(&Config{LocalDir: t.TempDir()})
	require.NoError(t, err)

	stored, err := u.Put(context.Background(), &File{Name: "receipt.pdf", Mime: "application/pdf", Content: []byte("%PDF-1.4")}, "proofs")
	require.NoError(t, err)
	assert.Empty(t, stored.ThumbnailStoragePath)
	assert.Equal(t, int64(8), stored.Size)
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(&Config{Provider: "ftp"})
	assert.Error(t, err)

	_, err = New(&Config{Provider: string(Local)})
	assert.Error(t, err, "local dir is required")
}
