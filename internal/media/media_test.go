package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gennadis/chatengine/internal/chat"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestReleaseIsIdempotent(t *testing.T) {
	r := NewRegistry()
	h := r.Create(KindImage, "cat.png", "image/png", []byte("data"))
	require.Equal(t, 1, r.Live())

	assert.True(t, r.Release(h))
	assert.False(t, r.Release(h))
	assert.False(t, r.Release(nil))
	assert.Equal(t, 0, r.Live())

	_, ok := r.Data(h)
	assert.False(t, ok)
}

func TestAttachToMessage(t *testing.T) {
	r := NewRegistry()
	h := r.Create(KindPreview, "cat.png", "image/png", []byte("data"))

	require.True(t, r.AttachToMessage(h, "msg-1"))
	assert.Equal(t, "msg-1", r.Owner(h))

	r.Release(h)
	assert.False(t, r.AttachToMessage(h, "msg-2"))
}

func TestLookupAndReleaseMessages(t *testing.T) {
	r := NewRegistry()
	a := r.Create(KindPreview, "a.png", "image/png", []byte("a"))
	b := r.Create(KindPreview, "b.png", "image/png", []byte("b"))

	got, ok := r.Lookup(a.URL())
	require.True(t, ok)
	assert.Equal(t, a.ID, got.ID)

	_, ok = r.Lookup("https://example.com/a.png")
	assert.False(t, ok)

	messages := []chat.Message{
		{ID: "1", Image: a.URL()},
		{ID: "2", Image: "https://example.com/remote.png"},
		{ID: "3"},
	}
	assert.Equal(t, 1, r.ReleaseMessages(messages))
	assert.Equal(t, 0, r.ReleaseMessages(messages))
	assert.Equal(t, 1, r.Live())

	assert.Equal(t, 1, r.ReleaseAll())
	_, ok = r.Data(b)
	assert.False(t, ok)
}

func TestPreviewThumbnail(t *testing.T) {
	r := NewRegistry()
	src := r.Create(KindImage, "big.png", "image/png", pngBytes(t, 800, 400))

	preview, err := r.Preview(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, KindPreview, preview.Kind)
	assert.Equal(t, "image/png", preview.MIME)

	data, ok := r.Data(preview)
	require.True(t, ok)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())
	assert.Equal(t, 128, img.Bounds().Dy())
}

func TestPreviewUndecodableKeepsOriginal(t *testing.T) {
	r := NewRegistry()
	src := r.Create(KindImage, "odd.heic", "image/heic", []byte("not really an image"))

	preview, err := r.Preview(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, "image/heic", preview.MIME)

	data, ok := r.Data(preview)
	require.True(t, ok)
	assert.Equal(t, []byte("not really an image"), data)
}

func TestPreviewOfReleasedHandle(t *testing.T) {
	r := NewRegistry()
	src := r.Create(KindImage, "a.png", "image/png", []byte("x"))
	r.Release(src)

	_, err := r.Preview(context.Background(), src)
	assert.Error(t, err)
}

func TestIsImage(t *testing.T) {
	assert.True(t, IsImage("image/png"))
	assert.True(t, IsImage(" Image/JPEG"))
	assert.False(t, IsImage("application/pdf"))
	assert.False(t, IsImage(""))
}
