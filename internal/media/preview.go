package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
)

const (
	previewWidth  = 256
	previewHeight = 256
	previewMIME   = "image/png"
)

// IsImage reports whether a declared content type is an image type.
func IsImage(mime string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mime)), "image/")
}

// Preview decodes src and registers a thumbnail of it as a preview handle.
// Data that declares an image type but cannot be decoded is kept as is so the
// preview is still displayable by clients that understand the format.
func (r *Registry) Preview(ctx context.Context, src *Handle) (*Handle, error) {
	data, ok := r.Data(src)
	if !ok {
		return nil, fmt.Errorf("preview of released handle %s", src.ID)
	}

	type result struct {
		data []byte
		mime string
	}
	done := make(chan result, 1)
	go func() {
		thumb, err := thumbnail(data)
		if err != nil {
			done <- result{data: data, mime: src.MIME}
			return
		}
		done <- result{data: thumb, mime: previewMIME}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		return r.Create(KindPreview, src.Name, res.mime, res.data), nil
	}
}

func thumbnail(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	thumb := imaging.Fit(img, previewWidth, previewHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}
	return buf.Bytes(), nil
}
