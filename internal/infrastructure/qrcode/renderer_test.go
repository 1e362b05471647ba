package qrcode

import (
	"bytes"
	"context"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureStore struct {
	key  string
	data []byte
}

func (c *captureStore) PutBytes(_ context.Context, key string, data []byte, _ string) (string, error) {
	c.key, c.data = key, data
	return "https://media/" + key, nil
}

func TestRenderer_RenderUploadsPNG(t *testing.T) {
	st := &captureStore{}
	url, err := NewRenderer(st, 256).Render(context.Background(), "qr/ticket/a1.png", "ticket:a1")
	require.NoError(t, err)
	assert.Equal(t, "https://media/qr/ticket/a1.png", url)

	img, err := png.Decode(bytes.NewReader(st.data))
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())
}
