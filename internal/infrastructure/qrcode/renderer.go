package qrcode

import (
	"context"
	"fmt"

	goqrcode "github.com/skip2/go-qrcode"
)

// ObjectStore stores bytes and returns a shareable URL for them.
type ObjectStore interface {
	PutBytes(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Renderer turns a payload into a QR PNG and publishes it.
type Renderer struct {
	store ObjectStore
	size  int
}

func NewRenderer(store ObjectStore, size int) *Renderer {
	if size <= 0 {
		size = 512
	}
	return &Renderer{store: store, size: size}
}

// Encode returns the PNG for payload without storing it.
func (r *Renderer) Encode(payload string) ([]byte, error) {
	png, err := goqrcode.Encode(payload, goqrcode.Medium, r.size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}

// Render encodes payload and uploads it under key, returning the image URL.
func (r *Renderer) Render(ctx context.Context, key, payload string) (string, error) {
	png, err := r.Encode(payload)
	if err != nil {
		return "", err
	}
	return r.store.PutBytes(ctx, key, png, "image/png")
}
