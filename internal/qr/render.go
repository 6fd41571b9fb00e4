package qr

import (
	"encoding/json"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// Marshal returns the exact wire text of p.
func Marshal(p Payload) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(b), nil
}

// RenderPNG encodes p as a QR image of size×size pixels.
// Medium recovery survives glare on a screen without making the code too dense.
func RenderPNG(p Payload, size int) ([]byte, error) {
	text, err := Marshal(p)
	if err != nil {
		return nil, err
	}
	png, err := qrcode.Encode(text, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
