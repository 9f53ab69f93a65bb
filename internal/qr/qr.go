// Package qr renders attendance secrets as QR code PNGs.
package qr

import (
	"errors"
	"fmt"

	"github.com/skip2/go-qrcode"
)

const (
	DefaultSize = 256
	minSize     = 64
	maxSize     = 1024
)

// Encode returns a PNG of payload, size pixels square. Out-of-range sizes
// fall back to DefaultSize.
func Encode(payload string, size int) ([]byte, error) {
	if payload == "" {
		return nil, errors.New("qr: empty payload")
	}
	if size < minSize || size > maxSize {
		size = DefaultSize
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("qr: encode: %w", err)
	}
	return png, nil
}

// CheckinPayload is what the QR code carries: a URI the student app
// understands, holding the class and the secret.
func CheckinPayload(classID, secret string) string {
	return fmt.Sprintf("smartattend://checkin?class=%s&code=%s", classID, secret)
}
