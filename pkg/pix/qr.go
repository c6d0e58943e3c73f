package pix

import (
	"encoding/base64"
	"errors"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	DefaultQRSize = 256
	dataURIPrefix = "data:image/png;base64,"
)

// RenderQR encodes payload as a PNG QR code and returns it as a data URI.
func RenderQR(payload string, size int) (string, error) {
	if payload == "" {
		return "", errors.New("pix: empty payload")
	}
	if size <= 0 {
		size = DefaultQRSize
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, size)
	if err != nil {
		return "", err
	}
	return dataURIPrefix + base64.StdEncoding.EncodeToString(png), nil
}
