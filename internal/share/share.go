// Package share builds the attendance link handed to students and its QR code.
package share

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/skip2/go-qrcode"
)

// DefaultQRSize is the PNG edge length in pixels.
const DefaultQRSize = 300

// Link returns the public attendance URL for a session.
func Link(baseURL, sessionID string) (string, error) {
	if sessionID == "" {
		return "", errors.New("session id required")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse public base url: %w", err)
	}
	return u.JoinPath("attend", sessionID).String(), nil
}

// QR encodes the attendance link of a session as a PNG.
func QR(baseURL, sessionID string, size int) ([]byte, error) {
	link, err := Link(baseURL, sessionID)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = DefaultQRSize
	}
	png, err := qrcode.Encode(link, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
