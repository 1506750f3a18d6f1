package catalog

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/skip2/go-qrcode"
)

const qrImageSize = 256

// WifiQR builds the payload phones scan to join a WPA network.
func WifiQR(ssid, key string) string {
	return fmt.Sprintf("WIFI:S:%s;T:WPA;P:%s;;", ssid, strings.ReplaceAll(key, ":", `\:`))
}

// qrImage renders content as a PNG data URI.
func qrImage(content string) (string, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, qrImageSize)
	if err != nil {
		return "", fmt.Errorf("failed to encode qr code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
