package qr

import (
	"github.com/skip2/go-qrcode"
)

// Image renders a transport string to a 256px PNG QR code, the artifact
// embedded in confirmation emails and served to ticket holders.
func Image(data string) ([]byte, error) {
	return qrcode.Encode(data, qrcode.Medium, 256)
}
