package shipment

import (
	"crypto/rand"
	"math/big"
)

const (
	barcodeLength   = 16
	barcodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var alphabetSize = big.NewInt(int64(len(barcodeAlphabet)))

// NewBarcode returns a random 16 character code over [A-Z0-9].
func NewBarcode() (string, error) {
	out := make([]byte, barcodeLength)
	for i := range out {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", err
		}
		out[i] = barcodeAlphabet[n.Int64()]
	}
	return string(out), nil
}
