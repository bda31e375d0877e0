package lnurl

import (
	"errors"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

const hrp = "lnurl"

// Encode bech32-encodes a callback URL into the uppercase LNURL form
// wallets expect in QR codes.
func Encode(raw string) (string, error) {
	converted, err := bech32.ConvertBits([]byte(raw), 8, 5, true)
	if err != nil {
		return "", err
	}
	encoded, err := bech32.Encode(hrp, converted)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(encoded), nil
}

// Decode recovers the callback URL from an LNURL string. LNURL strings
// routinely exceed the 90-character bech32 limit, hence DecodeNoLimit.
func Decode(lnurl string) (string, error) {
	prefix, data, err := bech32.DecodeNoLimit(strings.ToLower(lnurl))
	if err != nil {
		return "", err
	}
	if prefix != hrp {
		return "", errors.New("lnurl: unexpected human-readable prefix")
	}
	converted, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", err
	}
	return string(converted), nil
}
