// Package keycodec converts between the key string formats used by the push
// handshake and raw bytes: the URL-safe unpadded base64 of the server's VAPID
// public key, and the standard base64 used to store a device's subscription keys.
package keycodec

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/hearthkeep/go-push-service/pkg/push"
)

// serverKeyLength is the size of an uncompressed P-256 point:
// a 0x04 prefix followed by the 32-byte X and Y coordinates.
const serverKeyLength = 65

// DecodeServerKey decodes a URL-safe, unpadded base64 VAPID public key into
// the raw bytes handed to the browser-level subscribe call. It returns
// push.ErrMalformedKey when the input does not decode or the result is not a
// valid uncompressed P-256 point.
func DecodeServerKey(base64URLKey string) ([]byte, error) {
	// Translate to standard alphabet and re-pad before decoding; the key is
	// served in the URL-safe unpadded form.
	std := strings.NewReplacer("-", "+", "_", "/").Replace(base64URLKey)
	if rem := len(std) % 4; rem != 0 {
		std += strings.Repeat("=", 4-rem)
	}

	raw, err := base64.StdEncoding.DecodeString(std)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", push.ErrMalformedKey, err)
	}
	if len(raw) != serverKeyLength || raw[0] != 0x04 {
		return nil, fmt.Errorf("%w: expected %d-byte uncompressed point, got %d bytes",
			push.ErrMalformedKey, serverKeyLength, len(raw))
	}
	return raw, nil
}

// EncodeSubscriptionKey encodes raw subscription key material (the p256dh
// public key or the auth secret) into the standard base64 storage form.
func EncodeSubscriptionKey(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

// DecodeSubscriptionKey reverses EncodeSubscriptionKey at dispatch time.
func DecodeSubscriptionKey(stored string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", push.ErrMalformedKey, err)
	}
	return raw, nil
}
