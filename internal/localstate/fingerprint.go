package localstate

import (
	"math/rand"
	"strconv"
	"time"
)

const fingerprintKey = "device_fingerprint"

const base36Digits = "0123456789abcdefghijklmnopqrstuvwxyz"

// Fingerprint returns the persisted device fingerprint, generating one on
// first call. The value is a timestamp plus a random base36 suffix; it is a
// dedup key for anonymous likes, not a security boundary.
func Fingerprint(store *Store) (string, error) {
	if existing, ok := store.Get(fingerprintKey); ok && existing != "" {
		return existing, nil
	}

	generated := generateFingerprint(time.Now())
	if err := store.Set(fingerprintKey, generated); err != nil {
		return "", err
	}
	return generated, nil
}

func generateFingerprint(now time.Time) string {
	suffix := make([]byte, 13)
	for i := range suffix {
		suffix[i] = base36Digits[rand.Intn(len(base36Digits))]
	}
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + string(suffix)
}
