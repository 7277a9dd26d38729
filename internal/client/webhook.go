package client

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSignature is returned when a webhook payload fails
// signature verification for any reason.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// VerifyWebhookSignature checks the signature header the billing
// provider attaches to webhook deliveries. The header carries a unix
// timestamp and one or more HMAC-SHA256 signatures computed over
// "<timestamp>.<payload>" with the endpoint secret. Timestamps outside
// the tolerance window are rejected to limit replay.
func VerifyWebhookSignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	if header == "" {
		return fmt.Errorf("%w: missing signature header", ErrInvalidSignature)
	}

	var timestamp int64
	var signatures [][]byte

	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("%w: malformed timestamp", ErrInvalidSignature)
			}
			timestamp = ts
		case "v1":
			sig, err := hex.DecodeString(value)
			if err != nil {
				continue
			}
			signatures = append(signatures, sig)
		}
	}

	if timestamp == 0 || len(signatures) == 0 {
		return fmt.Errorf("%w: header missing timestamp or signature", ErrInvalidSignature)
	}

	age := now.Sub(time.Unix(timestamp, 0))
	if age > tolerance || age < -tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, sig := range signatures {
		if hmac.Equal(expected, sig) {
			return nil
		}
	}
	return fmt.Errorf("%w: no matching signature", ErrInvalidSignature)
}
