package client

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test_secret"

func signPayload(t *testing.T, payload []byte, secret string, ts time.Time) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifyWebhookSignature_Valid(t *testing.T) {
	now := time.Now()
	payload := []byte(`{"id":"evt_1","type":"invoice.payment_succeeded"}`)
	header := signPayload(t, payload, testSecret, now)

	err := VerifyWebhookSignature(payload, header, testSecret, 5*time.Minute, now)
	require.NoError(t, err)
}

func TestVerifyWebhookSignature_WrongSecret(t *testing.T) {
	now := time.Now()
	payload := []byte(`{"id":"evt_1"}`)
	header := signPayload(t, payload, "whsec_other", now)

	err := VerifyWebhookSignature(payload, header, testSecret, 5*time.Minute, now)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyWebhookSignature_TamperedPayload(t *testing.T) {
	now := time.Now()
	header := signPayload(t, []byte(`{"amount":100}`), testSecret, now)

	err := VerifyWebhookSignature([]byte(`{"amount":1}`), header, testSecret, 5*time.Minute, now)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyWebhookSignature_StaleTimestamp(t *testing.T) {
	now := time.Now()
	payload := []byte(`{"id":"evt_1"}`)
	header := signPayload(t, payload, testSecret, now.Add(-10*time.Minute))

	err := VerifyWebhookSignature(payload, header, testSecret, 5*time.Minute, now)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyWebhookSignature_MissingHeader(t *testing.T) {
	err := VerifyWebhookSignature([]byte(`{}`), "", testSecret, 5*time.Minute, time.Now())
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyWebhookSignature_MalformedHeader(t *testing.T) {
	err := VerifyWebhookSignature([]byte(`{}`), "t=abc,v1=zz", testSecret, 5*time.Minute, time.Now())
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyWebhookSignature_SecondSignatureMatches(t *testing.T) {
	now := time.Now()
	payload := []byte(`{"id":"evt_2"}`)

	mac := hmac.New(sha256.New, []byte(testSecret))
	fmt.Fprintf(mac, "%d.%s", now.Unix(), payload)
	good := hex.EncodeToString(mac.Sum(nil))
	header := fmt.Sprintf("t=%d,v1=%s,v1=%s", now.Unix(), hex.EncodeToString(make([]byte, 32)), good)

	err := VerifyWebhookSignature(payload, header, testSecret, 5*time.Minute, now)
	require.NoError(t, err)
}
