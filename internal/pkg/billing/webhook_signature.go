package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"strings"
	"time"
)

const (
	webhookSecretPrefix = "whsec_"
	// webhookTolerance bounds how old or how far in the future a delivery may be.
	webhookTolerance = 5 * time.Minute
)

// VerifyStandardWebhookSignature checks a Standard Webhooks delivery:
// base64(HMAC-SHA256(key, "<id>.<timestamp>.<body>")) must match one of the
// space separated "v1,<sig>" entries of the signature header.
func VerifyStandardWebhookSignature(payload []byte, signatureHeader, eventID, timestamp, webhookSecret string, now time.Time) bool {
	sig := strings.TrimSpace(signatureHeader)
	id := strings.TrimSpace(eventID)
	ts := strings.TrimSpace(timestamp)
	key := webhookKey(webhookSecret)
	if sig == "" || id == "" || ts == "" || len(key) == 0 {
		return false
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	sent := time.Unix(unix, 0)
	if now.Sub(sent) > webhookTolerance || sent.Sub(now) > webhookTolerance {
		return false
	}

	expected := signStandardWebhook(key, id, ts, payload)
	for _, entry := range strings.Fields(sig) {
		version, value, ok := strings.Cut(entry, ",")
		if !ok || version != "v1" {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return true
		}
	}
	return false
}

// SignStandardWebhook returns the "v1,<sig>" header value for a payload.
// Used by tests and the admin CLI to replay deliveries.
func SignStandardWebhook(webhookSecret, eventID, timestamp string, payload []byte) string {
	sig := signStandardWebhook(webhookKey(webhookSecret), eventID, timestamp, payload)
	return "v1," + base64.StdEncoding.EncodeToString(sig)
}

func signStandardWebhook(key []byte, eventID, timestamp string, payload []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(eventID))
	mac.Write([]byte("."))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

// webhookKey strips the whsec_ prefix and base64-decodes the secret. Secrets
// that are not base64 are used as raw bytes.
func webhookKey(secret string) []byte {
	s := strings.TrimPrefix(strings.TrimSpace(secret), webhookSecretPrefix)
	if s == "" {
		return nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(s); err == nil {
		return decoded
	}
	return []byte(s)
}
