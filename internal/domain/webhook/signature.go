package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderID        = "webhook-id"
	HeaderTimestamp = "webhook-timestamp"
	HeaderSignature = "webhook-signature"

	secretPrefix     = "whsec_"
	signatureVersion = "v1"
)

var (
	ErrMissingHeaders   = errors.New("missing webhook headers")
	ErrStaleTimestamp   = errors.New("webhook timestamp outside tolerance")
	ErrNoMatchSignature = errors.New("no matching webhook signature")
)

// Verifier checks Standard Webhooks signatures: HMAC-SHA256 over "id.timestamp.body".
type Verifier struct {
	key       []byte
	tolerance time.Duration
	nowFn     func() time.Time
}

func NewVerifier(secret string, tolerance time.Duration) (*Verifier, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, secretPrefix))
	if err != nil {
		return nil, fmt.Errorf("webhook secret is not valid base64: %w", err)
	}
	if len(key) == 0 {
		return nil, errors.New("webhook secret is empty")
	}
	return &Verifier{key: key, tolerance: tolerance, nowFn: time.Now}, nil
}

func (v *Verifier) WithClock(nowFn func() time.Time) *Verifier {
	v.nowFn = nowFn
	return v
}

func (v *Verifier) Verify(id, timestamp, signatures string, body []byte) error {
	if id == "" || timestamp == "" || signatures == "" {
		return ErrMissingHeaders
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid webhook timestamp %q: %w", timestamp, err)
	}
	sent := time.Unix(ts, 0)
	now := v.nowFn()
	if sent.Before(now.Add(-v.tolerance)) || sent.After(now.Add(v.tolerance)) {
		return ErrStaleTimestamp
	}

	expected := v.Sign(id, timestamp, body)
	for _, candidate := range strings.Fields(signatures) {
		version, sig, ok := strings.Cut(candidate, ",")
		if !ok || version != signatureVersion {
			continue
		}
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return ErrNoMatchSignature
}

// Sign returns the base64 signature without the version prefix.
func (v *Verifier) Sign(id, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, v.key)
	mac.Write([]byte(id))
	mac.Write([]byte("."))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
