package webhook

import (
	"encoding/base64"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVerifier(t *testing.T, now time.Time) *Verifier {
	t.Helper()
	secret := "whsec_" + base64.StdEncoding.EncodeToString([]byte("super-secret-signing-key"))
	v, err := NewVerifier(secret, 5*time.Minute)
	require.NoError(t, err)
	return v.WithClock(func() time.Time { return now })
}

func TestVerifier_AcceptsValidSignature(t *testing.T) {
	now := time.Unix(1_780_000_000, 0)
	v := testVerifier(t, now)
	body := []byte(`{"type":"payment.succeeded"}`)
	ts := strconv.FormatInt(now.Unix(), 10)

	sig := "v1," + v.Sign("msg_1", ts, body)
	assert.NoError(t, v.Verify("msg_1", ts, "v0,bogus "+sig, body))
}

func TestVerifier_Rejects(t *testing.T) {
	now := time.Unix(1_780_000_000, 0)
	v := testVerifier(t, now)
	body := []byte(`{"type":"payment.succeeded"}`)
	ts := strconv.FormatInt(now.Unix(), 10)
	sig := "v1," + v.Sign("msg_1", ts, body)

	assert.ErrorIs(t, v.Verify("", ts, sig, body), ErrMissingHeaders)
	assert.ErrorIs(t, v.Verify("msg_1", ts, sig, []byte(`{"type":"refund.succeeded"}`)), ErrNoMatchSignature)
	assert.ErrorIs(t, v.Verify("msg_2", ts, sig, body), ErrNoMatchSignature)

	old := strconv.FormatInt(now.Add(-10*time.Minute).Unix(), 10)
	oldSig := "v1," + v.Sign("msg_1", old, body)
	assert.ErrorIs(t, v.Verify("msg_1", old, oldSig, body), ErrStaleTimestamp)

	assert.Error(t, v.Verify("msg_1", "yesterday", sig, body))
}

func TestNewVerifier_BadSecret(t *testing.T) {
	_, err := NewVerifier("whsec_!!!", time.Minute)
	assert.Error(t, err)
	_, err = NewVerifier("whsec_", time.Minute)
	assert.Error(t, err)
}

func TestEventData_Product(t *testing.T) {
	assert.Equal(t, "prod_sub", EventData{ProductID: "prod_sub"}.Product())
	assert.Equal(t, "prod_cart", EventData{ProductCart: []CartItem{{ProductID: "prod_cart", Quantity: 1}}}.Product())
	assert.Equal(t, "", EventData{}.Product())
}
