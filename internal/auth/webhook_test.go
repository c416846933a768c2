package auth

import (
	"encoding/base64"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVerifier(t *testing.T) *WebhookVerifier {
	t.Helper()
	v, err := NewWebhookVerifier("whsec_" + base64.StdEncoding.EncodeToString([]byte("webhook-signing-key")))
	require.NoError(t, err)
	return v
}

func signedHeaders(t *testing.T, v *WebhookVerifier, id string, ts time.Time, body []byte) http.Header {
	t.Helper()
	sig, err := v.Sign(id, ts, body)
	require.NoError(t, err)
	h := http.Header{}
	h.Set("svix-id", id)
	h.Set("svix-timestamp", strconv.FormatInt(ts.Unix(), 10))
	h.Set("svix-signature", sig)
	return h
}

func TestWebhookVerifier(t *testing.T) {
	v := newVerifier(t)
	now := time.Now()
	body := []byte(`{"type":"user.created","data":{"id":"user_1"}}`)

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, v.Verify(signedHeaders(t, v, "msg_1", now, body), body))
	})

	t.Run("one of several signatures matches", func(t *testing.T) {
		h := signedHeaders(t, v, "msg_1", now, body)
		h.Set("svix-signature", "v1,Ym9ndXM= "+h.Get("svix-signature"))
		assert.NoError(t, v.Verify(h, body))
	})

	t.Run("tampered body", func(t *testing.T) {
		h := signedHeaders(t, v, "msg_1", now, body)
		assert.ErrorIs(t, v.Verify(h, []byte(`{"type":"user.deleted"}`)), ErrInvalidWebhook)
	})

	t.Run("signed with another secret", func(t *testing.T) {
		other, err := NewWebhookVerifier("whsec_" + base64.StdEncoding.EncodeToString([]byte("another-key")))
		require.NoError(t, err)
		h := signedHeaders(t, other, "msg_1", now, body)
		assert.ErrorIs(t, v.Verify(h, body), ErrInvalidWebhook)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		h := signedHeaders(t, v, "msg_1", now.Add(-10*time.Minute), body)
		assert.ErrorIs(t, v.Verify(h, body), ErrInvalidWebhook)
	})

	t.Run("future timestamp", func(t *testing.T) {
		h := signedHeaders(t, v, "msg_1", now.Add(10*time.Minute), body)
		assert.ErrorIs(t, v.Verify(h, body), ErrInvalidWebhook)
	})

	t.Run("missing headers", func(t *testing.T) {
		assert.ErrorIs(t, v.Verify(http.Header{}, body), ErrMissingWebhookHeaders)
	})
}

func TestWebhookVerifier_SignFormat(t *testing.T) {
	sig, err := newVerifier(t).Sign("msg_1", time.Now(), []byte(`{}`))
	require.NoError(t, err)
	assert.Regexp(t, `^v1,[A-Za-z0-9+/]+=*$`, sig)
}

func TestNewWebhookVerifier_BadSecret(t *testing.T) {
	_, err := NewWebhookVerifier("whsec_***")
	assert.Error(t, err)
}
