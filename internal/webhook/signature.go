// Package webhook receives identity-provider webhooks and mirrors users, organizations
// and memberships into Postgres.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Signature headers sent with every delivery.
const (
	HeaderID        = "webhook-id"
	HeaderTimestamp = "webhook-timestamp"
	HeaderSignature = "webhook-signature"
)

// DefaultTolerance bounds how far a delivery timestamp may drift from now.
const DefaultTolerance = 5 * time.Minute

var (
	ErrMissingHeaders   = errors.New("webhook: missing signature headers")
	ErrInvalidTimestamp = errors.New("webhook: invalid timestamp")
	ErrTimestampTooOld  = errors.New("webhook: timestamp outside tolerance")
	ErrInvalidSignature = errors.New("webhook: no matching signature")
	ErrEmptySecret      = errors.New("webhook: empty signing secret")
)

// Verifier checks signatures of the form "v1,<base64 HMAC-SHA256(secret, id.timestamp.body)>".
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier decodes secret (an optional "whsec_" prefix followed by base64). Secrets that
// are not valid base64 are used as raw bytes.
func NewVerifier(secret string) (*Verifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrEmptySecret
	}
	raw := strings.TrimPrefix(secret, "whsec_")
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		key = []byte(raw)
	}
	return &Verifier{secret: key, tolerance: DefaultTolerance, now: time.Now}, nil
}

// Sign returns the v1 signature for a delivery.
func (v *Verifier) Sign(id string, ts time.Time, body []byte) string {
	return "v1," + base64.StdEncoding.EncodeToString(v.mac(id, strconv.FormatInt(ts.Unix(), 10), body))
}

func (v *Verifier) mac(id, ts string, body []byte) []byte {
	h := hmac.New(sha256.New, v.secret)
	h.Write([]byte(id))
	h.Write([]byte{'.'})
	h.Write([]byte(ts))
	h.Write([]byte{'.'})
	h.Write(body)
	return h.Sum(nil)
}

// Verify checks the headers of one delivery against body. signatures may hold several
// space-separated entries; one valid v1 entry is enough.
func (v *Verifier) Verify(id, timestamp, signatures string, body []byte) error {
	if id == "" || timestamp == "" || signatures == "" {
		return ErrMissingHeaders
	}
	sec, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidTimestamp
	}
	drift := v.now().Sub(time.Unix(sec, 0))
	if drift > v.tolerance || drift < -v.tolerance {
		return ErrTimestampTooOld
	}

	expected := v.mac(id, timestamp, body)
	for _, sig := range strings.Fields(signatures) {
		version, encoded, ok := strings.Cut(sig, ",")
		if !ok || version != "v1" {
			continue
		}
		got, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			continue
		}
		if hmac.Equal(got, expected) {
			return nil
		}
	}
	return ErrInvalidSignature
}
