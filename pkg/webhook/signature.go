package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const (
	HeaderSignature = "X-Notify-Signature"
	HeaderTimestamp = "X-Notify-Timestamp"
	HeaderID        = "X-Notify-ID"
)

// Signature holds the values carried in the signature headers.
type Signature struct {
	Signature string
	Timestamp int64
	ID        string
}

// Apply sets the signature headers on h.
func (s Signature) Apply(h http.Header) {
	h.Set(HeaderSignature, s.Signature)
	h.Set(HeaderTimestamp, strconv.FormatInt(s.Timestamp, 10))
	h.Set(HeaderID, s.ID)
}

// Sign computes hex(HMAC-SHA256(secret, unix(at) + "." + payload)).
func Sign(secret string, payload []byte, id string, at time.Time) (Signature, error) {
	if secret == "" {
		return Signature{}, fmt.Errorf("%w: secret is required", ErrInvalidConfiguration)
	}
	if len(payload) == 0 {
		return Signature{}, fmt.Errorf("%w: payload cannot be empty", ErrInvalidPayload)
	}

	ts := at.Unix()
	return Signature{
		Signature: computeMAC(secret, ts, payload),
		Timestamp: ts,
		ID:        id,
	}, nil
}

// ParseSignature reads the signature headers from h.
func ParseSignature(h http.Header) (Signature, error) {
	sig := Signature{
		Signature: h.Get(HeaderSignature),
		ID:        h.Get(HeaderID),
	}
	ts := h.Get(HeaderTimestamp)
	if sig.Signature == "" || ts == "" {
		return Signature{}, fmt.Errorf("%w: missing signature headers", ErrInvalidConfiguration)
	}
	var err error
	sig.Timestamp, err = strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return Signature{}, fmt.Errorf("%w: invalid timestamp format", ErrInvalidConfiguration)
	}
	return sig, nil
}

// VerifySignature checks sig against payload. A positive maxAge rejects
// signatures older than maxAge or more than a minute in the future.
func VerifySignature(secret string, payload []byte, sig Signature, maxAge time.Duration, now time.Time) error {
	if secret == "" {
		return fmt.Errorf("%w: secret is required", ErrInvalidConfiguration)
	}
	if sig.Signature == "" {
		return fmt.Errorf("%w: signature is missing", ErrSignatureMismatch)
	}

	if maxAge > 0 {
		age := now.Sub(time.Unix(sig.Timestamp, 0))
		if age > maxAge {
			return fmt.Errorf("%w: timestamp too old: %v", ErrSignatureMismatch, age)
		}
		if age < -time.Minute {
			return fmt.Errorf("%w: timestamp is in the future", ErrSignatureMismatch)
		}
	}

	expected := computeMAC(secret, sig.Timestamp, payload)
	if !hmac.Equal([]byte(expected), []byte(sig.Signature)) {
		return ErrSignatureMismatch
	}
	return nil
}

func computeMAC(secret string, ts int64, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(h, "%d.", ts)
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
