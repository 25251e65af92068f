package hmacauth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"
)

const (
	DefaultSignatureHeader = "X-Request-Signature"
	DefaultTimestampHeader = "X-Request-Timestamp"
)

var (
	ErrMissingSignature = errors.New("missing request signature")
	ErrMissingTimestamp = errors.New("missing request timestamp")
	ErrStaleTimestamp   = errors.New("stale request timestamp")
	ErrInvalidSignature = errors.New("invalid request signature")
)

// Verifier authenticates drop intents. The signature is
// hex(HMAC-SHA256(secret, method "\n" path "\n" timestamp "\n" body)),
// so a signature is bound to the intent route it was issued for.
// An empty Secret disables verification.
type Verifier struct {
	Secret          string
	MaxSkew         time.Duration
	Now             func() time.Time
	SignatureHeader string
	TimestampHeader string
}

func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if v.Secret != "" {
			if err := v.authenticate(r); err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Sign returns the signature a client sends for an intent request.
func (v *Verifier) Sign(method, path, timestamp string, body []byte) string {
	return hex.EncodeToString(v.mac(method, path, timestamp, body))
}

func (v *Verifier) authenticate(r *http.Request) error {
	sig, ts, err := v.credentials(r)
	if err != nil {
		return err
	}
	if err := v.checkFresh(ts); err != nil {
		return err
	}

	body, err := bufferBody(r)
	if err != nil {
		return err
	}

	// hex decoding accepts either case from clients
	given, err := hex.DecodeString(sig)
	if err != nil {
		return ErrInvalidSignature
	}
	if !hmac.Equal(given, v.mac(r.Method, r.URL.Path, ts, body)) {
		return ErrInvalidSignature
	}
	return nil
}

func (v *Verifier) credentials(r *http.Request) (sig, ts string, err error) {
	sig = r.Header.Get(headerOr(v.SignatureHeader, DefaultSignatureHeader))
	if sig == "" {
		return "", "", ErrMissingSignature
	}
	ts = r.Header.Get(headerOr(v.TimestampHeader, DefaultTimestampHeader))
	if ts == "" {
		return "", "", ErrMissingTimestamp
	}
	return sig, ts, nil
}

func (v *Verifier) checkFresh(ts string) error {
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrMissingTimestamp
	}
	now := time.Now()
	if v.Now != nil {
		now = v.Now()
	}
	skew := now.Sub(time.Unix(unix, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.MaxSkew {
		return ErrStaleTimestamp
	}
	return nil
}

func (v *Verifier) mac(method, path, timestamp string, body []byte) []byte {
	h := hmac.New(sha256.New, []byte(v.Secret))
	for _, part := range []string{method, path, timestamp} {
		h.Write([]byte(part))
		h.Write([]byte{'\n'})
	}
	h.Write(body)
	return h.Sum(nil)
}

// bufferBody reads the body for signing and leaves a fresh copy for the handler.
func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

func headerOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
