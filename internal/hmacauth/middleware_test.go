package hmacauth

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fixedVerifier(now time.Time) *Verifier {
	return &Verifier{
		Secret:  "secret",
		MaxSkew: time.Minute,
		Now:     func() time.Time { return now },
	}
}

func accepted(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusAccepted)
}

func TestMiddleware_AllowsValidSignatureAndPreservesBody(t *testing.T) {
	body := `{"intent":"claim"}`
	now := time.Unix(1_700_000_000, 0)
	ts := strconv.FormatInt(now.Unix(), 10)
	v := fixedVerifier(now)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/claim", strings.NewReader(body))
	req.Header.Set(DefaultSignatureHeader, v.Sign(http.MethodPost, "/api/v1/claim", ts, []byte(body)))
	req.Header.Set(DefaultTimestampHeader, ts)
	rec := httptest.NewRecorder()

	var seen string
	v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		seen = string(raw)
		w.WriteHeader(http.StatusAccepted)
	})).ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, body, seen)
}

func TestMiddleware_SignatureIsBoundToRoute(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ts := strconv.FormatInt(now.Unix(), 10)
	v := fixedVerifier(now)
	refreshSig := v.Sign(http.MethodPost, "/api/v1/refresh", ts, nil)

	claims := 0
	handler := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		claims++
		w.WriteHeader(http.StatusAccepted)
	}))

	for _, target := range []struct{ method, path string }{
		{http.MethodPost, "/api/v1/claim"},
		{http.MethodPost, "/api/v1/disconnect"},
		{http.MethodPut, "/api/v1/refresh"},
	} {
		req := httptest.NewRequest(target.method, target.path, nil)
		req.Header.Set(DefaultSignatureHeader, refreshSig)
		req.Header.Set(DefaultTimestampHeader, ts)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", target.method, target.path)
		require.Contains(t, rec.Body.String(), ErrInvalidSignature.Error())
	}
	require.Zero(t, claims)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/refresh", nil)
	req.Header.Set(DefaultSignatureHeader, refreshSig)
	req.Header.Set(DefaultTimestampHeader, ts)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, 1, claims)
}

func TestMiddleware_Rejections(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ts := strconv.FormatInt(now.Unix(), 10)
	stale := strconv.FormatInt(now.Add(-2*time.Minute).Unix(), 10)
	future := strconv.FormatInt(now.Add(2*time.Minute).Unix(), 10)
	v := fixedVerifier(now)

	cases := map[string]struct {
		sig, ts string
		want    error
	}{
		"bad signature":     {sig: "deadbeef", ts: ts, want: ErrInvalidSignature},
		"non-hex signature": {sig: "not-hex", ts: ts, want: ErrInvalidSignature},
		"missing signature": {ts: ts, want: ErrMissingSignature},
		"missing timestamp": {sig: "deadbeef", want: ErrMissingTimestamp},
		"stale timestamp":   {sig: v.Sign(http.MethodPost, "/api/v1/claim", stale, nil), ts: stale, want: ErrStaleTimestamp},
		"future timestamp":  {sig: v.Sign(http.MethodPost, "/api/v1/claim", future, nil), ts: future, want: ErrStaleTimestamp},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/claim", nil)
			if tc.sig != "" {
				req.Header.Set(DefaultSignatureHeader, tc.sig)
			}
			if tc.ts != "" {
				req.Header.Set(DefaultTimestampHeader, tc.ts)
			}
			rec := httptest.NewRecorder()
			v.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Fatal("handler should not be called")
			})).ServeHTTP(rec, req)

			require.Equal(t, http.StatusUnauthorized, rec.Code)
			require.Contains(t, rec.Body.String(), tc.want.Error())
		})
	}
}

func TestMiddleware_CustomHeadersAndDisabled(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ts := strconv.FormatInt(now.Unix(), 10)
	v := fixedVerifier(now)
	v.SignatureHeader = "X-Drop-Signature"
	v.TimestampHeader = "X-Drop-Timestamp"

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Drop-Signature", strings.ToUpper(v.Sign(http.MethodPost, "/", ts, nil)))
	req.Header.Set("X-Drop-Timestamp", ts)
	rec := httptest.NewRecorder()
	v.Middleware(http.HandlerFunc(accepted)).ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	open := &Verifier{}
	rec = httptest.NewRecorder()
	open.Middleware(http.HandlerFunc(accepted)).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
}
