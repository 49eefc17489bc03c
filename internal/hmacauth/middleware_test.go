package hmacauth

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

var fixedNow = time.Unix(1_700_000_000, 0)

func newVerifier() *Verifier {
	return &Verifier{
		Secret:  "secret",
		MaxSkew: time.Minute,
		Now:     func() time.Time { return fixedNow },
	}
}

func signedRequest(method, path, body string, ts time.Time, secret string) *http.Request {
	stamp := strconv.FormatInt(ts.Unix(), 10)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(DefaultTimestampHeader, stamp)
	req.Header.Set(DefaultSignatureHeader, Sign(secret, stamp, method, path, []byte(body)))
	return req
}

func TestMiddleware_AllowsValidSignature(t *testing.T) {
	body := `{"uri":"https://mandala.test/meta/"}`
	req := signedRequest(http.MethodPost, "/api/admin/base-uri", body, fixedNow, "secret")
	rec := httptest.NewRecorder()

	var got string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got = string(b)
		w.WriteHeader(http.StatusOK)
	})

	newVerifier().Middleware(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got != body {
		t.Fatalf("handler saw body %q, want %q", got, body)
	}
}

func TestMiddleware_RejectsInvalidSignature(t *testing.T) {
	req := signedRequest(http.MethodPost, "/api/admin/pause", "", fixedNow, "other-secret")
	rec := httptest.NewRecorder()

	newVerifier().Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), ErrInvalidSignature.Error()) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestMiddleware_RejectsReplayOnOtherRoute(t *testing.T) {
	req := signedRequest(http.MethodPost, "/api/admin/pause", "", fixedNow, "secret")
	req.URL.Path = "/api/admin/unpause"
	rec := httptest.NewRecorder()

	newVerifier().Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMiddleware_RejectsStaleTimestamp(t *testing.T) {
	req := signedRequest(http.MethodPost, "/api/admin/pause", "", fixedNow.Add(-2*time.Minute), "secret")
	rec := httptest.NewRecorder()

	newVerifier().Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMiddleware_DisabledWithoutSecret(t *testing.T) {
	req := signedRequest(http.MethodPost, "/api/admin/pause", "", fixedNow, "")
	rec := httptest.NewRecorder()

	v := newVerifier()
	v.Secret = ""
	v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestMiddleware_CustomHeaders(t *testing.T) {
	stamp := strconv.FormatInt(fixedNow.Unix(), 10)
	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set("X-Ts", stamp)
	req.Header.Set("X-Sig", Sign("secret", stamp, http.MethodPost, "/x", nil))
	rec := httptest.NewRecorder()

	v := newVerifier()
	v.SignatureHeader = "X-Sig"
	v.TimestampHeader = "X-Ts"
	v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}
