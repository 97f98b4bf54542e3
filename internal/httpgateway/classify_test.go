package httpgateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDeriveHostnamePrefersOrigin(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Host = "fallback.example:8080"
	r.Header.Set("Origin", "https://origin.example:9090")

	if got := deriveHostname(r); got != "origin.example" {
		t.Fatalf("deriveHostname() = %q, want origin.example", got)
	}
}

func TestDeriveHostnameFallsBackToHostStrippingPort(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Host = "app.example:8080"

	if got := deriveHostname(r); got != "app.example" {
		t.Fatalf("deriveHostname() = %q, want app.example", got)
	}
}

func TestDeriveHostnameHostWithoutPort(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Host = "app.example"

	if got := deriveHostname(r); got != "app.example" {
		t.Fatalf("deriveHostname() = %q, want app.example", got)
	}
}

func TestMatchesBotCaseInsensitive(t *testing.T) {
	bots := []string{"Googlebot", "bingbot"}
	if !matchesBot("Mozilla/5.0 (compatible; GOOGLEBOT/2.1)", bots) {
		t.Fatal("expected bot match")
	}
	if matchesBot("Mozilla/5.0 (Macintosh)", bots) {
		t.Fatal("expected no bot match")
	}
}

func TestClassifyRenderXRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("User-Agent", "RenderX/1.0")

	cls := classify(r, nil)
	if !cls.isRenderXRequest {
		t.Fatal("expected isRenderXRequest to be true")
	}
}

func TestClassifyFileRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/assets/app.js", nil)

	cls := classify(r, nil)
	if !cls.isFileRequest {
		t.Fatal("expected isFileRequest to be true")
	}
}

func TestClassifyInternalRender(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-RenderX-Internal", "true")

	cls := classify(r, nil)
	if !cls.isInternalRender {
		t.Fatal("expected isInternalRender to be true")
	}
}

func TestClassifyBot(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("User-Agent", "Mozilla/5.0 (compatible; Googlebot/2.1)")

	cls := classify(r, []string{"Googlebot"})
	if !cls.isBot {
		t.Fatal("expected isBot to be true")
	}
}

func TestRequestProtocolDefaultsToHTTP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := requestProtocol(r); got != "http" {
		t.Fatalf("requestProtocol() = %q, want http", got)
	}
}

func TestRequestProtocolForwardedProto(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Forwarded-Proto", "https")
	if got := requestProtocol(r); got != "https" {
		t.Fatalf("requestProtocol() = %q, want https", got)
	}
}
