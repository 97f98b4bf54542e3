package httpgateway

import "testing"

func TestIsSafeRenderTargetAllowsPublicHost(t *testing.T) {
	if !isSafeRenderTarget("https://example.com/page") {
		t.Fatal("expected public host to be allowed")
	}
}

func TestIsSafeRenderTargetAllowsLocalhostLiteral(t *testing.T) {
	if !isSafeRenderTarget("http://localhost:3000/page") {
		t.Fatal("expected localhost to be allowed")
	}
}

func TestIsSafeRenderTargetRejectsLoopbackIP(t *testing.T) {
	if isSafeRenderTarget("http://127.0.0.1/page") {
		t.Fatal("expected loopback IP to be rejected")
	}
}

func TestIsSafeRenderTargetRejectsIPv6Loopback(t *testing.T) {
	if isSafeRenderTarget("http://[::1]/page") {
		t.Fatal("expected ::1 to be rejected")
	}
}

func TestIsSafeRenderTargetRejectsUnspecified(t *testing.T) {
	if isSafeRenderTarget("http://0.0.0.0/page") {
		t.Fatal("expected 0.0.0.0 to be rejected")
	}
}

func TestIsSafeRenderTargetRejectsPrivateCIDRs(t *testing.T) {
	cases := []string{
		"http://10.1.2.3/page",
		"http://172.16.0.5/page",
		"http://192.168.1.1/page",
	}
	for _, c := range cases {
		if isSafeRenderTarget(c) {
			t.Fatalf("expected %q to be rejected", c)
		}
	}
}

func TestIsSafeRenderTargetRejectsMalformedURL(t *testing.T) {
	if isSafeRenderTarget("::not a url::") {
		t.Fatal("expected malformed url to be rejected")
	}
}
