package crypto

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestBuilderHeadersAtIsDeterministic(t *testing.T) {
	t.Parallel()
	auth := &HMACAuth{Key: "key1", Secret: "sekrit", Passphrase: "pass1"}

	h1 := auth.BuilderHeadersAt("POST", "/orders", `{"a":1}`, 1700000000)
	h2 := auth.BuilderHeadersAt("POST", "/orders", `{"a":1}`, 1700000000)

	if h1["POLY_BUILDER_SIGNATURE"] != h2["POLY_BUILDER_SIGNATURE"] {
		t.Error("expected identical signatures for identical inputs")
	}
	if h1["POLY_BUILDER_TIMESTAMP"] != "1700000000" {
		t.Errorf("timestamp = %q, want 1700000000", h1["POLY_BUILDER_TIMESTAMP"])
	}
	if h1["POLY_BUILDER_API_KEY"] != "key1" {
		t.Errorf("api key = %q, want key1", h1["POLY_BUILDER_API_KEY"])
	}
}

func TestBuilderHeadersSignatureChangesWithBody(t *testing.T) {
	t.Parallel()
	auth := &HMACAuth{Key: "key1", Secret: "sekrit", Passphrase: "pass1"}

	h1 := auth.BuilderHeadersAt("POST", "/orders", `{"a":1}`, 1700000000)
	h2 := auth.BuilderHeadersAt("POST", "/orders", `{"a":2}`, 1700000000)

	if h1["POLY_BUILDER_SIGNATURE"] == h2["POLY_BUILDER_SIGNATURE"] {
		t.Error("expected different signatures for different request bodies")
	}
}

func TestL2HeadersAtDecodesBase64Secret(t *testing.T) {
	t.Parallel()
	secret := base64.StdEncoding.EncodeToString([]byte("raw-secret-bytes"))
	auth := &HMACAuth{Key: "key1", Secret: secret, Passphrase: "pass1"}

	headers := auth.L2HeadersAt("0xabc", "GET", "/orders", "", 1700000000)

	if headers["POLY_ADDRESS"] != "0xabc" {
		t.Errorf("address = %q, want 0xabc", headers["POLY_ADDRESS"])
	}
	if headers["POLY_SIGNATURE"] == "" {
		t.Error("expected a non-empty signature")
	}
}

func TestL2HeadersAtFallsBackOnInvalidBase64Secret(t *testing.T) {
	t.Parallel()
	auth := &HMACAuth{Key: "key1", Secret: "not-valid-base64!!!", Passphrase: "pass1"}

	// Should not panic even though the secret cannot be base64-decoded.
	headers := auth.L2HeadersAt("0xabc", "GET", "/orders", "", 1700000000)
	if headers["POLY_SIGNATURE"] == "" {
		t.Error("expected a signature even with a non-base64 secret (raw-byte fallback)")
	}
}

func TestHMACAuthStringRedactsSecrets(t *testing.T) {
	t.Parallel()
	auth := &HMACAuth{Key: "supersecretkey", Secret: "supersecretvalue", Passphrase: "pass"}

	s := auth.String()
	if strings.Contains(s, "supersecretkey") || strings.Contains(s, "supersecretvalue") {
		t.Errorf("String() leaked a secret: %q", s)
	}
}
