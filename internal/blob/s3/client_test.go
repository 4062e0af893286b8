package s3blob

import "testing"

func TestNormaliseEndpointLeavesExplicitSchemeAlone(t *testing.T) {
	t.Parallel()
	got := normaliseEndpoint("https://e2.idy.idrivee2.com", false)
	if got != "https://e2.idy.idrivee2.com" {
		t.Errorf("got %q, want the endpoint unchanged", got)
	}
}

func TestNormaliseEndpointAddsHTTPSWhenUseSSL(t *testing.T) {
	t.Parallel()
	got := normaliseEndpoint("minio.internal:9000", true)
	if got != "https://minio.internal:9000" {
		t.Errorf("got %q, want https://minio.internal:9000", got)
	}
}

func TestNormaliseEndpointAddsHTTPWhenNotUseSSL(t *testing.T) {
	t.Parallel()
	got := normaliseEndpoint("minio.internal:9000", false)
	if got != "http://minio.internal:9000" {
		t.Errorf("got %q, want http://minio.internal:9000", got)
	}
}
