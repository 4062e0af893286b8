package crypto

import (
	"strings"
	"testing"
)

func TestNewSignerDerivesAddress(t *testing.T) {
	t.Parallel()
	s, err := NewSigner(testPrivateKeyHex, 137)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	addr := s.Address().Hex()
	if !strings.HasPrefix(addr, "0x") || len(addr) != 42 {
		t.Errorf("derived address = %q, want a 0x-prefixed 20-byte address", addr)
	}
}

func TestNewSignerRejectsInvalidHex(t *testing.T) {
	t.Parallel()
	if _, err := NewSigner("not-a-valid-key", 137); err == nil {
		t.Fatal("expected error for invalid private key hex")
	}
}

func TestSignAuthMessageProducesHexSignature(t *testing.T) {
	t.Parallel()
	s, err := NewSigner(testPrivateKeyHex, 137)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	sig, err := s.SignAuthMessage(s.Address().Hex(), 1700000000, 1)
	if err != nil {
		t.Fatalf("SignAuthMessage: %v", err)
	}
	if !strings.HasPrefix(sig, "0x") {
		t.Errorf("signature = %q, want 0x-prefixed", sig)
	}
	// 0x + 65 bytes * 2 hex chars
	if len(sig) != 2+65*2 {
		t.Errorf("signature length = %d, want %d", len(sig), 2+65*2)
	}
}

func TestSignAuthMessageDeterministicForSameInputs(t *testing.T) {
	t.Parallel()
	s, err := NewSigner(testPrivateKeyHex, 137)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	sig1, err := s.SignAuthMessage(s.Address().Hex(), 1700000000, 1)
	if err != nil {
		t.Fatalf("SignAuthMessage: %v", err)
	}
	sig2, err := s.SignAuthMessage(s.Address().Hex(), 1700000000, 1)
	if err != nil {
		t.Fatalf("SignAuthMessage: %v", err)
	}
	if sig1 != sig2 {
		t.Errorf("expected deterministic ECDSA signature for identical inputs, got %q vs %q", sig1, sig2)
	}
}

func TestSignOrderProducesHexSignature(t *testing.T) {
	t.Parallel()
	s, err := NewSigner(testPrivateKeyHex, 137)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	order := OrderPayload{
		Salt: "1", Maker: s.Address().Hex(), Signer: s.Address().Hex(), Taker: "0x0000000000000000000000000000000000000000",
		TokenID: "123456", MakerAmount: "1000000", TakerAmount: "500000", Expiration: "0", Nonce: "0", FeeRateBps: "0",
		Side: 1, SignatureType: 2,
	}
	sig, err := s.SignOrder(order)
	if err != nil {
		t.Fatalf("SignOrder: %v", err)
	}
	if !strings.HasPrefix(sig, "0x") {
		t.Errorf("signature = %q, want 0x-prefixed", sig)
	}
}

func TestSignOrderRejectsInvalidNumericField(t *testing.T) {
	t.Parallel()
	s, err := NewSigner(testPrivateKeyHex, 137)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	order := OrderPayload{Salt: "not-a-number"}
	if _, err := s.SignOrder(order); err == nil {
		t.Fatal("expected error for non-numeric salt")
	}
}
