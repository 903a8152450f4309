package crypto

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	if len(key.PublicKey()) != PubKeySize {
		t.Errorf("PublicKey() length = %d, want %d", len(key.PublicKey()), PubKeySize)
	}
	if len(key.Serialize()) != 32 {
		t.Errorf("Serialize() length = %d, want 32", len(key.Serialize()))
	}
}

func TestPrivateKeyFromBytes(t *testing.T) {
	original, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	restored, err := PrivateKeyFromBytes(original.Serialize())
	if err != nil {
		t.Fatalf("PrivateKeyFromBytes() error: %v", err)
	}
	if !bytes.Equal(original.PublicKey(), restored.PublicKey()) {
		t.Error("restored key should have same public key")
	}

	fromHex, err := PrivateKeyFromHex(hex.EncodeToString(original.Serialize()))
	if err != nil {
		t.Fatalf("PrivateKeyFromHex() error: %v", err)
	}
	if fromHex.Address() != original.Address() {
		t.Error("hex-restored key should have same address")
	}
}

func TestPrivateKeyFromBytes_InvalidLength(t *testing.T) {
	for _, n := range []int{0, 16, 64} {
		if _, err := PrivateKeyFromBytes(make([]byte, n)); err == nil {
			t.Errorf("expected error for %d-byte key", n)
		}
	}
	if _, err := PrivateKeyFromHex("zz"); err == nil {
		t.Error("expected error for non-hex key")
	}
}

func TestSign_Verify(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	msg := Hash([]byte("test message"))
	sig, err := key.Sign(msg[:])
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if len(sig) != SignatureSize {
		t.Errorf("signature length = %d, want %d", len(sig), SignatureSize)
	}
	if !VerifySignature(msg[:], sig, key.PublicKey()) {
		t.Error("signature should verify against the correct key and hash")
	}
}

func TestSign_InvalidHashLength(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	if _, err := key.Sign([]byte("short")); err == nil {
		t.Error("expected error signing a non-32-byte hash")
	}
}

func TestVerifySignature_Rejects(t *testing.T) {
	key, _ := GenerateKey()
	other, _ := GenerateKey()
	msg := Hash([]byte("message"))
	sig, err := key.Sign(msg[:])
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	tampered := make([]byte, len(sig))
	copy(tampered, sig)
	tampered[10] ^= 0xFF

	wrongMsg := Hash([]byte("other message"))

	tests := []struct {
		name string
		hash []byte
		sig  []byte
		pub  []byte
	}{
		{"wrong key", msg[:], sig, other.PublicKey()},
		{"wrong message", wrongMsg[:], sig, key.PublicKey()},
		{"tampered signature", msg[:], tampered, key.PublicKey()},
		{"empty signature", msg[:], nil, key.PublicKey()},
		{"garbage pubkey", msg[:], sig, []byte{0x01, 0x02}},
		{"short hash", msg[:16], sig, key.PublicKey()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if VerifySignature(tt.hash, tt.sig, tt.pub) {
				t.Error("VerifySignature should fail")
			}
		})
	}
}

func TestPrivateKey_ImplementsSigner(t *testing.T) {
	var _ Signer = (*PrivateKey)(nil)
}
