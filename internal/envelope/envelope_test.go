package envelope

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
)

func genKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return key
}

func TestWrapUnwrapRSARoundTrip(t *testing.T) {
	key := genKey(t)
	plaintext := []byte("heartbeat status record")

	ciphertext, err := WrapRSA(&key.PublicKey, plaintext)
	if err != nil {
		t.Fatalf("WrapRSA: %v", err)
	}
	got, err := UnwrapRSA(key, ciphertext)
	if err != nil {
		t.Fatalf("UnwrapRSA: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("got %q, want %q", got, plaintext)
	}
}

func TestWrapRSATooLarge(t *testing.T) {
	key := genKey(t)
	plaintext := bytes.Repeat([]byte{'x'}, MaxRSAPlaintext+1)
	if _, err := WrapRSA(&key.PublicKey, plaintext); !errors.Is(err, ErrTooLarge) {
		t.Errorf("err = %v, want ErrTooLarge", err)
	}
}

func TestWrapRSAAtLimit(t *testing.T) {
	key := genKey(t)
	plaintext := bytes.Repeat([]byte{'x'}, MaxRSAPlaintext)
	if _, err := WrapRSA(&key.PublicKey, plaintext); err != nil {
		t.Errorf("unexpected error at exact limit: %v", err)
	}
}

func TestWrapUnwrapHybridRoundTrip(t *testing.T) {
	key := genKey(t)
	plaintext := bytes.Repeat([]byte{0x42}, 64*1024) // image-sized blob

	sealed, err := WrapHybrid(&key.PublicKey, plaintext)
	if err != nil {
		t.Fatalf("WrapHybrid: %v", err)
	}
	got, err := UnwrapHybrid(key, sealed)
	if err != nil {
		t.Fatalf("UnwrapHybrid: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Error("round-tripped plaintext does not match original")
	}
}

func TestUnwrapHybridRejectsTampering(t *testing.T) {
	key := genKey(t)
	sealed, err := WrapHybrid(&key.PublicKey, []byte("tamper me"))
	if err != nil {
		t.Fatal(err)
	}
	sealed[len(sealed)-1] ^= 0xFF
	if _, err := UnwrapHybrid(key, sealed); err == nil {
		t.Error("expected tampering to be detected")
	}
}
