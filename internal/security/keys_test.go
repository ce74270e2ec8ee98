package security

import (
	"bytes"
	"testing"
)

func TestGenerateSessionKey(t *testing.T) {
	a, err := GenerateSessionKey(32)
	if err != nil {
		t.Fatalf("GenerateSessionKey: %v", err)
	}
	if len(a) != 32 {
		t.Fatalf("len = %d, want 32", len(a))
	}
	b, _ := GenerateSessionKey(32)
	if bytes.Equal(a, b) {
		t.Error("two generated keys are equal")
	}
	if _, err := GenerateSessionKey(0); err != ErrInvalidKey {
		t.Errorf("zero length: want ErrInvalidKey, got %v", err)
	}
}

func TestEncodeDecodeKey(t *testing.T) {
	key := []byte{0xfb, 0xff, 0x00, 0x10, 0x20}
	enc := EncodeKey(key)
	if bytes.ContainsAny([]byte(enc), "+/=") {
		t.Errorf("EncodeKey = %q, want unpadded base64url", enc)
	}
	got, err := DecodeKey(enc)
	if err != nil || !bytes.Equal(got, key) {
		t.Errorf("DecodeKey = %x, %v", got, err)
	}
	padded, err := DecodeKey(enc + "===")
	if err == nil && !bytes.Equal(padded, key) {
		t.Errorf("padded decode = %x", padded)
	}
	if _, err := DecodeKey(""); err != ErrInvalidKey {
		t.Errorf("empty: want ErrInvalidKey, got %v", err)
	}
	if _, err := DecodeKey("not base64!"); err != ErrInvalidKey {
		t.Errorf("garbage: want ErrInvalidKey, got %v", err)
	}
}

func TestKeyFingerprint(t *testing.T) {
	fp := KeyFingerprint([]byte("k"))
	if len(fp) != 12 {
		t.Errorf("fingerprint len = %d", len(fp))
	}
	if fp == KeyFingerprint([]byte("j")) {
		t.Error("different keys share a fingerprint")
	}
}
