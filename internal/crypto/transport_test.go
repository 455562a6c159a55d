package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"testing"

	"lifetap/flow-backend/internal/envelope"
)

// clientSeal builds an inbound envelope the way the remote platform does:
// wrap the AES key with the endpoint's public key, seal the payload under
// the request IV.
func clientSeal(t *testing.T, pub *rsa.PublicKey, key, iv, plaintext []byte) envelope.Encrypted {
	t.Helper()
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, key, nil)
	if err != nil {
		t.Fatalf("wrap key: %v", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		t.Fatalf("new gcm: %v", err)
	}
	return envelope.Encrypted{
		FlowData: aead.Seal(nil, iv, plaintext, nil),
		AESKey:   wrapped,
		IV:       append([]byte(nil), iv...),
	}
}

func clientOpen(t *testing.T, key, iv, ciphertext []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		t.Fatalf("new gcm: %v", err)
	}
	plain, err := aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		t.Fatalf("client open: %v", err)
	}
	return plain
}

func testKeyMaterial(t *testing.T) (*rsa.PrivateKey, []byte, []byte) {
	t.Helper()
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	aesKey := make([]byte, 16)
	iv := make([]byte, 16)
	if _, err := rand.Read(aesKey); err != nil {
		t.Fatalf("rand: %v", err)
	}
	if _, err := rand.Read(iv); err != nil {
		t.Fatalf("rand: %v", err)
	}
	return rsaKey, aesKey, iv
}

func TestFlipIVSelfInverse(t *testing.T) {
	iv := []byte{0x00, 0xFF, 0x55, 0xAA, 0x01, 0x80, 0x7F, 0xFE, 0x10, 0x20, 0x30, 0x40, 0x50, 0x60, 0x70, 0x0F}
	flipped := FlipIV(iv)
	if bytes.Equal(flipped, iv) {
		t.Fatalf("flip must change the IV")
	}
	if !bytes.Equal(FlipIV(flipped), iv) {
		t.Fatalf("flip is not self-inverse")
	}
	for i := range iv {
		if flipped[i] != ^iv[i] {
			t.Fatalf("byte %d: want bit complement, got %02x from %02x", i, flipped[i], iv[i])
		}
	}
}

func TestDecryptRecoversClientPlaintext(t *testing.T) {
	rsaKey, aesKey, iv := testKeyMaterial(t)
	transport := NewTransport(rsaKey)
	want := []byte(`{"version":"3.0","action":"ping"}`)

	env := clientSeal(t, &rsaKey.PublicKey, aesKey, iv, want)
	got, key, err := transport.Decrypt(env)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	defer ZeroKey(key)
	if !bytes.Equal(got, want) {
		t.Fatalf("unexpected plaintext: %q", got)
	}
	if !bytes.Equal(key, aesKey) {
		t.Fatalf("unwrapped key does not match")
	}
}

func TestEncryptOpensUnderFlippedIV(t *testing.T) {
	rsaKey, aesKey, iv := testKeyMaterial(t)
	transport := NewTransport(rsaKey)
	want := []byte(`{"version":"3.0","screen":"SUCCESS"}`)

	ciphertext, err := transport.Encrypt(want, aesKey, iv)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	got := clientOpen(t, aesKey, FlipIV(iv), ciphertext)
	if !bytes.Equal(got, want) {
		t.Fatalf("round trip mismatch: %q", got)
	}
}

func TestDecryptTamperedPayloadFails(t *testing.T) {
	rsaKey, aesKey, iv := testKeyMaterial(t)
	transport := NewTransport(rsaKey)
	env := clientSeal(t, &rsaKey.PublicKey, aesKey, iv, []byte(`{"action":"INIT"}`))

	// Tamper one ciphertext byte and one tag byte (the final 16 bytes).
	for _, idx := range []int{0, len(env.FlowData) - 1} {
		mutated := clientSeal(t, &rsaKey.PublicKey, aesKey, iv, []byte(`{"action":"INIT"}`))
		mutated.FlowData[idx] ^= 0x01
		plain, _, err := transport.Decrypt(mutated)
		if !errors.Is(err, ErrAuthFailed) {
			t.Fatalf("tamper at %d: want ErrAuthFailed, got %v", idx, err)
		}
		if plain != nil {
			t.Fatalf("tamper at %d: leaked plaintext", idx)
		}
	}
}

func TestDecryptRejectsWrongSizeKey(t *testing.T) {
	rsaKey, _, iv := testKeyMaterial(t)
	transport := NewTransport(rsaKey)

	longKey := make([]byte, 32)
	if _, err := rand.Read(longKey); err != nil {
		t.Fatalf("rand: %v", err)
	}
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, &rsaKey.PublicKey, longKey, nil)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	_, _, err = transport.Decrypt(envelope.Encrypted{FlowData: []byte("x"), AESKey: wrapped, IV: iv})
	if !errors.Is(err, ErrKeyUnwrap) {
		t.Fatalf("want ErrKeyUnwrap for 32-byte key, got %v", err)
	}
}

func TestDecryptRejectsCorruptedKeyCiphertext(t *testing.T) {
	rsaKey, aesKey, iv := testKeyMaterial(t)
	transport := NewTransport(rsaKey)
	env := clientSeal(t, &rsaKey.PublicKey, aesKey, iv, []byte(`{"action":"ping"}`))
	env.AESKey[0] ^= 0x01

	_, _, err := transport.Decrypt(env)
	if !errors.Is(err, ErrKeyUnwrap) {
		t.Fatalf("want ErrKeyUnwrap, got %v", err)
	}
}

func TestParsePrivateKeyPEMForms(t *testing.T) {
	rsaKey, _, _ := testKeyMaterial(t)

	pkcs1 := pemEncode(t, "RSA PRIVATE KEY", x509PKCS1(t, rsaKey))
	if _, err := ParsePrivateKeyPEM(pkcs1); err != nil {
		t.Fatalf("pkcs1 parse failed: %v", err)
	}

	pkcs8 := pemEncode(t, "PRIVATE KEY", x509PKCS8(t, rsaKey))
	if _, err := ParsePrivateKeyPEM(pkcs8); err != nil {
		t.Fatalf("pkcs8 parse failed: %v", err)
	}

	if _, err := ParsePrivateKeyPEM([]byte("not a key")); !errors.Is(err, ErrNoPrivateKey) {
		t.Fatalf("want ErrNoPrivateKey, got %v", err)
	}
}
