package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"

	"lifetap/flow-backend/internal/envelope"
)

var (
	ErrKeyUnwrap  = errors.New("symmetric key unwrap failed")
	ErrAuthFailed = errors.New("payload authentication failed")
)

const (
	aesKeySize = 16
	ivSize     = 16
)

// Transport decrypts inbound envelopes and encrypts outbound responses with
// the key recovered from the same request. It holds the only long-lived
// secret in the process, the RSA private key.
type Transport struct {
	privateKey *rsa.PrivateKey
}

func NewTransport(key *rsa.PrivateKey) *Transport {
	return &Transport{privateKey: key}
}

// Decrypt unwraps the AES key and opens the flow payload. The returned key is
// scoped to this request/response exchange; callers must pass it to Encrypt
// and then discard it via ZeroKey.
func (t *Transport) Decrypt(env envelope.Encrypted) ([]byte, []byte, error) {
	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, t.privateKey, env.AESKey, nil)
	if err != nil {
		return nil, nil, ErrKeyUnwrap
	}
	if len(key) != aesKeySize {
		ZeroKey(key)
		return nil, nil, ErrKeyUnwrap
	}

	aead, err := newGCM(key)
	if err != nil {
		ZeroKey(key)
		return nil, nil, err
	}
	plaintext, err := aead.Open(nil, env.IV, env.FlowData, nil)
	if err != nil {
		ZeroKey(key)
		return nil, nil, ErrAuthFailed
	}
	return plaintext, key, nil
}

// Encrypt seals the response payload with the request's key and the
// complemented request IV. The tag is appended to the ciphertext. The key is
// never re-wrapped; the client already holds it.
func (t *Transport) Encrypt(plaintext, key, requestIV []byte) ([]byte, error) {
	iv := FlipIV(requestIV)
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, iv, plaintext, nil), nil
}

// FlipIV returns the bytewise bit-complement of iv. The protocol derives the
// response nonce this way so one key never seals two messages under the same
// (key, IV) pair. Self-inverse.
func FlipIV(iv []byte) []byte {
	out := make([]byte, len(iv))
	for i, b := range iv {
		out[i] = ^b
	}
	return out
}

// ZeroKey overwrites key material in place once the exchange is finished.
func ZeroKey(key []byte) {
	for i := range key {
		key[i] = 0
	}
}

// The protocol fixes the IV at 16 bytes, not the 12-byte GCM default; the
// codec rejects anything else before decryption is attempted.
func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, ivSize)
}
