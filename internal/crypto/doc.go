// Package crypto implements the transport layer of the encrypted flow
// exchange: RSA-OAEP unwrap of the per-request AES key and AES-128-GCM
// decryption/encryption of the flow payload.
//
// The wire primitives are fixed by the remote protocol and must not change:
// OAEP uses SHA-256 for both the hash and MGF1, the symmetric key is exactly
// 16 bytes, the GCM tag is appended to the ciphertext, and the response IV is
// the bytewise complement of the request IV.
package crypto
