// Package envelope frames the encrypted flow exchange: the three base64 wire
// fields on the way in, the raw base64 ciphertext body on the way out, and
// the plaintext JSON request/response exchanged inside the envelope.
package envelope

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrMalformed = errors.New("malformed flow envelope")

const ivSize = 16

// Encrypted is the decoded inbound wire message. All validation here happens
// before any cryptographic operation is attempted.
type Encrypted struct {
	FlowData []byte
	AESKey   []byte
	IV       []byte
}

type wireEnvelope struct {
	EncryptedFlowData string `json:"encrypted_flow_data"`
	EncryptedAESKey   string `json:"encrypted_aes_key"`
	InitialVector     string `json:"initial_vector"`
}

// ParseRequestBody decodes the JSON request body into an Encrypted envelope.
// Missing fields, invalid base64 and an IV that is not exactly 16 bytes all
// report ErrMalformed.
func ParseRequestBody(body []byte) (Encrypted, error) {
	var wire wireEnvelope
	if err := json.Unmarshal(body, &wire); err != nil {
		return Encrypted{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if wire.EncryptedFlowData == "" || wire.EncryptedAESKey == "" || wire.InitialVector == "" {
		return Encrypted{}, fmt.Errorf("%w: missing encryption parameters", ErrMalformed)
	}

	flowData, err := base64.StdEncoding.DecodeString(wire.EncryptedFlowData)
	if err != nil {
		return Encrypted{}, fmt.Errorf("%w: encrypted_flow_data: %v", ErrMalformed, err)
	}
	aesKey, err := base64.StdEncoding.DecodeString(wire.EncryptedAESKey)
	if err != nil {
		return Encrypted{}, fmt.Errorf("%w: encrypted_aes_key: %v", ErrMalformed, err)
	}
	iv, err := base64.StdEncoding.DecodeString(wire.InitialVector)
	if err != nil {
		return Encrypted{}, fmt.Errorf("%w: initial_vector: %v", ErrMalformed, err)
	}
	if len(iv) != ivSize {
		return Encrypted{}, fmt.Errorf("%w: initial_vector must be %d bytes, got %d", ErrMalformed, ivSize, len(iv))
	}

	return Encrypted{FlowData: flowData, AESKey: aesKey, IV: iv}, nil
}

// EncodeResponseBody wraps the sealed response for the wire. The protocol
// wants the bare base64 text as the body, not a JSON document.
func EncodeResponseBody(ciphertext []byte) []byte {
	return []byte(base64.StdEncoding.EncodeToString(ciphertext))
}
