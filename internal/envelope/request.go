package envelope

import (
	"encoding/json"
	"fmt"
)

// Actions the remote client may send inside the decrypted payload.
const (
	ActionPing         = "ping"
	ActionInit         = "INIT"
	ActionDataExchange = "data_exchange"
	ActionBack         = "BACK"
)

// Request is the plaintext JSON carried inside an inbound envelope.
type Request struct {
	Version   string         `json:"version"`
	Action    string         `json:"action"`
	Screen    string         `json:"screen,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	FlowToken string         `json:"flow_token"`
}

// Response is the plaintext JSON sealed into the outbound envelope.
type Response struct {
	Version string         `json:"version"`
	Screen  string         `json:"screen,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// DecodeRequest parses and validates the decrypted payload. The action set is
// closed; anything else is the client's fault and is reported in-band by the
// state machine, so decoding only rejects payloads that are not usable at all.
func DecodeRequest(plaintext []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(plaintext, &req); err != nil {
		return Request{}, fmt.Errorf("decode flow request: %w", err)
	}
	if req.Action == "" {
		return Request{}, fmt.Errorf("decode flow request: missing action")
	}
	return req, nil
}

func (r Response) Encode() ([]byte, error) {
	return json.Marshal(r)
}
