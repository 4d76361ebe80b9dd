package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Envelope is the wire message exchanged with the relay server. ID is the
// message type key used for dispatch; Data carries the typed payload.
// TargetID addresses a single peer, FromID is stamped by the relay router.
type Envelope struct {
	ID       string          `json:"id"`
	Data     json.RawMessage `json:"data,omitempty"`
	TargetID string          `json:"targetId,omitempty"`
	FromID   string          `json:"fromId,omitempty"`
}

var ErrMissingType = errors.New("envelope has no message type")

// DecodeError reports a malformed wire message. The router and dispatcher
// log it and drop the envelope; the connection stays up.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode envelope: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// NewEnvelope builds an envelope with the payload marshaled into Data.
func NewEnvelope(id string, payload any) (*Envelope, error) {
	env := &Envelope{ID: id}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", id, err)
		}
		env.Data = data
	}
	return env, nil
}

// Encode serializes an envelope to wire bytes.
func Encode(env *Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// Decode parses wire bytes into an envelope. Malformed input yields a
// DecodeError rather than propagating a panic into caller control flow.
func Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if env.ID == "" {
		return nil, &DecodeError{Err: ErrMissingType}
	}
	return &env, nil
}

// DecodePayload unmarshals the envelope data into the given struct.
func (e *Envelope) DecodePayload(into any) error {
	if len(e.Data) == 0 {
		return &DecodeError{Err: fmt.Errorf("%s envelope has no data", e.ID)}
	}
	if err := json.Unmarshal(e.Data, into); err != nil {
		return &DecodeError{Err: err}
	}
	return nil
}
