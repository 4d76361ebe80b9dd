package protocol

import (
	"errors"
	"testing"
)

func TestDecode(t *testing.T) {
	t.Run("Valid Envelope", func(t *testing.T) {
		env, err := Decode([]byte(`{"id":"OFFER","data":{"type":"offer","sdp":"v=0"},"targetId":"peer-2"}`))
		if err != nil {
			t.Fatalf("Failed to decode envelope: %v", err)
		}
		if env.ID != MsgOffer {
			t.Errorf("Expected id %q, got %q", MsgOffer, env.ID)
		}
		if env.TargetID != "peer-2" {
			t.Errorf("Expected targetId peer-2, got %q", env.TargetID)
		}

		var sd SessionDescription
		if err := env.DecodePayload(&sd); err != nil {
			t.Fatalf("Failed to decode payload: %v", err)
		}
		if sd.Type != "offer" || sd.SDP != "v=0" {
			t.Errorf("Unexpected payload: %+v", sd)
		}
	})

	t.Run("Malformed JSON", func(t *testing.T) {
		_, err := Decode([]byte(`{"id":`))
		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) {
			t.Fatalf("Expected DecodeError, got %v", err)
		}
	})

	t.Run("Missing Type", func(t *testing.T) {
		_, err := Decode([]byte(`{"data":{}}`))
		if err == nil {
			t.Fatal("Expected error for envelope without id")
		}
		if !errors.Is(err, ErrMissingType) {
			t.Errorf("Expected ErrMissingType, got %v", err)
		}
	})
}

func TestEnvelopeRoundtrip(t *testing.T) {
	env, err := NewEnvelope(MsgJoinBroadcastResult, JoinBroadcastResult{
		BroadcastID: "demo",
		IsHost:      true,
		Message:     "You are now hosting",
	})
	if err != nil {
		t.Fatalf("Failed to build envelope: %v", err)
	}

	raw, err := Encode(env)
	if err != nil {
		t.Fatalf("Failed to encode envelope: %v", err)
	}

	decoded, err := Decode(raw)
	if err != nil {
		t.Fatalf("Failed to decode envelope: %v", err)
	}

	var result JoinBroadcastResult
	if err := decoded.DecodePayload(&result); err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}
	if result.BroadcastID != "demo" || !result.IsHost {
		t.Errorf("Unexpected roundtrip result: %+v", result)
	}
}

func TestPayloadOf(t *testing.T) {
	t.Run("Candidate", func(t *testing.T) {
		env, err := Decode([]byte(`{"id":"CANDIDATE","data":{"candidate":"candidate:1 1 udp 2130706431 192.0.2.1 54400 typ host","sdpMid":"0"}}`))
		if err != nil {
			t.Fatalf("Failed to decode envelope: %v", err)
		}

		payload, err := PayloadOf(env)
		if err != nil {
			t.Fatalf("Failed to decode payload: %v", err)
		}

		c, ok := payload.(*Candidate)
		if !ok {
			t.Fatalf("Expected *Candidate, got %T", payload)
		}
		if c.SDPMid == nil || *c.SDPMid != "0" {
			t.Errorf("Expected sdpMid 0, got %v", c.SDPMid)
		}
	})

	t.Run("Unknown Type", func(t *testing.T) {
		env := &Envelope{ID: "Bogus", Data: []byte(`{}`)}
		if _, err := PayloadOf(env); err == nil {
			t.Fatal("Expected error for unknown message type")
		}
	})
}
