package domain

import (
	"errors"
	"testing"
)

func TestSignalValidate(t *testing.T) {
	target := NewConnID()

	tests := []struct {
		name string
		sig  Signal
		ok   bool
	}{
		{"offer", NewOffer(target, "v=0"), true},
		{"answer", NewAnswer(target, "v=0"), true},
		{"candidate", NewICECandidate(target, []byte(`{"candidate":"x"}`)), true},
		{"end call", NewEndCall(target), true},
		{"offer without sdp", NewOffer(target, ""), false},
		{"answer without sdp", NewAnswer(target, ""), false},
		{"candidate without body", NewICECandidate(target, nil), false},
		{"no target", NewEndCall(ConnID{}), false},
		{"presence is not a signal", Signal{Kind: EventPresence, Target: target}, false},
		{"empty kind", Signal{Target: target}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sig.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrProtocol) {
				t.Fatalf("expected ErrProtocol, got %v", err)
			}
		})
	}
}

func TestConnIDText(t *testing.T) {
	id := NewConnID()
	b, err := id.MarshalText()
	if err != nil {
		t.Fatal(err)
	}

	var back ConnID
	if err := back.UnmarshalText(b); err != nil {
		t.Fatal(err)
	}
	if back != id {
		t.Fatalf("got %s, want %s", back, id)
	}
	if len(id.Short()) != 8 {
		t.Fatalf("short id %q", id.Short())
	}
	if err := back.UnmarshalText([]byte("not-an-id")); err == nil {
		t.Fatalf("expected parse error")
	}
}
