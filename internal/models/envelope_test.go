package models

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestConversationIDSymmetric(t *testing.T) {
	tests := []struct {
		name string
		a    []string
		b    []string
	}{
		{"two participants", []string{"alice", "bob"}, []string{"bob", "alice"}},
		{"three participants", []string{"c", "a", "b"}, []string{"b", "c", "a"}},
		{"same participant set", []string{"u1", "u2"}, []string{"u1", "u2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, want := ConversationID(tt.a...), ConversationID(tt.b...); got != want {
				t.Errorf("ConversationID not order-independent: %q vs %q", got, want)
			}
		})
	}
}

func TestConversationIDFormat(t *testing.T) {
	if got := ConversationID("B", "A"); got != "A::B" {
		t.Errorf("ConversationID(B, A) = %q, want %q", got, "A::B")
	}
}

func TestParticipantsRoundTrip(t *testing.T) {
	id := ConversationID("bob", "alice")
	got := Participants(id)
	if len(got) != 2 || got[0] != "alice" || got[1] != "bob" {
		t.Fatalf("Participants(%q) = %v", id, got)
	}
	if Participants("") != nil {
		t.Error("Participants(\"\") should be nil")
	}
}

func TestHasParticipant(t *testing.T) {
	id := ConversationID("alice", "bob")
	if !HasParticipant(id, "alice") {
		t.Error("alice should be a participant")
	}
	if HasParticipant(id, "carol") {
		t.Error("carol should not be a participant")
	}
}

func TestEnvelopePreview(t *testing.T) {
	long := ""
	for i := 0; i < 10; i++ {
		long += "0123456789"
	}

	tests := []struct {
		name string
		env  Envelope
		want string
	}{
		{"file message", Envelope{Kind: KindFile, Content: "uploads/u1/key"}, "File"},
		{"short text", Envelope{Kind: KindText, Content: "hi"}, "hi"},
		{"long text truncated", Envelope{Kind: KindText, Content: long}, long[:50]},
		{"multibyte truncated on rune boundary", Envelope{Kind: KindText, Content: strings.Repeat("é", 60)}, strings.Repeat("é", 50)},
		{"exactly at the limit", Envelope{Kind: KindText, Content: strings.Repeat("あ", 50)}, strings.Repeat("あ", 50)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.env.Preview()
			if got != tt.want {
				t.Errorf("Preview() = %q, want %q", got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("Preview() produced invalid UTF-8: %q", got)
			}
		})
	}
}

func TestProfileTier(t *testing.T) {
	free := &Profile{ID: "u1"}
	if free.Tier() != TierFree {
		t.Errorf("Tier() = %q, want %q", free.Tier(), TierFree)
	}
	prem := &Profile{ID: "u2", Premium: true}
	if prem.Tier() != TierPremium {
		t.Errorf("Tier() = %q, want %q", prem.Tier(), TierPremium)
	}
	var nilProfile *Profile
	if nilProfile.Tier() != TierFree {
		t.Error("nil profile should default to free tier")
	}
}
