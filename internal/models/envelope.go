package models

import (
	"sort"
	"strings"
)

// Message kinds carried by an Envelope.
const (
	KindText = "text"
	KindFile = "file"
)

// Envelope is one routed chat message plus its routing metadata.
// Timestamp is assigned once at ingress by the receiving node and is the
// canonical ordering key within a conversation; Seq breaks ties between
// envelopes stamped in the same microsecond on the same node.
type Envelope struct {
	ID             string `json:"id"` // ULID
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"from"`
	SenderName     string `json:"username,omitempty"`
	Kind           string `json:"kind"` // "text" or "file"
	Content        string `json:"content"`
	Timestamp      int64  `json:"ts"`  // Unix µs
	Seq            uint64 `json:"seq"` // Per-node monotonic
	OriginNode     string `json:"origin"`
}

// conversationSep joins participant IDs into a conversation ID.
const conversationSep = "::"

// ConversationID derives the stable, order-independent identifier for the
// conversation between the given participants. The same participant set
// always yields the same ID regardless of order.
func ConversationID(participants ...string) string {
	ids := append([]string(nil), participants...)
	sort.Strings(ids)
	return strings.Join(ids, conversationSep)
}

// Participants splits a conversation ID back into its participant IDs.
func Participants(conversationID string) []string {
	if conversationID == "" {
		return nil
	}
	return strings.Split(conversationID, conversationSep)
}

// HasParticipant reports whether userID is part of the conversation.
func HasParticipant(conversationID, userID string) bool {
	for _, p := range Participants(conversationID) {
		if p == userID {
			return true
		}
	}
	return false
}

// Conversation is the durable chat-list record: participants plus a preview
// of the most recent message.
type Conversation struct {
	ID           string   `json:"id"`
	Participants []string `json:"participants"`
	LastContent  string   `json:"last_content"`
	LastKind     string   `json:"last_kind"`
	LastTS       int64    `json:"last_ts"`
}

// previewMax bounds the preview stored in the chat list.
const previewMax = 50

// Preview renders the chat-list preview for an envelope, truncated to
// previewMax runes on a rune boundary.
func (e *Envelope) Preview() string {
	if e.Kind == KindFile {
		return "File"
	}
	runes := 0
	for i := range e.Content {
		if runes == previewMax {
			return e.Content[:i]
		}
		runes++
	}
	return e.Content
}
