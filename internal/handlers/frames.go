package handlers

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Inbound frame types accepted on a chat socket.
const (
	frameChat         = "chat"
	frameFileRequest  = "file_request"
	frameFileUploaded = "file_uploaded"
)

// Outbound frame types. Delivered messages carry their envelope kind instead.
const (
	frameUploadURL = "file_upload_url"
	frameError     = "error"
)

// Error codes carried on outbound error frames.
const (
	codeQuotaDenied    = "quota_denied"
	codeSessionExpired = "session_expired"
	codeBadRequest     = "bad_request"
	codeUnavailable    = "unavailable"
)

const (
	maxContentLen  = 8192
	maxFilenameLen = 255
	maxPeerIDLen   = 128
)

// inboundFrame is one client request on the socket.
type inboundFrame struct {
	Type     string `json:"type"`
	To       string `json:"to"`                 // peer user ID
	Content  string `json:"content,omitempty"`  // chat text
	Filename string `json:"filename,omitempty"` // file_request
	Size     int64  `json:"size,omitempty"`     // file_request, bytes
	Key      string `json:"key,omitempty"`      // file_uploaded, object key
}

// Delivered messages arrive as bare envelope JSON; their "kind" field plays
// the role of the frame type.

// uploadFrame answers a file_request with a presigned upload slot.
type uploadFrame struct {
	Type      string    `json:"type"`
	URL       string    `json:"url"`
	Key       string    `json:"key"`
	Filename  string    `json:"filename"`
	ExpiresAt time.Time `json:"expires_at"`
}

// errorFrame reports a rejected frame back to the client.
type errorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func encodeErrorFrame(code, message string) []byte {
	b, _ := json.Marshal(errorFrame{Type: frameError, Code: code, Message: message})
	return b
}

// validate checks the parts of a frame every type shares.
func (f *inboundFrame) validate(selfID string) error {
	if f.To == "" {
		return fmt.Errorf("missing recipient")
	}
	if len(f.To) > maxPeerIDLen || strings.Contains(f.To, "::") {
		return fmt.Errorf("invalid recipient")
	}
	if f.To == selfID {
		return fmt.Errorf("cannot message yourself")
	}

	switch f.Type {
	case frameChat:
		if strings.TrimSpace(f.Content) == "" {
			return fmt.Errorf("empty message")
		}
		if len(f.Content) > maxContentLen {
			return fmt.Errorf("message too long")
		}
	case frameFileRequest:
		if f.Filename == "" || len(f.Filename) > maxFilenameLen {
			return fmt.Errorf("invalid filename")
		}
		if f.Size <= 0 {
			return fmt.Errorf("invalid file size")
		}
	case frameFileUploaded:
		if f.Key == "" {
			return fmt.Errorf("missing object key")
		}
	default:
		return fmt.Errorf("unknown frame type %q", f.Type)
	}
	return nil
}
