package handlers

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestInboundFrameValidate(t *testing.T) {
	tests := []struct {
		name    string
		frame   inboundFrame
		wantErr bool
	}{
		{"valid chat", inboundFrame{Type: "chat", To: "bob", Content: "hi"}, false},
		{"missing recipient", inboundFrame{Type: "chat", Content: "hi"}, true},
		{"self message", inboundFrame{Type: "chat", To: "alice", Content: "hi"}, true},
		{"separator in recipient", inboundFrame{Type: "chat", To: "bob::eve", Content: "hi"}, true},
		{"empty content", inboundFrame{Type: "chat", To: "bob", Content: "   "}, true},
		{"oversized content", inboundFrame{Type: "chat", To: "bob", Content: strings.Repeat("x", maxContentLen+1)}, true},
		{"valid file request", inboundFrame{Type: "file_request", To: "bob", Filename: "a.pdf", Size: 1024}, false},
		{"file request without size", inboundFrame{Type: "file_request", To: "bob", Filename: "a.pdf"}, true},
		{"file request without name", inboundFrame{Type: "file_request", To: "bob", Size: 10}, true},
		{"valid file uploaded", inboundFrame{Type: "file_uploaded", To: "bob", Key: "uploads/alice/x-a.pdf"}, false},
		{"file uploaded without key", inboundFrame{Type: "file_uploaded", To: "bob"}, true},
		{"unknown type", inboundFrame{Type: "subscribe", To: "bob"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.frame.validate("alice")
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestErrorFrameEncoding(t *testing.T) {
	b := encodeErrorFrame(codeQuotaDenied, "message limit reached")

	var decoded errorFrame
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != frameError || decoded.Code != codeQuotaDenied {
		t.Errorf("got %+v", decoded)
	}
}
