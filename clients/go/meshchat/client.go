// Package meshchat provides a client for the meshchat real-time chat service.
package meshchat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a meshchat API client. Token is a session token issued by the
// auth service (or cmd/mksession during development).
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a new meshchat client.
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Envelope is one delivered or stored chat message.
type Envelope struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	From           string `json:"from"`
	Username       string `json:"username,omitempty"`
	Kind           string `json:"kind"`
	Content        string `json:"content"`
	Timestamp      int64  `json:"ts"`
}

// Conversation is one chat-list entry.
type Conversation struct {
	ID           string   `json:"id"`
	Participants []string `json:"participants"`
	LastContent  string   `json:"last_content"`
	LastKind     string   `json:"last_kind"`
	LastTS       int64    `json:"last_ts"`
}

// Profile is the caller's account record.
type Profile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Tier     string `json:"tier"`
}

type conversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
}

type historyResponse struct {
	Messages []Envelope `json:"messages"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *Client) doRequest(method, path string, body io.Reader, out interface{}) error {
	req, err := http.NewRequest(method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var apiErr errorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		return json.Unmarshal(data, out)
	}
	return nil
}

// Conversations fetches the caller's chat list.
func (c *Client) Conversations() ([]Conversation, error) {
	var resp conversationsResponse
	if err := c.doRequest("GET", "/conversations", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// History fetches a page of messages, oldest first. Pass before=0 for the
// newest page; page backwards with the oldest timestamp of the prior page.
func (c *Client) History(conversationID string, limit int, before int64) ([]Envelope, error) {
	path := "/conversations/" + url.PathEscape(conversationID) + "/messages?limit=" + strconv.Itoa(limit)
	if before > 0 {
		path += "&before=" + strconv.FormatInt(before, 10)
	}
	var resp historyResponse
	if err := c.doRequest("GET", path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Me fetches the caller's profile.
func (c *Client) Me() (*Profile, error) {
	var p Profile
	if err := c.doRequest("GET", "/me", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Health checks the node's health endpoint. No auth required.
func (c *Client) Health() (map[string]interface{}, error) {
	req, err := http.NewRequest("GET", c.BaseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// Connect opens the WebSocket chat stream.
func (c *Client) Connect(ctx context.Context) (*Stream, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"
	u.RawQuery = "token=" + url.QueryEscape(c.Token)

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Host, err)
	}
	return &Stream{ws: ws}, nil
}

// Stream is a live chat connection. Reads and writes may run concurrently
// with each other but each side is single-goroutine.
type Stream struct {
	ws *websocket.Conn
}

// Event is one frame received on the stream. Delivered messages have
// Envelope set; server responses carry Type plus the relevant fields.
type Event struct {
	Type      string    `json:"type"` // empty for delivered messages
	Envelope            // delivered message fields
	Code      string    `json:"code,omitempty"`    // error frames
	Message   string    `json:"message,omitempty"` // error frames
	URL       string    `json:"url,omitempty"`     // file_upload_url frames
	Key       string    `json:"key,omitempty"`     // file_upload_url frames
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Next blocks until the next frame arrives.
func (s *Stream) Next() (*Event, error) {
	_, data, err := s.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if ev.Type == "" {
		ev.Type = ev.Kind
	}
	return &ev, nil
}

// SendChat sends a text message to a user.
func (s *Stream) SendChat(to, content string) error {
	return s.ws.WriteJSON(map[string]string{
		"type":    "chat",
		"to":      to,
		"content": content,
	})
}

// RequestUpload asks for a presigned upload URL; the answer arrives as a
// file_upload_url event.
func (s *Stream) RequestUpload(to, filename string, size int64) error {
	return s.ws.WriteJSON(map[string]interface{}{
		"type":     "file_request",
		"to":       to,
		"filename": filename,
		"size":     size,
	})
}

// NotifyUploaded sends the file message once the object is uploaded.
func (s *Stream) NotifyUploaded(to, key string) error {
	return s.ws.WriteJSON(map[string]string{
		"type": "file_uploaded",
		"to":   to,
		"key":  key,
	})
}

// Close shuts the stream down.
func (s *Stream) Close() error {
	s.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return s.ws.Close()
}
