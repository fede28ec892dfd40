// Package directory is the remote directory/API collaborator: conversation,
// user and sticker lookups backing lazy denormalization during ingestion.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/helia-im/helia/internal/store"
	"go.uber.org/zap"
)

// ErrNotFound is the permanent missing-resource condition (404-equivalent).
// Callers abandon the operation instead of retrying.
var ErrNotFound = errors.New("directory: not found")

// ConversationResponse is the remote conversation record with membership.
type ConversationResponse struct {
	ConversationID string        `json:"conversation_id"`
	OwnerID        string        `json:"owner_id"`
	Category       string        `json:"category"`
	Name           string        `json:"name"`
	Participants   []Participant `json:"participants"`
}

// Participant is one remote membership entry.
type Participant struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// API is the directory contract consumed by the ingestion pipeline.
type API interface {
	FetchConversation(ctx context.Context, conversationID string) (*ConversationResponse, error)
	FetchUser(ctx context.Context, userID string) (*store.User, error)
	FetchUsers(ctx context.Context, userIDs []string) ([]store.User, error)
	FetchSticker(ctx context.Context, stickerID string) (*store.Sticker, error)
}

// Client is the HTTP implementation of API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a directory client for the given base URL.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("directory get %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("directory get %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// FetchConversation returns a conversation plus its participants.
func (c *Client) FetchConversation(ctx context.Context, conversationID string) (*ConversationResponse, error) {
	var out ConversationResponse
	if err := c.get(ctx, "/conversations/"+conversationID, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchUser returns a single user record.
func (c *Client) FetchUser(ctx context.Context, userID string) (*store.User, error) {
	var out store.User
	if err := c.get(ctx, "/users/"+userID, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchUsers returns a batch of user records.
func (c *Client) FetchUsers(ctx context.Context, userIDs []string) ([]store.User, error) {
	var out []store.User
	if err := c.get(ctx, "/users?ids="+strings.Join(userIDs, ","), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchSticker returns a sticker asset record.
func (c *Client) FetchSticker(ctx context.Context, stickerID string) (*store.Sticker, error) {
	var out store.Sticker
	if err := c.get(ctx, "/stickers/"+stickerID, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
