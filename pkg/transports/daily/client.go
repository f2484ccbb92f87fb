package daily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/voxmail/voxmail/pkg/errorsx"
	"github.com/voxmail/voxmail/pkg/resilience"
)

const defaultBaseURL = "https://api.daily.co/v1"

// Client manages Daily rooms and meeting tokens over the REST API. It is
// the control plane for browser-based calls; the media itself flows over
// Daily's WebRTC infrastructure, not through this process.
type Client struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

func NewClient(apiKey string) *Client {
	return &Client{
		APIKey:  apiKey,
		BaseURL: defaultBaseURL,
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Room is a created or fetched Daily room.
type Room struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	URL     string `json:"url"`
	Privacy string `json:"privacy"`
}

// Token grants entry to a room until it expires.
type Token struct {
	Token     string
	RoomName  string
	IsOwner   bool
	ExpiresAt time.Time
}

type roomRequest struct {
	Name       string         `json:"name,omitempty"`
	Privacy    string         `json:"privacy"`
	Properties map[string]any `json:"properties,omitempty"`
}

type tokenRequest struct {
	Properties tokenProperties `json:"properties"`
}

type tokenProperties struct {
	RoomName string `json:"room_name"`
	IsOwner  bool   `json:"is_owner"`
	Exp      int64  `json:"exp"`
	UserName string `json:"user_name,omitempty"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// CreateRoom creates a room that expires after ttl. A zero ttl leaves
// expiry to the Daily account default.
func (c *Client) CreateRoom(ctx context.Context, name string, ttl time.Duration) (Room, error) {
	req := roomRequest{Name: name, Privacy: "public"}
	if ttl > 0 {
		req.Properties = map[string]any{"exp": time.Now().Add(ttl).Unix()}
	}
	var room Room
	if err := c.do(ctx, http.MethodPost, "/rooms", req, &room); err != nil {
		return Room{}, errorsx.Wrap(err, errorsx.ReasonRoomCreate)
	}
	return room, nil
}

// GetRoom fetches a room by name. A missing room is an error because
// callers only look up rooms they just created.
func (c *Client) GetRoom(ctx context.Context, name string) (Room, error) {
	var room Room
	if err := c.do(ctx, http.MethodGet, "/rooms/"+name, nil, &room); err != nil {
		return Room{}, err
	}
	return room, nil
}

// DeleteRoom removes a room once its call has ended.
func (c *Client) DeleteRoom(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/rooms/"+name, nil, nil)
}

// CreateToken mints a meeting token for a room, valid for ttl.
func (c *Client) CreateToken(ctx context.Context, roomName string, isOwner bool, ttl time.Duration) (Token, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	exp := time.Now().Add(ttl)
	req := tokenRequest{Properties: tokenProperties{
		RoomName: roomName,
		IsOwner:  isOwner,
		Exp:      exp.Unix(),
	}}
	var resp tokenResponse
	if err := c.do(ctx, http.MethodPost, "/meeting-tokens", req, &resp); err != nil {
		return Token{}, errorsx.Wrap(err, errorsx.ReasonTokenCreate)
	}
	return Token{
		Token:     resp.Token,
		RoomName:  roomName,
		IsOwner:   isOwner,
		ExpiresAt: exp,
	}, nil
}

// CreateRoomAndToken provisions both in one shot for the /start flow.
func (c *Client) CreateRoomAndToken(ctx context.Context, roomTTL, tokenTTL time.Duration) (Room, Token, error) {
	room, err := c.CreateRoom(ctx, "", roomTTL)
	if err != nil {
		return Room{}, Token{}, err
	}
	token, err := c.CreateToken(ctx, room.Name, true, tokenTTL)
	if err != nil {
		return Room{}, Token{}, err
	}
	return room, token, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		raw, _ := io.ReadAll(resp.Body)
		return resilience.RateLimitError{Provider: "daily", Message: string(raw)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("daily: %s %s: status %d: %s", method, path, resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) httpClient() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return http.DefaultClient
}
