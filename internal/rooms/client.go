// Package rooms implements the room management wire contract:
// create, join, fetch, close, kick and ban, with uniform error envelopes.
package rooms

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kseli/kseli-go/internal/config"
	"github.com/kseli/kseli-go/internal/store"
	"github.com/kseli/kseli-go/pkg/protocol"
)

// genericErrorMessage replaces raw transport errors so they never reach
// callers.
const genericErrorMessage = "An unexpected server error occurred. Please try again later."

// ErrorEnvelope is the uniform failure shape of every room management call.
type ErrorEnvelope struct {
	ErrorMessage string            `json:"errorMessage"`
	StatusCode   int               `json:"statusCode,omitempty"`
	FieldErrors  map[string]string `json:"fieldErrors,omitempty"`
}

func (e *ErrorEnvelope) Error() string {
	return e.ErrorMessage
}

// CreateRoomRequest is the payload for creating a room.
type CreateRoomRequest struct {
	Username        string `json:"username"`
	MaxParticipants int    `json:"maxParticipants"`
}

// CreateRoomResponse is the success payload of CreateRoom.
type CreateRoomResponse struct {
	RoomID string `json:"roomId"`
	Token  string `json:"token"`
}

// JoinRoomRequest is the payload for joining a room.
type JoinRoomRequest struct {
	Username      string `json:"username"`
	RoomSecretKey string `json:"roomSecretKey"`
}

// JoinRoomResponse is the success payload of JoinRoom.
type JoinRoomResponse struct {
	Token string `json:"token"`
}

// Room is the server's snapshot of a room as seen by the caller.
type Room struct {
	UserRole        protocol.Role          `json:"userRole"`
	MaxParticipants int                    `json:"maxParticipants"`
	Participants    []protocol.Participant `json:"participants"`

	// SecretKey is only present for the room admin, to hand out invites.
	SecretKey string `json:"secretKey,omitempty"`
}

type moderationRequest struct {
	UserID uint8 `json:"userId"`
}

// Client issues room management requests. It is stateless apart from the
// cached session id and fingerprint in the profile store.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	profile *store.Store
	log     *zap.Logger
}

// New creates a room management client.
func New(cfg config.Config, profile *store.Store, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.HTTPTimeout},
		profile: profile,
		log:     log,
	}
}

// CreateRoom creates a new room owned by username. Validation failures
// surface per field in the error envelope.
func (c *Client) CreateRoom(ctx context.Context, req CreateRoomRequest) (*CreateRoomResponse, error) {
	var resp CreateRoomResponse
	if err := c.post(ctx, "/api/rooms", "", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JoinRoom joins an existing room using its invite secret.
func (c *Client) JoinRoom(ctx context.Context, roomID string, req JoinRoomRequest) (*JoinRoomResponse, error) {
	var resp JoinRoomResponse
	if err := c.post(ctx, "/api/rooms/"+roomID+"/join", "", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetRoom fetches the room snapshot. The envelope's StatusCode
// distinguishes authorization failures from server failures.
func (c *Client) GetRoom(ctx context.Context, roomID, token string) (*Room, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/rooms/"+roomID, nil)
	if err != nil {
		return nil, c.transportError(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, c.transportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		envelope := c.decodeError(body)
		envelope.StatusCode = resp.StatusCode
		return nil, envelope
	}

	var room Room
	if err := json.Unmarshal(body, &room); err != nil {
		return nil, c.transportError(err)
	}
	return &room, nil
}

// CloseRoom shuts the room down. Only the admin's token is accepted.
func (c *Client) CloseRoom(ctx context.Context, roomID, token string) error {
	return c.emptyResponse(ctx, http.MethodDelete, "/api/rooms/"+roomID, token, nil)
}

// KickUser removes a participant from the room.
func (c *Client) KickUser(ctx context.Context, roomID, token string, userID uint8) error {
	return c.emptyResponse(ctx, http.MethodPost, "/api/rooms/"+roomID+"/kick", token, moderationRequest{UserID: userID})
}

// BanUser removes a participant and prevents them from rejoining.
func (c *Client) BanUser(ctx context.Context, roomID, token string, userID uint8) error {
	return c.emptyResponse(ctx, http.MethodPost, "/api/rooms/"+roomID+"/ban", token, moderationRequest{UserID: userID})
}

// post sends a JSON body and decodes a JSON success payload.
func (c *Client) post(ctx context.Context, path, token string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return c.transportError(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return c.transportError(err)
	}
	c.setHeaders(httpReq, token)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return c.transportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.transportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.decodeError(data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return c.transportError(err)
	}
	return nil
}

// emptyResponse sends a request whose success is an empty 204 body. Any
// failure body is surfaced as an error envelope.
func (c *Client) emptyResponse(ctx context.Context, method, path, token string, payload any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return c.transportError(err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return c.transportError(err)
	}
	c.setHeaders(httpReq, token)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return c.transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.transportError(err)
	}
	return c.decodeError(data)
}

func (c *Client) setHeaders(req *http.Request, token string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("X-Session-Id", c.sessionID())
	req.Header.Set("X-Fingerprint", c.fingerprint())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// decodeError parses a failure body into an envelope, falling back to the
// generic message when the body is not a valid envelope.
func (c *Client) decodeError(body []byte) *ErrorEnvelope {
	var envelope ErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.ErrorMessage == "" && len(envelope.FieldErrors) == 0 {
		return &ErrorEnvelope{ErrorMessage: genericErrorMessage}
	}
	return &envelope
}

// transportError normalizes network and decode failures. The underlying
// error is logged but never surfaced.
func (c *Client) transportError(err error) *ErrorEnvelope {
	c.log.Warn("room request failed", zap.Error(err))
	return &ErrorEnvelope{
		ErrorMessage: genericErrorMessage,
		StatusCode:   http.StatusInternalServerError,
	}
}

const identityTTL = 30 * 24 * time.Hour
