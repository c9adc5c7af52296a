package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// GatewayClient talks to the browser-automation gateway that owns the live
// WhatsApp session. Sends go through a headless browser on the gateway side,
// so the client timeout is generous.
type GatewayClient struct {
	baseURL string
	client  *http.Client
}

func NewGatewayClient(baseURL string) *GatewayClient {
	return &GatewayClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type startRequest struct {
	Fresh bool `json:"fresh"`
}

type stateResponse struct {
	State       string `json:"state"`
	PairingCode string `json:"pairingCode"`
}

type sendRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Message     string `json:"message"`
}

type sendResponse struct {
	Message   string `json:"message"`
	MessageID string `json:"messageId"`
}

// StartSession asks the gateway to bring up a session. The gateway replies
// before the session is ready; progress is observed via SessionState.
func (c *GatewayClient) StartSession(ctx context.Context, fresh bool) error {
	body, err := json.Marshal(startRequest{Fresh: fresh})
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, http.MethodPost, "/session/start", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(raw))
	}
	return nil
}

// Logout gracefully logs the session out of WhatsApp.
func (c *GatewayClient) Logout(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodPost, "/session/logout", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(raw))
	}
	return nil
}

// PurgeCredentials deletes the stored session credentials on the gateway,
// forcing a full re-pairing on the next start.
func (c *GatewayClient) PurgeCredentials(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodDelete, "/session", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(raw))
	}
	return nil
}

// SessionState queries the gateway's authoritative session state. While the
// gateway is waiting for pairing it also returns the raw pairing code.
func (c *GatewayClient) SessionState(ctx context.Context) (string, string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/session/state", nil)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(raw))
	}

	var sr stateResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return "", "", fmt.Errorf("failed to decode json: %w body=%q", err, string(raw))
	}
	if sr.State == "" {
		return "", "", fmt.Errorf("missing state in response body=%q", string(raw))
	}

	return sr.State, sr.PairingCode, nil
}

// SendText delivers one message through the gateway session.
func (c *GatewayClient) SendText(ctx context.Context, phoneNumber, message string) (string, error) {
	body, err := json.Marshal(sendRequest{
		PhoneNumber: phoneNumber,
		Message:     message,
	})
	if err != nil {
		return "", err
	}

	resp, err := c.do(ctx, http.MethodPost, "/message", body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(raw))
	}

	var sr sendResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return "", fmt.Errorf("failed to decode json: %w body=%q", err, string(raw))
	}
	if sr.MessageID == "" {
		return "", fmt.Errorf("missing messageId in response body=%q", string(raw))
	}

	return sr.MessageID, nil
}

func (c *GatewayClient) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.client.Do(req)
}
