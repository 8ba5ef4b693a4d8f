package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/hearthkeep/go-push-service/pkg/push"
)

// APIClient implements StoreClient and KeySource against the push service's
// HTTP surface. TokenProvider supplies the bearer token per request; the
// service validates it against its JWKS middleware.
type APIClient struct {
	BaseURL       string
	HTTPClient    *http.Client
	TokenProvider func(ctx context.Context) (string, error)
}

func NewAPIClient(baseURL string, httpClient *http.Client, tokens func(ctx context.Context) (string, error)) *APIClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &APIClient{
		BaseURL:       baseURL,
		HTTPClient:    httpClient,
		TokenProvider: tokens,
	}
}

type registerPayload struct {
	RecipientID string       `json:"recipient_id"`
	Endpoint    string       `json:"endpoint"`
	Keys        registerKeys `json:"keys"`
}

type registerKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

func (c *APIClient) Upsert(ctx context.Context, sub push.Subscription) error {
	payload := registerPayload{
		RecipientID: sub.RecipientID,
		Endpoint:    sub.Endpoint,
		Keys:        registerKeys{P256dh: sub.P256dh, Auth: sub.Auth},
	}
	resp, err := c.do(ctx, http.MethodPut, "/subscriptions", payload)
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("register returned status %d", resp.StatusCode)
	}
	return nil
}

type unregisterPayload struct {
	RecipientID string `json:"recipient_id"`
	Endpoint    string `json:"endpoint,omitempty"`
}

func (c *APIClient) Delete(ctx context.Context, recipientID, endpoint string) error {
	resp, err := c.do(ctx, http.MethodPost, "/subscriptions/delete", unregisterPayload{
		RecipientID: recipientID,
		Endpoint:    endpoint,
	})
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unregister returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *APIClient) Exists(ctx context.Context, recipientID string) (bool, error) {
	resp, err := c.do(ctx, http.MethodGet,
		"/subscriptions/status?recipient_id="+url.QueryEscape(recipientID), nil)
	if err != nil {
		return false, err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("status returned status %d", resp.StatusCode)
	}
	var body struct {
		Subscribed bool `json:"subscribed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("status decode failed: %w", err)
	}
	return body.Subscribed, nil
}

func (c *APIClient) EndpointActive(ctx context.Context, endpoint string) (bool, error) {
	resp, err := c.do(ctx, http.MethodGet,
		"/subscriptions/endpoint-status?endpoint="+url.QueryEscape(endpoint), nil)
	if err != nil {
		return false, err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("endpoint status returned status %d", resp.StatusCode)
	}
	var body struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("endpoint status decode failed: %w", err)
	}
	return body.Active, nil
}

// PublicSigningKey fetches the server's VAPID public key. The route is
// unauthenticated, but a token is attached when available so a single
// transport path serves all calls.
func (c *APIClient) PublicSigningKey(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/vapid-public-key", nil)
	if err != nil {
		return "", err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("public key request returned status %d", resp.StatusCode)
	}
	var body struct {
		PublicKey string `json:"public_key"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("public key decode failed: %w", err)
	}
	if body.PublicKey == "" {
		return "", fmt.Errorf("service returned an empty public key")
	}
	return body.PublicKey, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("request encode failed: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.TokenProvider != nil {
		token, err := c.TokenProvider(ctx)
		if err != nil {
			return nil, fmt.Errorf("token fetch failed: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	return c.HTTPClient.Do(req)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
