package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"colorgame/domain/entities"
)

// HTTPIdentityClient resolves connection tokens against the operator service
type HTTPIdentityClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPIdentityClient creates an identity client
func NewHTTPIdentityClient(baseURL string, timeout time.Duration) *HTTPIdentityClient {
	return &HTTPIdentityClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// LookupSession returns nil without error when the token is unknown
func (c *HTTPIdentityClient) LookupSession(ctx context.Context, token, gameID string) (*entities.PlayerProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/service/user/detail", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity request: %w", err)
	}
	req.Header.Set("token", token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity request failed: %w", err)
	}
	defer resp.Body.Close()

	// Unknown token
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(body)}
	}

	var payload struct {
		User *entities.PlayerProfile `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode identity response: %w", err)
	}
	if payload.User == nil || payload.User.PlayerID == "" {
		return nil, nil
	}
	return payload.User, nil
}
