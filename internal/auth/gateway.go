package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Gateway endpoint paths relative to the configured base URL.
const (
	tokenPath   = "/api/v1/oauth/token"
	refreshPath = "/api/v1/oauth/refresh"
)

// maxErrorBody bounds how much of a failed response is kept for the error.
const maxErrorBody = 512

type exchangeRequest struct {
	Code        string `json:"code"`
	RedirectURI string `json:"redirect_uri"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
	Email        string `json:"email,omitempty"`
}

// gatewayClient talks to the token gateway that holds the OAuth client secret.
type gatewayClient struct {
	baseURL    string
	httpClient *http.Client
}

// post sends body as JSON and decodes a 2xx reply into a tokenResponse.
// Non-2xx replies become a *GatewayError wrapping failure.
func (g *gatewayClient) post(ctx context.Context, op, path string, body any, failure error) (*tokenResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: encoding request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(g.baseURL, "/")+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: building request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &GatewayError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
			Err:        failure,
		}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("%s: decoding response: %w", op, err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("%s: response carried no access token", op)
	}

	return &tr, nil
}
