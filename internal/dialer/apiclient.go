package dialer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"crm-dialer/internal/calls"
)

// APIClient talks to the /v1 API on behalf of the softphone. It implements
// Recorder and Credentials.
type APIClient struct {
	BaseURL     string
	AccessToken string
	HTTP        *http.Client
}

func NewAPIClient(baseURL, accessToken string) *APIClient {
	return &APIClient{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		AccessToken: accessToken,
		HTTP:        &http.Client{Timeout: 15 * time.Second},
	}
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

func (c *APIClient) CreateCall(ctx context.Context, nc calls.NewCall) (calls.Call, error) {
	var out calls.Call
	err := c.do(ctx, http.MethodPost, "/v1/calls", nc, &out)
	return out, err
}

func (c *APIClient) LinkProviderCall(ctx context.Context, callID, providerCallID string) error {
	path := "/v1/calls/" + url.PathEscape(callID) + "/provider-call"
	return c.do(ctx, http.MethodPut, path, map[string]string{"provider_call_id": providerCallID}, nil)
}

func (c *APIClient) GetCall(ctx context.Context, callID string) (calls.Call, error) {
	var out calls.Call
	err := c.do(ctx, http.MethodGet, "/v1/calls/"+url.PathEscape(callID), nil, &out)
	return out, err
}

func (c *APIClient) Credential(ctx context.Context) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/credentials", map[string]string{}, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", fmt.Errorf("api: empty credential")
	}
	return out.Token, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	}

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
