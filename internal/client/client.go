// Package client is a small Go client for the gateway API used by the CLI.
package client

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

	"github.com/rsclarke/botgate/internal/api"
)

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// NewClient creates a client. token may be empty when the gateway runs
// without authorization.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// StatusError is a non-success reply from the gateway.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return e.Message
}

func (c *Client) ListBots(ctx context.Context) ([]api.BotResponse, error) {
	var bots []api.BotResponse
	if _, err := c.do(ctx, http.MethodGet, "/bots", nil, &bots, http.StatusOK); err != nil {
		return nil, err
	}
	return bots, nil
}

func (c *Client) RegisterBot(ctx context.Context, req api.RegisterBotRequest) (*api.BotResponse, error) {
	var bot api.BotResponse
	if _, err := c.do(ctx, http.MethodPost, "/bot", req, &bot, http.StatusOK); err != nil {
		return nil, err
	}
	return &bot, nil
}

func (c *Client) DeleteBot(ctx context.Context, name string) error {
	_, err := c.do(ctx, http.MethodDelete, "/bot", api.DeleteBotRequest{Name: name}, nil, http.StatusOK)
	return err
}

func (c *Client) History(ctx context.Context, bot string) ([]api.InteractionResponse, error) {
	var records []api.InteractionResponse
	path := "/bot/" + url.PathEscape(bot) + "/history"
	if _, err := c.do(ctx, http.MethodGet, path, nil, &records, http.StatusOK); err != nil {
		return nil, err
	}
	return records, nil
}

// Integrations returns the aggregated integration settings, scoped to bot
// when it is non-empty.
func (c *Client) Integrations(ctx context.Context, bot string) ([]api.IntegrationSettings, error) {
	path := "/integrations"
	if bot != "" {
		path += "?" + url.Values{"bot": {bot}}.Encode()
	}
	var settings []api.IntegrationSettings
	if _, err := c.do(ctx, http.MethodGet, path, nil, &settings, http.StatusOK); err != nil {
		return nil, err
	}
	return settings, nil
}

// RegisterIntegration registers or upgrades an integration and reports
// what the gateway did.
func (c *Client) RegisterIntegration(ctx context.Context, req api.RegisterIntegrationRequest) (string, error) {
	status, err := c.do(ctx, http.MethodPost, "/integration", req, nil,
		http.StatusOK, http.StatusNoContent, http.StatusSeeOther)
	if err != nil {
		return "", err
	}
	switch status {
	case http.StatusNoContent:
		return "upgraded", nil
	case http.StatusSeeOther:
		return "already registered", nil
	}
	return "registered", nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, accept ...int) (int, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return 0, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	ok := false
	for _, s := range accept {
		if resp.StatusCode == s {
			ok = true
			break
		}
	}
	if !ok {
		return resp.StatusCode, parseError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func parseError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return &StatusError{Status: resp.StatusCode}
	}

	var errResp api.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return &StatusError{Status: resp.StatusCode, Message: fmt.Sprintf("request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}
	return &StatusError{Status: resp.StatusCode, Message: errResp.Error}
}
