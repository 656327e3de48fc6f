package apify

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

	"bitbucket.org/reelpulse/reels_backend/config"
)

// APIError is a non-2xx answer from the provider. It is kept as a typed
// error so callers can log status and body without string matching.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("apify api error %d: %s", e.StatusCode, e.Body)
}

// Client talks to the Apify v2 REST API: starting actor runs and reading
// dataset items back.
type Client struct {
	baseURL string
	token   string
	actor   string
	http    *http.Client
}

func NewClient(settings *config.Settings) *Client {
	return &Client{
		baseURL: settings.ApifyBaseURL,
		token:   settings.ApifyToken,
		actor:   settings.ApifyActor,
		http:    &http.Client{Timeout: settings.ProviderTimeout},
	}
}

type startRunRequest struct {
	Input    RunInput     `json:"input"`
	Webhooks []RunWebhook `json:"webhooks,omitempty"`
}

type startRunResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// StartRun submits one actor run and returns the provider run id. The run
// executes asynchronously; completion arrives via the registered webhook.
func (c *Client) StartRun(ctx context.Context, input RunInput, webhooks ...RunWebhook) (string, error) {
	endpoint := fmt.Sprintf("%s/acts/%s/runs?token=%s", c.baseURL, c.actor, url.QueryEscape(c.token))

	body, err := json.Marshal(startRunRequest{Input: input, Webhooks: webhooks})
	if err != nil {
		return "", err
	}

	raw, err := c.do(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	var parsed startRunResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode run response: %w", err)
	}
	return parsed.Data.ID, nil
}

// DatasetItems fetches every item of a finished run's default dataset.
func (c *Client) DatasetItems(ctx context.Context, datasetID string) ([]PostRecord, error) {
	endpoint := fmt.Sprintf("%s/datasets/%s/items?token=%s&format=json",
		c.baseURL, url.PathEscape(datasetID), url.QueryEscape(c.token))

	raw, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var items []PostRecord
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode dataset %s: %w", datasetID, err)
	}
	return items, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.http.Timeout+time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return raw, nil
}
