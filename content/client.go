package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Client stores blobs in an external content service over HTTP.
type Client struct {
	apiURL string
	client *http.Client
}

// NewClientFromEnv builds a client from CONTENT_API_URL and
// CONTENT_HTTP_TIMEOUT_SEC.
func NewClientFromEnv() *Client {
	apiURL := os.Getenv("CONTENT_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:5001"
	}
	timeout := 30 * time.Second
	if raw := os.Getenv("CONTENT_HTTP_TIMEOUT_SEC"); raw != "" {
		if v, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && v > 0 {
			timeout = time.Duration(v) * time.Second
		}
	}
	return &Client{
		apiURL: strings.TrimRight(apiURL, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Put(ctx context.Context, data []byte) (string, error) {
	reqURL := fmt.Sprintf("%s/api/v0/put", c.apiURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if len(body) == 0 {
			return "", fmt.Errorf("content put failed: %s", resp.Status)
		}
		return "", fmt.Errorf("content put failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var res struct {
		Ref string `json:"ref"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", err
	}
	if res.Ref == "" {
		return "", fmt.Errorf("content put returned empty ref")
	}
	return res.Ref, nil
}

func (c *Client) Get(ctx context.Context, ref string) ([]byte, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, fmt.Errorf("content get missing ref")
	}
	reqURL := fmt.Sprintf("%s/api/v0/get?ref=%s", c.apiURL, url.QueryEscape(ref))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if len(body) == 0 {
			return nil, fmt.Errorf("content get failed: %s", resp.Status)
		}
		return nil, fmt.Errorf("content get failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return io.ReadAll(resp.Body)
}
