package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// RPCClient talks to an escrow contract node over its HTTP JSON interface.
type RPCClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewRPCClientFromEnv builds a client from CHAIN_RPC_URL, CHAIN_RPC_API_KEY
// and CHAIN_HTTP_TIMEOUT_SEC.
func NewRPCClientFromEnv() *RPCClient {
	baseURL := os.Getenv("CHAIN_RPC_URL")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8545"
	}
	timeout := 30 * time.Second
	if raw := os.Getenv("CHAIN_HTTP_TIMEOUT_SEC"); raw != "" {
		if v, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && v > 0 {
			timeout = time.Duration(v) * time.Second
		}
	}
	return &RPCClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  strings.TrimSpace(os.Getenv("CHAIN_RPC_API_KEY")),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *RPCClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		if len(raw) == 0 {
			return fmt.Errorf("chain rpc %s failed: %s", path, resp.Status)
		}
		return fmt.Errorf("chain rpc %s failed: %s: %s", path, resp.Status, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *RPCClient) CreateAssignment(ctx context.Context, p CreateAssignmentParams) (uint64, string, error) {
	var res struct {
		Index uint64 `json:"index"`
		TxRef string `json:"tx_ref"`
	}
	payload := map[string]any{
		"owner":           p.Owner,
		"title":           p.Title,
		"metadata_ref":    p.MetadataRef,
		"reward":          p.Reward,
		"max_submissions": p.MaxSubmissions,
		"auto_verify":     p.AutoVerify,
		"expiry":          p.Expiry.UTC().Format(time.RFC3339),
	}
	if err := c.do(ctx, http.MethodPost, "/escrow/assignments", payload, &res); err != nil {
		return 0, "", err
	}
	if res.Index == 0 {
		return 0, "", fmt.Errorf("chain rpc returned zero assignment index")
	}
	return res.Index, res.TxRef, nil
}

func (c *RPCClient) RegisterSubmission(ctx context.Context, assignmentIndex uint64, submitter string) (uint64, error) {
	var res struct {
		Index uint64 `json:"index"`
	}
	payload := map[string]any{"submitter": submitter}
	path := fmt.Sprintf("/escrow/assignments/%d/submissions", assignmentIndex)
	if err := c.do(ctx, http.MethodPost, path, payload, &res); err != nil {
		return 0, err
	}
	if res.Index == 0 {
		return 0, fmt.Errorf("chain rpc returned zero submission index")
	}
	return res.Index, nil
}

func (c *RPCClient) UpdateVerification(ctx context.Context, submissionIndex uint64, score int, release bool) (string, error) {
	var res struct {
		TxRef string `json:"tx_ref"`
	}
	payload := map[string]any{"score": score, "release": release}
	path := fmt.Sprintf("/escrow/submissions/%d/verification", submissionIndex)
	if err := c.do(ctx, http.MethodPost, path, payload, &res); err != nil {
		return "", err
	}
	return res.TxRef, nil
}

func (c *RPCClient) MintCertificate(ctx context.Context, submissionIndex uint64) (uint64, string, error) {
	var res struct {
		TokenID uint64 `json:"token_id"`
		TxRef   string `json:"tx_ref"`
	}
	path := fmt.Sprintf("/escrow/submissions/%d/certificate", submissionIndex)
	if err := c.do(ctx, http.MethodPost, path, map[string]any{}, &res); err != nil {
		return 0, "", err
	}
	return res.TokenID, res.TxRef, nil
}

func (c *RPCClient) Refund(ctx context.Context, assignmentIndex uint64) (string, error) {
	var res struct {
		TxRef string `json:"tx_ref"`
	}
	path := fmt.Sprintf("/escrow/assignments/%d/refund", assignmentIndex)
	if err := c.do(ctx, http.MethodPost, path, map[string]any{}, &res); err != nil {
		return "", err
	}
	return res.TxRef, nil
}

func (c *RPCClient) AssignmentCounter(ctx context.Context) (uint64, error) {
	var res struct {
		Counter uint64 `json:"counter"`
	}
	if err := c.do(ctx, http.MethodGet, "/escrow/counter", nil, &res); err != nil {
		return 0, err
	}
	return res.Counter, nil
}

func (c *RPCClient) GetAssignment(ctx context.Context, index uint64) (AssignmentState, error) {
	var res AssignmentState
	path := fmt.Sprintf("/escrow/assignments/%d", index)
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return AssignmentState{}, err
	}
	return res, nil
}

func (c *RPCClient) GetSubmission(ctx context.Context, index uint64) (SubmissionState, error) {
	var res SubmissionState
	path := fmt.Sprintf("/escrow/submissions/%d", index)
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return SubmissionState{}, err
	}
	return res, nil
}
