package nftapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/50zero/pm-trader-art/internal/address"
)

const maxResponseBytes = 4 << 20

// APIError is a failed round-trip to the NFT API: a transport error, a non-2xx answer
// or a body with success=false. It never means the page is broken; callers may retry.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("nft api %s: %v", e.Op, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("nft api %s: status %d: %s", e.Op, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("nft api %s: %s", e.Op, e.Message)
	}
}

func (e *APIError) Unwrap() error { return e.Err }

// Temporary reports whether retrying the same request could succeed.
func (e *APIError) Temporary() bool {
	return e.Err != nil || e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Client talks to the NFT API. baseURL includes any path prefix, e.g. https://host/api.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  logger.With("component", "nft_api_client"),
	}
}

func (c *Client) ContractInfo(ctx context.Context) (ContractInfo, error) {
	var resp ContractInfoResponse
	if err := c.do(ctx, "contract-info", http.MethodGet, "/nft/contract-info", nil, &resp); err != nil {
		return ContractInfo{}, err
	}
	if resp.Contract == nil {
		return ContractInfo{}, &APIError{Op: "contract-info", Message: "response has no contract"}
	}
	return *resp.Contract, nil
}

func (c *Client) MintStatus(ctx context.Context, account address.Account) (MintStatus, error) {
	var resp MintStatusResponse
	path := "/nft/mint-status/" + url.PathEscape(account.String())
	if err := c.do(ctx, "mint-status", http.MethodGet, path, nil, &resp); err != nil {
		return MintStatus{}, err
	}
	status := MintStatus{HasMinted: resp.HasMinted, TokenID: resp.TokenID}
	if resp.EstimatedCost != nil {
		status.EstimatedCost = *resp.EstimatedCost
	}
	return status, nil
}

func (c *Client) PrepareMint(ctx context.Context, trader address.Account) (MintTransaction, error) {
	var resp PrepareMintResponse
	body := PrepareMintRequest{TraderAddress: trader.String()}
	if err := c.do(ctx, "prepare-mint", http.MethodPost, "/nft/prepare-mint", body, &resp); err != nil {
		return MintTransaction{}, err
	}
	if resp.Transaction == nil {
		return MintTransaction{}, &APIError{Op: "prepare-mint", Message: "response has no transaction"}
	}
	return MintTransaction{Payload: *resp.Transaction, GasEstimate: resp.GasEstimate}, nil
}

func (c *Client) TransactionStatus(ctx context.Context, txHash string, trader address.Account) (TransactionStatusResponse, error) {
	var resp TransactionStatusResponse
	body := TransactionStatusRequest{TxHash: txHash, TraderAddress: trader.String()}
	if err := c.do(ctx, "transaction-status", http.MethodPost, "/nft/transaction-status", body, &resp); err != nil {
		return TransactionStatusResponse{}, err
	}
	switch resp.Status {
	case TxPending, TxConfirmed, TxFailed:
		return resp, nil
	}
	return TransactionStatusResponse{}, &APIError{Op: "transaction-status", Message: fmt.Sprintf("unknown status %q", resp.Status)}
}

type envelope struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &APIError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &APIError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &APIError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	c.logger.Debug("nft api call", "op", op, "status", resp.StatusCode, "elapsed", time.Since(start))

	var env envelope
	envErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := firstNonEmpty(env.Error, env.Message, strings.TrimSpace(string(raw)), http.StatusText(resp.StatusCode))
		return &APIError{Op: op, StatusCode: resp.StatusCode, Message: msg}
	}
	if envErr != nil {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", envErr)}
	}
	if env.Success != nil && !*env.Success {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Message: firstNonEmpty(env.Error, env.Message, "request failed")}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// IsAPIError reports whether err came from the NFT API client.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
