package client

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/auth"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/types"
)

const defaultTimeout = 30 * time.Second

// APIError is a non-2xx response from a distributor server
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("distributor server returned status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("distributor server returned status %d (%s): %s", e.Status, e.Code, e.Message)
}

// DistributorClient talks to the claim HTTP API of a distributor server
type DistributorClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewDistributorClient creates a client for the server at baseURL
func NewDistributorClient(baseURL string, logger *zap.Logger) *DistributorClient {
	return &DistributorClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
}

// GetRoot fetches the distribution summary
func (c *DistributorClient) GetRoot(ctx context.Context) (*types.RootResponse, error) {
	var resp types.RootResponse
	if err := c.do(ctx, http.MethodGet, "/root", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetClaim fetches the claim record of address
func (c *DistributorClient) GetClaim(ctx context.Context, address common.Address) (*types.ClaimRecord, error) {
	var record types.ClaimRecord
	path := "/claims?address=" + url.QueryEscape(address.Hex())
	if err := c.do(ctx, http.MethodGet, path, nil, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// GetStatus reports whether index has been claimed
func (c *DistributorClient) GetStatus(ctx context.Context, index uint64) (*types.StatusResponse, error) {
	var status types.StatusResponse
	path := "/status?index=" + strconv.FormatUint(index, 10)
	if err := c.do(ctx, http.MethodGet, path, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// SubmitClaim posts a claim record
func (c *DistributorClient) SubmitClaim(ctx context.Context, record *types.ClaimRecord) (*types.ClaimResponse, error) {
	var resp types.ClaimResponse
	if err := c.do(ctx, http.MethodPost, "/claim", record, &resp); err != nil {
		return nil, err
	}
	c.logger.Sugar().Infow("Claim submitted", "index", resp.Index, "address", resp.Address, "amount", resp.Amount)
	return &resp, nil
}

// ClaimFor fetches the proof for address and submits it
func (c *DistributorClient) ClaimFor(ctx context.Context, address common.Address) (*types.ClaimResponse, error) {
	record, err := c.GetClaim(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch claim: %w", err)
	}
	return c.SubmitClaim(ctx, record)
}

// Drain signs a drain authorization for sequence and submits it. A nil
// amount drains the whole held balance.
func (c *DistributorClient) Drain(ctx context.Context, key *ecdsa.PrivateKey, root [32]byte, destination common.Address, amount *uint256.Int, sequence uint64) (*types.DrainResponse, error) {
	msg := &auth.DrainMessage{
		Root:        root,
		Destination: destination,
		Amount:      amount,
		Sequence:    sequence,
	}
	sig, err := msg.Sign(key)
	if err != nil {
		return nil, err
	}

	req := &types.DrainRequest{
		Destination: destination.Hex(),
		Signature:   hexutil.Encode(sig),
	}
	if amount != nil {
		req.Amount = amount.Dec()
	}

	var resp types.DrainResponse
	if err := c.do(ctx, http.MethodPost, "/drain", req, &resp); err != nil {
		return nil, err
	}
	c.logger.Sugar().Infow("Drain submitted", "sequence", resp.Sequence, "destination", resp.Destination, "amount", resp.Amount)
	return &resp, nil
}

// DrainNext reads the current root and drain count from the server and drains
// with them
func (c *DistributorClient) DrainNext(ctx context.Context, key *ecdsa.PrivateKey, destination common.Address, amount *uint256.Int) (*types.DrainResponse, error) {
	info, err := c.GetRoot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch root: %w", err)
	}
	root, err := types.ParseHash(info.Root)
	if err != nil {
		return nil, fmt.Errorf("server returned invalid root: %w", err)
	}
	return c.Drain(ctx, key, root, destination, amount, info.DrainCount)
}

func (c *DistributorClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{Status: resp.StatusCode}
		var errResp types.ErrorResponse
		if err := json.Unmarshal(raw, &errResp); err == nil && errResp.Code != "" {
			apiErr.Code = errResp.Code
			apiErr.Message = errResp.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
