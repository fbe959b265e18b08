package server

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/auth"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/claims"
	memoryLedger "github.com/Layr-Labs/merkle-distributor-go/pkg/ledger/memory"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/persistence"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/persistence/memory"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/testutil"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/types"
)

var (
	holder      = common.HexToAddress("0x0000000000000000000000000000000000000f00")
	destination = common.HexToAddress("0x0000000000000000000000000000000000000bee")
	windowStart = time.Unix(1_700_000_000, 0)
	windowEnd   = windowStart.Add(24 * time.Hour)
)

type testServer struct {
	server   *Server
	dist     *types.Distribution
	ledger   *memoryLedger.InMemoryLedger
	adminKey *ecdsa.PrivateKey
	now      time.Time
}

func newTestServer(t *testing.T, cfg *Config) *testServer {
	t.Helper()
	logger := testutil.NewTestLogger(t)
	dist := testutil.BuildTestDistribution(t, 4)
	adminKey, admin := testutil.NewTestKey(t)

	ledger := memoryLedger.NewInMemoryLedger(holder, logger)
	require.NoError(t, ledger.Mint(holder, dist.TokenTotal))

	registry, err := claims.NewRegistry(&claims.RegistryConfig{
		Root:          dist.Root,
		WindowStart:   windowStart,
		WindowEnd:     windowEnd,
		Administrator: admin,
		Holder:        holder,
		ClaimCount:    uint64(len(dist.Claims)),
	}, memory.NewMemoryPersistence(), ledger, logger)
	require.NoError(t, err)

	ts := &testServer{
		dist:     dist,
		ledger:   ledger,
		adminKey: adminKey,
		now:      windowStart.Add(time.Hour),
	}
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.Clock = func() time.Time { return ts.now }

	ts.server, err = NewServer(cfg, registry, dist, logger)
	require.NoError(t, err)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	ts.server.GetHandler().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) types.ErrorResponse {
	t.Helper()
	var resp types.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestNewServer_RootMismatch(t *testing.T) {
	ts := newTestServer(t, nil)
	other := testutil.BuildTestDistribution(t, 5)
	_, err := NewServer(&Config{}, ts.server.registry, other, testutil.NewTestLogger(t))
	assert.Error(t, err)
}

func TestHandleGetRoot(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodGet, "/root", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	var resp types.RootResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, persistence.RootKey(ts.dist.Root), resp.Root)
	assert.Equal(t, ts.dist.TokenTotal.Dec(), resp.TokenTotal)
	assert.Equal(t, 4, resp.ClaimCount)
	assert.Equal(t, windowStart.Unix(), resp.WindowStart)
	assert.Equal(t, windowEnd.Unix(), resp.WindowEnd)
	assert.Equal(t, holder.Hex(), resp.Holder)

	w = ts.do(t, http.MethodPost, "/root", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandleGetClaim(t *testing.T) {
	ts := newTestServer(t, nil)
	claim := ts.dist.Claims[1]

	w := ts.do(t, http.MethodGet, "/claims?address="+strings.ToLower(claim.Account.Hex()), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var record types.ClaimRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &record))
	assert.Equal(t, *types.NewClaimRecord(claim), record)

	w = ts.do(t, http.MethodGet, "/claims?address="+destination.Hex(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, types.CodeNotFound, decodeError(t, w).Code)

	w = ts.do(t, http.MethodGet, "/claims?address=nope", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleGetStatus(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodGet, "/status?index=0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status types.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.False(t, status.Claimed)

	w = ts.do(t, http.MethodPost, "/claim", types.NewClaimRecord(ts.dist.Claims[0]))
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/status?index=0", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.True(t, status.Claimed)

	w = ts.do(t, http.MethodGet, "/status?index=4", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, types.CodeIndexOutOfRange, decodeError(t, w).Code)

	w = ts.do(t, http.MethodGet, "/status?index=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleClaim(t *testing.T) {
	ts := newTestServer(t, nil)
	claim := ts.dist.Claims[2]

	t.Run("Method not allowed", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/claim", nil)
		require.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})

	t.Run("Invalid JSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/claim", bytes.NewReader([]byte("invalid json")))
		w := httptest.NewRecorder()
		ts.server.GetHandler().ServeHTTP(w, req)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, types.CodeInvalidRequest, decodeError(t, w).Code)
	})

	t.Run("Invalid proof", func(t *testing.T) {
		record := types.NewClaimRecord(claim)
		record.Amount = "1"
		w := ts.do(t, http.MethodPost, "/claim", record)
		require.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, types.CodeInvalidProof, decodeError(t, w).Code)
	})

	t.Run("Paid", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/claim", types.NewClaimRecord(claim))
		require.Equal(t, http.StatusOK, w.Code)

		var resp types.ClaimResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, claim.Index, resp.Index)
		assert.Equal(t, claim.Account.Hex(), resp.Address)
		assert.Equal(t, claim.Amount.Dec(), resp.Amount)
		assert.Equal(t, types.TxStatusConfirmed, resp.TxStatus)

		balance, err := ts.ledger.BalanceOf(context.Background(), claim.Account)
		require.NoError(t, err)
		assert.Equal(t, claim.Amount.Uint64(), balance.Uint64())
	})

	t.Run("Already claimed", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/claim", types.NewClaimRecord(claim))
		require.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, types.CodeAlreadyClaimed, decodeError(t, w).Code)
	})
}

func TestHandleClaim_Window(t *testing.T) {
	ts := newTestServer(t, nil)
	record := types.NewClaimRecord(ts.dist.Claims[0])

	ts.now = windowStart.Add(-time.Minute)
	w := ts.do(t, http.MethodPost, "/claim", record)
	require.Equal(t, http.StatusTooEarly, w.Code)
	assert.Equal(t, types.CodeWindowNotOpen, decodeError(t, w).Code)

	ts.now = windowEnd.Add(time.Minute)
	w = ts.do(t, http.MethodPost, "/claim", record)
	require.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, types.CodeWindowElapsed, decodeError(t, w).Code)
}

func TestHandleClaim_RateLimited(t *testing.T) {
	ts := newTestServer(t, &Config{ClaimRatePerSecond: 0.001, ClaimBurst: 1})
	record := types.NewClaimRecord(ts.dist.Claims[0])

	w := ts.do(t, http.MethodPost, "/claim", record)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodPost, "/claim", types.NewClaimRecord(ts.dist.Claims[1]))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, types.CodeRateLimited, decodeError(t, w).Code)
}

func (ts *testServer) signDrain(t *testing.T, key *ecdsa.PrivateKey, amount *uint256.Int, sequence uint64) string {
	t.Helper()
	msg := &auth.DrainMessage{
		Root:        ts.dist.Root,
		Destination: destination,
		Amount:      amount,
		Sequence:    sequence,
	}
	sig, err := msg.Sign(key)
	require.NoError(t, err)
	return hexutil.Encode(sig)
}

func TestHandleDrain(t *testing.T) {
	ts := newTestServer(t, nil)
	total := ts.dist.TokenTotal.Uint64()

	t.Run("Signed by someone else", func(t *testing.T) {
		other, _ := testutil.NewTestKey(t)
		w := ts.do(t, http.MethodPost, "/drain", &types.DrainRequest{
			Destination: destination.Hex(),
			Amount:      "5",
			Signature:   ts.signDrain(t, other, uint256.NewInt(5), 0),
		})
		require.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, types.CodeNotAuthorized, decodeError(t, w).Code)
	})

	t.Run("Malformed signature", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/drain", &types.DrainRequest{
			Destination: destination.Hex(),
			Signature:   "0x1234",
		})
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, types.CodeInvalidSignature, decodeError(t, w).Code)
	})

	t.Run("Partial drain", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/drain", &types.DrainRequest{
			Destination: destination.Hex(),
			Amount:      "5",
			Signature:   ts.signDrain(t, ts.adminKey, uint256.NewInt(5), 0),
		})
		require.Equal(t, http.StatusOK, w.Code)

		var resp types.DrainResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, uint64(0), resp.Sequence)
		assert.Equal(t, "5", resp.Amount)
	})

	t.Run("Replay is rejected", func(t *testing.T) {
		// Sequence 0 has been used; the signature no longer recovers to the admin
		w := ts.do(t, http.MethodPost, "/drain", &types.DrainRequest{
			Destination: destination.Hex(),
			Amount:      "5",
			Signature:   ts.signDrain(t, ts.adminKey, uint256.NewInt(5), 0),
		})
		require.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("Drain all", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/drain", &types.DrainRequest{
			Destination: destination.Hex(),
			Signature:   ts.signDrain(t, ts.adminKey, nil, 1),
		})
		require.Equal(t, http.StatusOK, w.Code)

		var resp types.DrainResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, uint64(1), resp.Sequence)

		balance, err := ts.ledger.BalanceOf(context.Background(), destination)
		require.NoError(t, err)
		assert.Equal(t, total, balance.Uint64())
	})

	t.Run("Claims fail once drained", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/claim", types.NewClaimRecord(ts.dist.Claims[0]))
		require.Equal(t, http.StatusPaymentRequired, w.Code)
		assert.Equal(t, types.CodeInsufficientFunds, decodeError(t, w).Code)
	})
}

func TestHandleHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "distributor_claims_paid")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{claims.ErrInvalidProof, http.StatusForbidden, types.CodeInvalidProof},
		{claims.ErrAlreadyClaimed, http.StatusConflict, types.CodeAlreadyClaimed},
		{claims.ErrWindowNotOpen, http.StatusTooEarly, types.CodeWindowNotOpen},
		{claims.ErrWindowElapsed, http.StatusGone, types.CodeWindowElapsed},
		{claims.ErrInsufficientFunds, http.StatusPaymentRequired, types.CodeInsufficientFunds},
		{claims.ErrIndexOutOfRange, http.StatusNotFound, types.CodeIndexOutOfRange},
		{claims.ErrNotAuthorized, http.StatusForbidden, types.CodeNotAuthorized},
		{claims.ErrStaleDrainSequence, http.StatusConflict, types.CodeStaleSequence},
		{claims.ErrTransferFailed, http.StatusBadGateway, types.CodeTransferFailed},
		{claims.ErrTransferUnconfirmed, http.StatusGatewayTimeout, types.CodeTransferPending},
		{fmt.Errorf("index 3: %w", claims.ErrTransferUnconfirmed), http.StatusGatewayTimeout, types.CodeTransferPending},
		{persistence.ErrClosed, http.StatusInternalServerError, types.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, code := statusFor(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}
