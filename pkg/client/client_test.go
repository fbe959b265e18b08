package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/claims"
	memoryLedger "github.com/Layr-Labs/merkle-distributor-go/pkg/ledger/memory"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/persistence/memory"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/server"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/testutil"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/types"
)

var (
	holder      = common.HexToAddress("0x0000000000000000000000000000000000000f00")
	destination = common.HexToAddress("0x0000000000000000000000000000000000000bee")
)

func TestDistributorClient_EndToEnd(t *testing.T) {
	logger := testutil.NewTestLogger(t)
	dist := testutil.BuildTestDistribution(t, 3)
	adminKey, admin := testutil.NewTestKey(t)

	ledger := memoryLedger.NewInMemoryLedger(holder, logger)
	require.NoError(t, ledger.Mint(holder, dist.TokenTotal))

	now := time.Now()
	registry, err := claims.NewRegistry(&claims.RegistryConfig{
		Root:          dist.Root,
		WindowStart:   now.Add(-time.Hour),
		WindowEnd:     now.Add(time.Hour),
		Administrator: admin,
		Holder:        holder,
		ClaimCount:    uint64(len(dist.Claims)),
	}, memory.NewMemoryPersistence(), ledger, logger)
	require.NoError(t, err)

	srv, err := server.NewServer(&server.Config{}, registry, dist, logger)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.GetHandler())
	defer ts.Close()

	ctx := context.Background()
	c := NewDistributorClient(ts.URL+"/", logger)

	root, err := c.GetRoot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, root.ClaimCount)
	assert.Equal(t, dist.TokenTotal.Dec(), root.TokenTotal)

	claim := dist.Claims[1]
	paid, err := c.ClaimFor(ctx, claim.Account)
	require.NoError(t, err)
	assert.Equal(t, claim.Index, paid.Index)
	assert.Equal(t, claim.Amount.Dec(), paid.Amount)

	status, err := c.GetStatus(ctx, claim.Index)
	require.NoError(t, err)
	assert.True(t, status.Claimed)

	// Second claim surfaces the server error code
	_, err = c.ClaimFor(ctx, claim.Account)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, types.CodeAlreadyClaimed, apiErr.Code)

	_, err = c.GetClaim(ctx, destination)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)

	drained, err := c.DrainNext(ctx, adminKey, destination, uint256.NewInt(7))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), drained.Sequence)
	assert.Equal(t, "7", drained.Amount)

	drained, err = c.DrainNext(ctx, adminKey, destination, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), drained.Sequence)

	held, err := ledger.BalanceOf(ctx, holder)
	require.NoError(t, err)
	assert.True(t, held.IsZero())
}

func TestAPIError_NonJSONBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway down", http.StatusBadGateway)
	}))
	defer ts.Close()

	c := NewDistributorClient(ts.URL, testutil.NewTestLogger(t))
	_, err := c.GetRoot(context.Background())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Empty(t, apiErr.Code)
	assert.Equal(t, "gateway down", apiErr.Message)
	assert.Contains(t, apiErr.Error(), "502")
}
