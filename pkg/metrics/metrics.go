package metrics

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Claim result label values
const (
	ResultClaimed           = "claimed"
	ResultInvalidProof      = "invalid_proof"
	ResultAlreadyClaimed    = "already_claimed"
	ResultWindowNotOpen     = "window_not_open"
	ResultWindowElapsed     = "window_elapsed"
	ResultOutOfRange        = "index_out_of_range"
	ResultInsufficientFunds = "insufficient_funds"
	ResultTransferFailed    = "transfer_failed"
	ResultUnconfirmed       = "transfer_unconfirmed"
	ResultStorageError      = "storage_error"
)

var (
	// ============================================
	// Claims
	// ============================================
	ClaimAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distributor_claim_attempts_total",
			Help: "Total number of claim attempts by result",
		},
		[]string{"result"},
	)

	ClaimedAmount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "distributor_claimed_amount_total",
		Help: "Total amount paid out by successful claims (approximate, base units)",
	})

	ClaimsPaid = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "distributor_claims_paid",
			Help: "Number of indices currently marked claimed by root",
		},
		[]string{"root"},
	)

	TransferRollbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "distributor_transfer_rollbacks_total",
		Help: "Number of claim marks rolled back after a failed transfer",
	})

	// ============================================
	// Administration
	// ============================================
	Drains = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distributor_drains_total",
			Help: "Total number of drain attempts by result",
		},
		[]string{"result"},
	)

	// ============================================
	// HTTP
	// ============================================
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "distributor_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "status"},
	)
)

// ToFloat approximates a token amount for a float-valued collector
func ToFloat(amount *uint256.Int) float64 {
	if amount == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(amount.ToBig()).Float64()
	return f
}
