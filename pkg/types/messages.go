package types

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// ErrMalformedRecord is returned when a serialized claim record cannot be parsed
var ErrMalformedRecord = errors.New("malformed claim record")

// ClaimRecord is the serialized form of a claim, shared by the distribution
// file, the claim HTTP API and the client.
type ClaimRecord struct {
	Index   uint64   `json:"index"`
	Address string   `json:"address"`
	Amount  string   `json:"amount"`
	Proof   []string `json:"proof"`
}

// NewClaimRecord serializes a claim. Amounts are decimal strings, addresses
// are checksummed, proof elements are 0x-prefixed hex.
func NewClaimRecord(c *Claim) *ClaimRecord {
	proof := make([]string, len(c.Proof))
	for i, p := range c.Proof {
		proof[i] = hexutil.Encode(p[:])
	}
	amount := "0"
	if c.Amount != nil {
		amount = c.Amount.Dec()
	}
	return &ClaimRecord{
		Index:   c.Index,
		Address: c.Account.Hex(),
		Amount:  amount,
		Proof:   proof,
	}
}

// ToClaim parses the record back into a claim
func (r *ClaimRecord) ToClaim() (*Claim, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: nil record", ErrMalformedRecord)
	}
	if !common.IsHexAddress(r.Address) {
		return nil, fmt.Errorf("%w: invalid address %q", ErrMalformedRecord, r.Address)
	}
	amount, err := ParseAmount(r.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: index %d: %v", ErrMalformedRecord, r.Index, err)
	}
	proof := make([][32]byte, len(r.Proof))
	for i, p := range r.Proof {
		h, err := ParseHash(p)
		if err != nil {
			return nil, fmt.Errorf("%w: index %d proof[%d]: %v", ErrMalformedRecord, r.Index, i, err)
		}
		proof[i] = h
	}
	return &Claim{
		ClaimSlot: ClaimSlot{
			Index:   r.Index,
			Account: common.HexToAddress(r.Address),
			Amount:  amount,
		},
		Proof: proof,
	}, nil
}

// ParseAmount parses a decimal amount. 0x-prefixed hex is accepted as well
// since distribution files from older tooling encoded amounts that way.
func ParseAmount(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("amount is empty")
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := uint256.FromHex(s)
		if err != nil {
			return nil, fmt.Errorf("invalid hex amount %q: %w", s, err)
		}
		return v, nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid decimal amount %q: %w", s, err)
	}
	return v, nil
}

// ParseHash decodes a 0x-prefixed 32-byte hex string
func ParseHash(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hexutil.Decode(s)
	if err != nil {
		return out, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

// RootResponse describes the distribution served by a claim server
type RootResponse struct {
	Root        string `json:"root"`
	TokenTotal  string `json:"tokenTotal"`
	ClaimCount  int    `json:"claimCount"`
	WindowStart int64  `json:"windowStart"`
	WindowEnd   int64  `json:"windowEnd"`
	Holder      string `json:"holder"`
	DrainCount  uint64 `json:"drainCount"`
}

// StatusResponse reports whether an index has been claimed
type StatusResponse struct {
	Index   uint64 `json:"index"`
	Claimed bool   `json:"claimed"`
}

// TxStatusConfirmed is reported once the payment transfer has completed
const TxStatusConfirmed = "confirmed"

// ClaimResponse is returned after a successful claim
type ClaimResponse struct {
	Index     uint64 `json:"index"`
	Address   string `json:"address"`
	Amount    string `json:"amount"`
	TxStatus  string `json:"txStatus"`
	ClaimedAt int64  `json:"claimedAt"`
}

// DrainRequest asks the server to move held funds to a destination. An empty
// amount drains the full held balance.
type DrainRequest struct {
	Destination string `json:"destination"`
	Amount      string `json:"amount,omitempty"`
	Signature   string `json:"signature"`
}

// DrainResponse is returned after a successful drain
type DrainResponse struct {
	Sequence    uint64 `json:"sequence"`
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
}

// Machine-readable error codes carried in ErrorResponse.Code
const (
	CodeInvalidRequest    = "invalid_request"
	CodeNotFound          = "not_found"
	CodeInvalidProof      = "invalid_proof"
	CodeAlreadyClaimed    = "already_claimed"
	CodeWindowNotOpen     = "window_not_open"
	CodeWindowElapsed     = "window_elapsed"
	CodeInsufficientFunds = "insufficient_funds"
	CodeIndexOutOfRange   = "index_out_of_range"
	CodeTransferFailed    = "transfer_failed"
	CodeTransferPending   = "transfer_unconfirmed"
	CodeNotAuthorized     = "not_authorized"
	CodeInvalidSignature  = "invalid_signature"
	CodeStaleSequence     = "stale_sequence"
	CodeRateLimited       = "rate_limited"
	CodeUnavailable       = "unavailable"
	CodeInternal          = "internal_error"
)

// ErrorResponse is the body of every non-2xx API response
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
