package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/auth"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/claims"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/persistence"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/types"
)

// handleGetRoot handles the /root endpoint
func (s *Server) handleGetRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, types.CodeInvalidRequest, "Method not allowed")
		return
	}

	drains, err := s.registry.DrainCount()
	if err != nil {
		s.logger.Sugar().Errorw("Failed to count drains", "error", err)
		writeError(w, http.StatusInternalServerError, types.CodeInternal, "Internal error")
		return
	}

	start, end := s.registry.Window()
	s.writeJSON(w, http.StatusOK, &types.RootResponse{
		Root:        persistence.RootKey(s.distribution.Root),
		TokenTotal:  s.distribution.TokenTotal.Dec(),
		ClaimCount:  len(s.distribution.Claims),
		WindowStart: start.Unix(),
		WindowEnd:   end.Unix(),
		Holder:      s.registry.Holder().Hex(),
		DrainCount:  drains,
	})
}

// handleGetClaim handles the /claims endpoint
func (s *Server) handleGetClaim(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, types.CodeInvalidRequest, "Method not allowed")
		return
	}

	address := r.URL.Query().Get("address")
	if !common.IsHexAddress(address) {
		writeError(w, http.StatusBadRequest, types.CodeInvalidRequest, fmt.Sprintf("Invalid address %q", address))
		return
	}

	claim, ok := s.distribution.ClaimFor(common.HexToAddress(address))
	if !ok {
		writeError(w, http.StatusNotFound, types.CodeNotFound, "No claim for address")
		return
	}
	s.writeJSON(w, http.StatusOK, types.NewClaimRecord(claim))
}

// handleGetStatus handles the /status endpoint
func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, types.CodeInvalidRequest, "Method not allowed")
		return
	}

	index, err := strconv.ParseUint(r.URL.Query().Get("index"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, types.CodeInvalidRequest, "index must be an unsigned integer")
		return
	}
	if index >= uint64(len(s.distribution.Claims)) {
		writeError(w, http.StatusNotFound, types.CodeIndexOutOfRange, fmt.Sprintf("Index %d out of range", index))
		return
	}

	claimed, err := s.registry.IsClaimed(index)
	if err != nil {
		s.logger.Sugar().Errorw("Failed to read claim state", "index", index, "error", err)
		writeError(w, http.StatusInternalServerError, types.CodeInternal, "Internal error")
		return
	}
	s.writeJSON(w, http.StatusOK, &types.StatusResponse{Index: index, Claimed: claimed})
}

// handleClaim handles the /claim endpoint
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, types.CodeInvalidRequest, "Method not allowed")
		return
	}
	if s.limiter != nil && !s.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, types.CodeRateLimited, "Too many claim requests")
		return
	}

	var record types.ClaimRecord
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		writeError(w, http.StatusBadRequest, types.CodeInvalidRequest, fmt.Sprintf("Failed to parse request: %v", err))
		return
	}
	claim, err := record.ToClaim()
	if err != nil {
		writeError(w, http.StatusBadRequest, types.CodeInvalidRequest, err.Error())
		return
	}

	paid, err := s.registry.Claim(r.Context(), claim, s.clock())
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, &types.ClaimResponse{
		Index:     paid.Index,
		Address:   paid.Account.Hex(),
		Amount:    paid.Amount.Dec(),
		TxStatus:  types.TxStatusConfirmed,
		ClaimedAt: paid.ClaimedAt.Unix(),
	})
}

// handleDrain handles the /drain endpoint
func (s *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, types.CodeInvalidRequest, "Method not allowed")
		return
	}

	var req types.DrainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, types.CodeInvalidRequest, fmt.Sprintf("Failed to parse request: %v", err))
		return
	}
	if !common.IsHexAddress(req.Destination) {
		writeError(w, http.StatusBadRequest, types.CodeInvalidRequest, fmt.Sprintf("Invalid destination %q", req.Destination))
		return
	}

	var amount *uint256.Int
	if req.Amount != "" {
		parsed, err := types.ParseAmount(req.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, types.CodeInvalidRequest, err.Error())
			return
		}
		if !parsed.IsZero() {
			amount = parsed
		}
	}

	signature, err := hexutil.Decode(req.Signature)
	if err != nil {
		writeError(w, http.StatusBadRequest, types.CodeInvalidSignature, "signature must be 0x-prefixed hex")
		return
	}

	sequence, err := s.registry.DrainCount()
	if err != nil {
		s.logger.Sugar().Errorw("Failed to count drains", "error", err)
		writeError(w, http.StatusInternalServerError, types.CodeInternal, "Internal error")
		return
	}

	destination := common.HexToAddress(req.Destination)
	msg := &auth.DrainMessage{
		Root:        s.registry.Root(),
		Destination: destination,
		Amount:      amount,
		Sequence:    sequence,
	}
	signer, err := msg.RecoverSigner(signature)
	if err != nil {
		writeError(w, http.StatusBadRequest, types.CodeInvalidSignature, err.Error())
		return
	}

	// The registry rejects the drain if another one took this sequence first
	record, err := s.registry.DrainSequenced(r.Context(), &claims.DrainRequest{
		Caller:      signer,
		Destination: destination,
		Amount:      amount,
		Sequence:    &sequence,
	})
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, &types.DrainResponse{
		Sequence:    record.Sequence,
		Destination: record.Destination,
		Amount:      record.Amount,
	})
}

// handleHealth handles the /healthz endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.HealthCheck(); err != nil {
		s.logger.Sugar().Warnw("Health check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, types.CodeUnavailable, "Claim state unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps a registry error to an HTTP status and error code
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, claims.ErrInvalidProof):
		return http.StatusForbidden, types.CodeInvalidProof
	case errors.Is(err, claims.ErrAlreadyClaimed):
		return http.StatusConflict, types.CodeAlreadyClaimed
	case errors.Is(err, claims.ErrWindowNotOpen):
		return http.StatusTooEarly, types.CodeWindowNotOpen
	case errors.Is(err, claims.ErrWindowElapsed):
		return http.StatusGone, types.CodeWindowElapsed
	case errors.Is(err, claims.ErrInsufficientFunds):
		return http.StatusPaymentRequired, types.CodeInsufficientFunds
	case errors.Is(err, claims.ErrIndexOutOfRange):
		return http.StatusNotFound, types.CodeIndexOutOfRange
	case errors.Is(err, claims.ErrNotAuthorized):
		return http.StatusForbidden, types.CodeNotAuthorized
	case errors.Is(err, claims.ErrStaleDrainSequence):
		return http.StatusConflict, types.CodeStaleSequence
	case errors.Is(err, claims.ErrTransferUnconfirmed):
		return http.StatusGatewayTimeout, types.CodeTransferPending
	case errors.Is(err, claims.ErrTransferFailed):
		return http.StatusBadGateway, types.CodeTransferFailed
	default:
		return http.StatusInternalServerError, types.CodeInternal
	}
}

func (s *Server) writeRegistryError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Sugar().Errorw("Registry error", "error", err)
		message = "Internal error"
	}
	writeError(w, status, code, message)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(&types.ErrorResponse{Code: code, Message: message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Sugar().Errorw("Failed to encode response", "error", err)
	}
}
