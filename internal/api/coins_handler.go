package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/cbums/cbums/internal/audit"
	"github.com/cbums/cbums/internal/auth"
	"github.com/cbums/cbums/internal/coin"
	"github.com/cbums/cbums/internal/metrics"
	"github.com/cbums/cbums/internal/user"
)

// coinsHandler groups coin ledger HTTP handlers.
type coinsHandler struct {
	store    *coin.Store
	users    *user.Store
	recorder *audit.Recorder
	metrics  *metrics.Metrics
}

func newCoinsHandler(store *coin.Store, users *user.Store, recorder *audit.Recorder, m *metrics.Metrics) *coinsHandler {
	return &coinsHandler{store: store, users: users, recorder: recorder, metrics: m}
}

// Transfer handles POST /api/v1/coins/transfer. The sender is always the
// authenticated actor; the recipient must be within the actor's visibility
// scope so coins only flow down the management chain.
func (h *coinsHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	actor := auth.IdentityFromContext(r.Context())

	var req coin.TransferInput
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	req.FromUserID = actor.ID

	if err := coin.ValidateTransfer(req); err != nil {
		if h.metrics != nil {
			h.metrics.IncCoinTransferReject("validation")
		}
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	if _, err := h.users.GetVisibleByID(r.Context(), actor, req.ToUserID); err != nil {
		writeStoreError(w, err, "recipient not found")
		return
	}

	txn, err := h.store.Transfer(r.Context(), req)
	if err != nil {
		if h.metrics != nil && errors.Is(err, coin.ErrInsufficientFunds) {
			h.metrics.IncCoinTransferReject("insufficient_funds")
		}
		writeStoreError(w, err, "recipient not found")
		return
	}

	// Top-down allocations from admins are distinguished from peer transfers
	// in both the audit trail and the metrics.
	action := audit.ActionTransfer
	kind := "transfer"
	if actor.IsSuperAdmin() || actor.IsAdmin() {
		action = audit.ActionAllocate
		kind = "allocate"
	}
	if h.metrics != nil {
		h.metrics.IncCoinTransfer(kind)
	}
	recordActivity(h.recorder, r, action, "coin", txn.ID, audit.Details{
		"to_user_id": txn.ToUserID,
		"amount":     txn.Amount,
	})

	writeJSON(w, http.StatusCreated, txn)
}

// GetBalance handles GET /api/v1/coins/balance.
func (h *coinsHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	actor := auth.IdentityFromContext(r.Context())

	balance, err := h.store.Balance(r.Context(), actor.ID)
	if err != nil {
		writeStoreError(w, err, "user not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": actor.ID,
		"coins":   balance,
	})
}

// ListTransactions handles GET /api/v1/coins/transactions. Every caller sees
// their own ledger slice only.
func (h *coinsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	actor := auth.IdentityFromContext(r.Context())

	params := coin.ListParams{
		Cursor: r.URL.Query().Get("cursor"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			params.Limit = n
		}
	}

	txns, nextCursor, err := h.store.ListForUser(r.Context(), actor.ID, params)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if txns == nil {
		txns = []*coin.Transaction{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txns,
		"next_cursor":  nextCursor,
	})
}
