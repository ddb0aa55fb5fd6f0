package web

import (
	"encoding/json"
	"net/http"

	sdkmath "cosmossdk.io/math"

	"github.com/whackrock/fund/internal/types"
	"github.com/whackrock/fund/internal/utils"
)

// DepositRequest deposits Amount (decimal, accounting asset) from Caller, minting shares to Receiver.
// The API runs against the devnet chain, so the caller is taken from the body as is.
type DepositRequest struct {
	Caller   string `json:"caller"`
	Amount   string `json:"amount"`
	Receiver string `json:"receiver"`
}

// WithdrawRequest burns Shares (decimal) of Owner and pays the basket out to Receiver.
// Owner defaults to Caller and Receiver to Owner.
type WithdrawRequest struct {
	Caller   string `json:"caller"`
	Shares   string `json:"shares"`
	Receiver string `json:"receiver"`
	Owner    string `json:"owner"`
}

func (ws *WebServer) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid caller address")
		return
	}
	receiver := caller
	if req.Receiver != "" {
		if receiver, ok = parseAddress(req.Receiver); !ok {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid receiver address")
			return
		}
	}
	amount, err := utils.ParseAmount(req.Amount, 18)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid amount")
		return
	}

	shares, err := ws.fund.Deposit(r.Context(), caller, amount, receiver)
	if err != nil {
		ws.logger.Warn().Err(err).Str("caller", caller.Hex()).Str("amount", amount.String()).Msg("Deposit rejected")
		ws.writeFundError(w, err)
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"receiver":         receiver,
		"amount":           amount,
		"shares":           shares,
		"shares_formatted": formatAmount(shares, 18),
	})
}

func (ws *WebServer) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid caller address")
		return
	}
	owner := caller
	if req.Owner != "" {
		if owner, ok = parseAddress(req.Owner); !ok {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid owner address")
			return
		}
	}
	receiver := owner
	if req.Receiver != "" {
		if receiver, ok = parseAddress(req.Receiver); !ok {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid receiver address")
			return
		}
	}
	shares, err := utils.ParseAmount(req.Shares, 18)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid shares amount")
		return
	}

	paid, err := ws.fund.Withdraw(r.Context(), caller, shares, receiver, owner)
	if err != nil {
		ws.logger.Warn().Err(err).Str("caller", caller.Hex()).Str("shares", shares.String()).Msg("Withdrawal rejected")
		ws.writeFundError(w, err)
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"receiver": receiver,
		"shares":   shares,
		"paid":     paid,
	})
}

// writeFundError maps a fund error kind to an HTTP status. Unclassified errors are 500s.
func (ws *WebServer) writeFundError(w http.ResponseWriter, err error) {
	ws.writeJSONResponse(w, statusForError(err), map[string]interface{}{
		"error":   true,
		"kind":    types.KindOf(err),
		"message": err.Error(),
	})
}

func statusForError(err error) int {
	switch types.KindOf(err) {
	case types.ErrInvalidArgument.ABCICode(), types.ErrInvalidPool.ABCICode():
		return http.StatusBadRequest
	case types.ErrUnauthorized.ABCICode():
		return http.StatusForbidden
	case types.ErrInsufficientFunds.ABCICode():
		return http.StatusUnprocessableEntity
	case types.ErrInvalidState.ABCICode(), types.ErrReentrancy.ABCICode():
		return http.StatusConflict
	case types.ErrPriceUnavailable.ABCICode(), types.ErrOracleNotReady.ABCICode(), types.ErrOracleInitFailed.ABCICode():
		return http.StatusServiceUnavailable
	case types.ErrSwapFailed.ABCICode():
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// formatAmount renders base units as a decimal string, "" when the amount is unset.
func formatAmount(amount sdkmath.Int, decimals int) string {
	d, err := utils.SDKIntToDecimal(amount, decimals)
	if err != nil {
		return ""
	}
	return d.String()
}
