package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/SovereignLedger/internal/ledger"
)

// Error codes returned in the "code" field of error responses.
const (
	CodeUnauthorized      = "unauthorized"
	CodeMintingDisabled   = "minting_disabled"
	CodeZeroAddress       = "zero_address"
	CodeSupplyCapExceeded = "supply_cap_exceeded"
	CodeLengthMismatch    = "length_mismatch"
	CodeInvalidRequest    = "invalid_request"
	CodeNotFound          = "not_found"
	CodeInternal          = "internal"
)

var errorStatus = []struct {
	err    error
	status int
	code   string
}{
	{ledger.ErrUnauthorized, http.StatusForbidden, CodeUnauthorized},
	{ledger.ErrMintingDisabled, http.StatusConflict, CodeMintingDisabled},
	{ledger.ErrZeroAddress, http.StatusBadRequest, CodeZeroAddress},
	{ledger.ErrSupplyCapExceeded, http.StatusConflict, CodeSupplyCapExceeded},
	{ledger.ErrLengthMismatch, http.StatusBadRequest, CodeLengthMismatch},
}

// writeError maps a ledger error to its HTTP status. Unknown errors are
// logged and reported as 500 without their message.
func writeError(c *gin.Context, logger *zap.Logger, op string, err error) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			body := gin.H{"error": err.Error(), "code": e.code}
			var capErr *ledger.SupplyCapError
			if errors.As(err, &capErr) {
				body["minted"] = formatUint(capErr.Minted)
				body["remaining"] = formatUint(capErr.Remaining)
			}
			c.JSON(e.status, body)
			return
		}
	}
	logger.Error(op, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": CodeInternal})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": CodeInvalidRequest})
}
