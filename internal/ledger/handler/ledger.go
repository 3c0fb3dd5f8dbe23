// Package handler exposes the mint ledger over HTTP.
package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/jmerrifield20/SovereignLedger/internal/identity"
	"github.com/jmerrifield20/SovereignLedger/internal/ledger"
)

// mintLedger is the interface expected by LedgerHandler, satisfied by *ledger.Ledger.
type mintLedger interface {
	MintSingle(ctx context.Context, caller, to common.Address, amount *uint256.Int) (*ledger.Receipt, error)
	MintBatch(ctx context.Context, caller common.Address, recipients []common.Address, amounts []*uint256.Int) (*ledger.Receipt, error)
	SetMintingEnabled(ctx context.Context, caller common.Address, enabled bool) error
	SetBaseURI(ctx context.Context, caller common.Address, uri string) error
	SetContractURI(ctx context.Context, caller common.Address, uri string) error

	MintingProgress(ctx context.Context) (ledger.Progress, error)
	SovereignProof(ctx context.Context, addr common.Address) (ledger.Proof, error)
	IsValidated(ctx context.Context, addr common.Address) (bool, error)
	BalanceOf(ctx context.Context, addr common.Address) (*uint256.Int, error)
	URI(ctx context.Context, id uint64) (string, error)
	ContractURI(ctx context.Context) (string, error)
	State(ctx context.Context) (ledger.State, error)
}

// MintRequest is the body of POST /mint.
type MintRequest struct {
	To     string `json:"to" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

// BatchMintRequest is the body of POST /mint/batch.
type BatchMintRequest struct {
	Recipients []string `json:"recipients" binding:"required"`
	Amounts    []string `json:"amounts" binding:"required"`
}

// MintingRequest is the body of PUT /minting.
type MintingRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// URIRequest is the body of the metadata PUT routes.
type URIRequest struct {
	URI string `json:"uri"`
}

// ReceiptResponse describes a committed mint.
type ReceiptResponse struct {
	Timestamp   int64    `json:"timestamp"`
	Amount      string   `json:"amount"`
	TotalMinted string   `json:"total_minted"`
	Latched     []string `json:"latched"`
}

// ProgressResponse is returned by GET /progress.
type ProgressResponse struct {
	Minted    string `json:"minted"`
	Remaining string `json:"remaining"`
	Cap       string `json:"cap"`
}

// ProofResponse is returned by GET /proofs/:address.
type ProofResponse struct {
	Address   string `json:"address"`
	Timestamp int64  `json:"timestamp"`
	Delta     int64  `json:"delta"`
	Balance   string `json:"balance"`
	Validated bool   `json:"validated"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Owner          string `json:"owner"`
	MintingEnabled bool   `json:"minting_enabled"`
	TotalMinted    string `json:"total_minted"`
	Cap            string `json:"cap"`
	TokenID        string `json:"token_id"`
	BaseURI        string `json:"base_uri"`
	ContractURI    string `json:"contract_uri"`
}

// LedgerHandler serves the mint ledger routes.
type LedgerHandler struct {
	ledger mintLedger
	tokens *identity.TokenIssuer
	logger *zap.Logger
}

// NewLedgerHandler creates a LedgerHandler. tokens authenticates callers of
// the mutating routes; when nil those routes see every caller as the zero
// address and so always fail the owner check.
func NewLedgerHandler(l mintLedger, tokens *identity.TokenIssuer, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: l, tokens: tokens, logger: logger}
}

func (h *LedgerHandler) requireCaller() gin.HandlerFunc {
	if h.tokens == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return identity.RequireCaller(h.tokens)
}

// Register mounts the ledger routes on the given router group.
func (h *LedgerHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/progress", h.Progress)
	rg.GET("/status", h.Status)
	rg.GET("/proofs/:address", h.Proof)
	rg.GET("/proofs/:address/validated", h.Validated)
	rg.GET("/balances/:address", h.Balance)
	rg.GET("/metadata/:id", h.TokenURI)
	rg.GET("/contract-uri", h.ContractURI)

	auth := rg.Group("", h.requireCaller())
	{
		auth.POST("/mint", h.Mint)
		auth.POST("/mint/batch", h.MintBatch)
		auth.PUT("/minting", h.SetMinting)
		auth.PUT("/metadata/base-uri", h.SetBaseURI)
		auth.PUT("/metadata/contract-uri", h.SetContractURI)
	}
}

// Mint handles POST /mint.
func (h *LedgerHandler) Mint(c *gin.Context) {
	var req MintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	to, ok := parseAddress(req.To)
	if !ok {
		badRequest(c, "to must be a 0x-prefixed hex address")
		return
	}
	amount, err := uint256.FromDecimal(req.Amount)
	if err != nil {
		badRequest(c, "amount must be a non-negative decimal integer")
		return
	}

	receipt, err := h.ledger.MintSingle(c.Request.Context(), identity.CallerFromCtx(c), to, amount)
	RecordMintOperation("single", err)
	if err != nil {
		writeError(c, h.logger, "mint single", err)
		return
	}
	RecordMinted(receipt)
	c.JSON(http.StatusOK, toReceiptResponse(receipt))
}

// MintBatch handles POST /mint/batch.
func (h *LedgerHandler) MintBatch(c *gin.Context) {
	var req BatchMintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	recipients := make([]common.Address, len(req.Recipients))
	for i, s := range req.Recipients {
		addr, ok := parseAddress(s)
		if !ok {
			badRequest(c, "recipients["+strconv.Itoa(i)+"] must be a 0x-prefixed hex address")
			return
		}
		recipients[i] = addr
	}
	amounts := make([]*uint256.Int, len(req.Amounts))
	for i, s := range req.Amounts {
		amt, err := uint256.FromDecimal(s)
		if err != nil {
			badRequest(c, "amounts["+strconv.Itoa(i)+"] must be a non-negative decimal integer")
			return
		}
		amounts[i] = amt
	}

	receipt, err := h.ledger.MintBatch(c.Request.Context(), identity.CallerFromCtx(c), recipients, amounts)
	RecordMintOperation("batch", err)
	if err != nil {
		writeError(c, h.logger, "mint batch", err)
		return
	}
	RecordMinted(receipt)
	c.JSON(http.StatusOK, toReceiptResponse(receipt))
}

// SetMinting handles PUT /minting.
func (h *LedgerHandler) SetMinting(c *gin.Context) {
	var req MintingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.ledger.SetMintingEnabled(c.Request.Context(), identity.CallerFromCtx(c), *req.Enabled); err != nil {
		writeError(c, h.logger, "set minting enabled", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"minting_enabled": *req.Enabled})
}

// SetBaseURI handles PUT /metadata/base-uri.
func (h *LedgerHandler) SetBaseURI(c *gin.Context) {
	var req URIRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.ledger.SetBaseURI(c.Request.Context(), identity.CallerFromCtx(c), req.URI); err != nil {
		writeError(c, h.logger, "set base uri", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"base_uri": req.URI})
}

// SetContractURI handles PUT /metadata/contract-uri.
func (h *LedgerHandler) SetContractURI(c *gin.Context) {
	var req URIRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.ledger.SetContractURI(c.Request.Context(), identity.CallerFromCtx(c), req.URI); err != nil {
		writeError(c, h.logger, "set contract uri", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contract_uri": req.URI})
}

// Progress handles GET /progress.
func (h *LedgerHandler) Progress(c *gin.Context) {
	p, err := h.ledger.MintingProgress(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, "minting progress", err)
		return
	}
	c.JSON(http.StatusOK, ProgressResponse{
		Minted:    formatUint(p.Minted),
		Remaining: formatUint(p.Remaining),
		Cap:       formatUint(p.Cap),
	})
}

// Status handles GET /status.
func (h *LedgerHandler) Status(c *gin.Context) {
	st, err := h.ledger.State(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, "ledger state", err)
		return
	}
	c.JSON(http.StatusOK, StatusResponse{
		Owner:          st.Owner.Hex(),
		MintingEnabled: st.MintingEnabled,
		TotalMinted:    formatUint(st.TotalMinted),
		Cap:            formatUint(ledger.SupplyCap),
		TokenID:        formatUint(ledger.TokenID),
		BaseURI:        st.BaseURI,
		ContractURI:    st.ContractURI,
	})
}

// Proof handles GET /proofs/:address.
func (h *LedgerHandler) Proof(c *gin.Context) {
	addr, ok := parseAddress(c.Param("address"))
	if !ok {
		badRequest(c, "address must be a 0x-prefixed hex address")
		return
	}
	p, err := h.ledger.SovereignProof(c.Request.Context(), addr)
	if err != nil {
		writeError(c, h.logger, "sovereign proof", err)
		return
	}
	c.JSON(http.StatusOK, ProofResponse{
		Address:   p.Address.Hex(),
		Timestamp: p.Timestamp,
		Delta:     p.Delta,
		Balance:   p.Balance.Dec(),
		Validated: p.Validated(),
	})
}

// Validated handles GET /proofs/:address/validated.
func (h *LedgerHandler) Validated(c *gin.Context) {
	addr, ok := parseAddress(c.Param("address"))
	if !ok {
		badRequest(c, "address must be a 0x-prefixed hex address")
		return
	}
	v, err := h.ledger.IsValidated(c.Request.Context(), addr)
	if err != nil {
		writeError(c, h.logger, "is validated", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": addr.Hex(), "validated": v})
}

// Balance handles GET /balances/:address.
func (h *LedgerHandler) Balance(c *gin.Context) {
	addr, ok := parseAddress(c.Param("address"))
	if !ok {
		badRequest(c, "address must be a 0x-prefixed hex address")
		return
	}
	bal, err := h.ledger.BalanceOf(c.Request.Context(), addr)
	if err != nil {
		writeError(c, h.logger, "balance of", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"address":  addr.Hex(),
		"token_id": formatUint(ledger.TokenID),
		"balance":  bal.Dec(),
	})
}

// TokenURI handles GET /metadata/:id.
func (h *LedgerHandler) TokenURI(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "id must be a non-negative integer")
		return
	}
	uri, err := h.ledger.URI(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, "token uri", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": formatUint(id), "uri": uri})
}

// ContractURI handles GET /contract-uri.
func (h *LedgerHandler) ContractURI(c *gin.Context) {
	uri, err := h.ledger.ContractURI(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, "contract uri", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contract_uri": uri})
}

func toReceiptResponse(r *ledger.Receipt) ReceiptResponse {
	latched := make([]string, len(r.Latched))
	for i, a := range r.Latched {
		latched[i] = a.Hex()
	}
	return ReceiptResponse{
		Timestamp:   r.Timestamp,
		Amount:      formatUint(r.Amount),
		TotalMinted: formatUint(r.TotalMinted),
		Latched:     latched,
	}
}

// parseAddress accepts a 0x-prefixed, 40 hex digit address.
func parseAddress(s string) (common.Address, bool) {
	if len(s) != 42 || !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func formatUint(v uint64) string { return strconv.FormatUint(v, 10) }
