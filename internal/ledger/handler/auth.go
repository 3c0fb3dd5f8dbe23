package handler

import (
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/SovereignLedger/internal/identity"
)

// keyVerifier is the interface expected by AuthHandler, satisfied by *identity.KeyRing.
type keyVerifier interface {
	Verify(addr common.Address, key string) error
}

// TokenRequest is the body of POST /auth/token.
type TokenRequest struct {
	Address string `json:"address" binding:"required"`
	APIKey  string `json:"api_key" binding:"required"`
}

// TokenResponse carries a caller token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthHandler exchanges API keys for caller tokens.
type AuthHandler struct {
	keys   keyVerifier
	tokens *identity.TokenIssuer
	logger *zap.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(keys keyVerifier, tokens *identity.TokenIssuer, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{keys: keys, tokens: tokens, logger: logger}
}

// Register mounts the auth routes on the given router group.
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/auth/token", h.IssueToken)
}

// IssueToken handles POST /auth/token.
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	addr, ok := parseAddress(req.Address)
	if !ok {
		badRequest(c, "address must be a 0x-prefixed hex address")
		return
	}

	if err := h.keys.Verify(addr, req.APIKey); err != nil {
		h.logger.Info("token request rejected", zap.String("address", addr.Hex()))
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": "unauthenticated"})
		return
	}

	token, err := h.tokens.Issue(addr)
	if err != nil {
		h.logger.Error("issue caller token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token", "code": CodeInternal})
		return
	}

	c.JSON(http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresAt: time.Now().UTC().Add(h.tokens.TTL()),
	})
}
