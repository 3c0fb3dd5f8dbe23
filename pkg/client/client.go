package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/jmerrifield20/SovereignLedger/internal/ledger"
)

// Ledger sentinels, matched by errors.Is against *APIError.
var (
	ErrUnauthorized      = ledger.ErrUnauthorized
	ErrMintingDisabled   = ledger.ErrMintingDisabled
	ErrZeroAddress       = ledger.ErrZeroAddress
	ErrSupplyCapExceeded = ledger.ErrSupplyCapExceeded
	ErrLengthMismatch    = ledger.ErrLengthMismatch

	// ErrUnauthenticated is matched by 401 responses: no token, a bad token
	// or a rejected API key.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrNotFound is matched by 404 responses.
	ErrNotFound = errors.New("not found")
)

var codeSentinels = map[string]error{
	"unauthorized":        ErrUnauthorized,
	"minting_disabled":    ErrMintingDisabled,
	"zero_address":        ErrZeroAddress,
	"supply_cap_exceeded": ErrSupplyCapExceeded,
	"length_mismatch":     ErrLengthMismatch,
	"unauthenticated":     ErrUnauthenticated,
	"not_found":           ErrNotFound,
}

// APIError is a non-2xx response from the ledger API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("ledger api %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("ledger api %d: %s", e.Status, e.Message)
}

// Is reports whether target is the sentinel for this error's code.
func (e *APIError) Is(target error) bool {
	if s, ok := codeSentinels[e.Code]; ok && s == target {
		return true
	}
	switch e.Status {
	case http.StatusUnauthorized:
		return target == ErrUnauthenticated
	case http.StatusNotFound:
		return target == ErrNotFound
	}
	return false
}

// Progress is the supply progress of the ledger.
type Progress struct {
	Minted    uint64
	Remaining uint64
	Cap       uint64
}

// Status is a snapshot of the ledger state.
type Status struct {
	Owner          common.Address
	MintingEnabled bool
	TotalMinted    uint64
	Cap            uint64
	TokenID        uint64
	BaseURI        string
	ContractURI    string
}

// Proof is the sovereign proof of an address.
type Proof struct {
	Address   common.Address
	Timestamp int64
	Delta     int64
	Balance   *uint256.Int
	Validated bool
}

// Receipt describes a committed mint.
type Receipt struct {
	Timestamp   int64
	Amount      uint64
	TotalMinted uint64
	Latched     []common.Address
}

// Token is a caller token and its expiry.
type Token struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuditOverview is the length and root hash of the audit chain.
type AuditOverview struct {
	Entries int    `json:"entries"`
	Root    string `json:"root"`
}

// AuditEntry is one audit chain record.
type AuditEntry struct {
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Subject   string    `json:"subject"`
	Actor     string    `json:"actor"`
	DataHash  string    `json:"data_hash"`
	PrevHash  string    `json:"prev_hash"`
	Hash      string    `json:"hash"`
}

// Client is the SDK entry point.
type Client struct {
	base       string
	httpClient *http.Client

	mu          sync.RWMutex
	bearerToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithBearerToken attaches a caller token to every request.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		return nil
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", d)
		}
		c.httpClient = &http.Client{Timeout: d}
		return nil
	}
}

// New creates a Client for the ledger API at base, e.g. "http://localhost:8080".
func New(base string, opts ...Option) (*Client, error) {
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// SetBearerToken replaces the caller token sent with every request.
func (c *Client) SetBearerToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bearerToken = token
}

// IssueToken exchanges an API key for a caller token. The client's own token
// is not changed.
func (c *Client) IssueToken(ctx context.Context, addr common.Address, apiKey string) (*Token, error) {
	var tok Token
	err := c.call(ctx, http.MethodPost, "/api/v1/auth/token",
		map[string]string{"address": addr.Hex(), "api_key": apiKey}, &tok)
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

// Progress returns the minted, remaining and cap figures.
func (c *Client) Progress(ctx context.Context) (*Progress, error) {
	var raw struct {
		Minted    string `json:"minted"`
		Remaining string `json:"remaining"`
		Cap       string `json:"cap"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/progress", nil, &raw); err != nil {
		return nil, err
	}
	p := &Progress{}
	if err := parseUints(
		field{raw.Minted, &p.Minted}, field{raw.Remaining, &p.Remaining}, field{raw.Cap, &p.Cap},
	); err != nil {
		return nil, err
	}
	return p, nil
}

// Status returns a snapshot of the ledger state.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var raw struct {
		Owner          string `json:"owner"`
		MintingEnabled bool   `json:"minting_enabled"`
		TotalMinted    string `json:"total_minted"`
		Cap            string `json:"cap"`
		TokenID        string `json:"token_id"`
		BaseURI        string `json:"base_uri"`
		ContractURI    string `json:"contract_uri"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/status", nil, &raw); err != nil {
		return nil, err
	}
	s := &Status{
		Owner:          common.HexToAddress(raw.Owner),
		MintingEnabled: raw.MintingEnabled,
		BaseURI:        raw.BaseURI,
		ContractURI:    raw.ContractURI,
	}
	if err := parseUints(
		field{raw.TotalMinted, &s.TotalMinted}, field{raw.Cap, &s.Cap}, field{raw.TokenID, &s.TokenID},
	); err != nil {
		return nil, err
	}
	return s, nil
}

// Proof returns the sovereign proof of addr.
func (c *Client) Proof(ctx context.Context, addr common.Address) (*Proof, error) {
	var raw struct {
		Address   string `json:"address"`
		Timestamp int64  `json:"timestamp"`
		Delta     int64  `json:"delta"`
		Balance   string `json:"balance"`
		Validated bool   `json:"validated"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/proofs/"+addr.Hex(), nil, &raw); err != nil {
		return nil, err
	}
	bal, err := uint256.FromDecimal(raw.Balance)
	if err != nil {
		return nil, fmt.Errorf("parse balance %q: %w", raw.Balance, err)
	}
	return &Proof{
		Address:   common.HexToAddress(raw.Address),
		Timestamp: raw.Timestamp,
		Delta:     raw.Delta,
		Balance:   bal,
		Validated: raw.Validated,
	}, nil
}

// IsValidated reports whether addr has ever been credited.
func (c *Client) IsValidated(ctx context.Context, addr common.Address) (bool, error) {
	var raw struct {
		Validated bool `json:"validated"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/proofs/"+addr.Hex()+"/validated", nil, &raw); err != nil {
		return false, err
	}
	return raw.Validated, nil
}

// Balance returns the token balance of addr.
func (c *Client) Balance(ctx context.Context, addr common.Address) (*uint256.Int, error) {
	var raw struct {
		Balance string `json:"balance"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/balances/"+addr.Hex(), nil, &raw); err != nil {
		return nil, err
	}
	bal, err := uint256.FromDecimal(raw.Balance)
	if err != nil {
		return nil, fmt.Errorf("parse balance %q: %w", raw.Balance, err)
	}
	return bal, nil
}

// TokenURI returns the metadata URI of token id.
func (c *Client) TokenURI(ctx context.Context, id uint64) (string, error) {
	var raw struct {
		URI string `json:"uri"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/metadata/"+strconv.FormatUint(id, 10), nil, &raw); err != nil {
		return "", err
	}
	return raw.URI, nil
}

// ContractURI returns the contract-level metadata URI.
func (c *Client) ContractURI(ctx context.Context) (string, error) {
	var raw struct {
		ContractURI string `json:"contract_uri"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/contract-uri", nil, &raw); err != nil {
		return "", err
	}
	return raw.ContractURI, nil
}

// Mint credits amount units to to.
func (c *Client) Mint(ctx context.Context, to common.Address, amount *uint256.Int) (*Receipt, error) {
	return c.mint(ctx, "/api/v1/mint", map[string]string{"to": to.Hex(), "amount": amount.Dec()})
}

// MintBatch credits amounts[i] to recipients[i] in one all-or-nothing call.
func (c *Client) MintBatch(ctx context.Context, recipients []common.Address, amounts []*uint256.Int) (*Receipt, error) {
	body := struct {
		Recipients []string `json:"recipients"`
		Amounts    []string `json:"amounts"`
	}{
		Recipients: make([]string, len(recipients)),
		Amounts:    make([]string, len(amounts)),
	}
	for i, r := range recipients {
		body.Recipients[i] = r.Hex()
	}
	for i, a := range amounts {
		body.Amounts[i] = a.Dec()
	}
	return c.mint(ctx, "/api/v1/mint/batch", body)
}

func (c *Client) mint(ctx context.Context, path string, body any) (*Receipt, error) {
	var raw struct {
		Timestamp   int64    `json:"timestamp"`
		Amount      string   `json:"amount"`
		TotalMinted string   `json:"total_minted"`
		Latched     []string `json:"latched"`
	}
	if err := c.call(ctx, http.MethodPost, path, body, &raw); err != nil {
		return nil, err
	}
	r := &Receipt{Timestamp: raw.Timestamp}
	if err := parseUints(field{raw.Amount, &r.Amount}, field{raw.TotalMinted, &r.TotalMinted}); err != nil {
		return nil, err
	}
	for _, a := range raw.Latched {
		r.Latched = append(r.Latched, common.HexToAddress(a))
	}
	return r, nil
}

// SetMintingEnabled opens or closes the mint gate.
func (c *Client) SetMintingEnabled(ctx context.Context, enabled bool) error {
	return c.call(ctx, http.MethodPut, "/api/v1/minting", map[string]bool{"enabled": enabled}, nil)
}

// SetBaseURI replaces the metadata base URI.
func (c *Client) SetBaseURI(ctx context.Context, uri string) error {
	return c.call(ctx, http.MethodPut, "/api/v1/metadata/base-uri", map[string]string{"uri": uri}, nil)
}

// SetContractURI replaces the contract-level metadata URI.
func (c *Client) SetContractURI(ctx context.Context, uri string) error {
	return c.call(ctx, http.MethodPut, "/api/v1/metadata/contract-uri", map[string]string{"uri": uri}, nil)
}

// AuditOverview returns the audit chain length and root hash.
func (c *Client) AuditOverview(ctx context.Context) (*AuditOverview, error) {
	var o AuditOverview
	if err := c.call(ctx, http.MethodGet, "/api/v1/audit", nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// AuditVerify asks the server to walk the audit chain. A nil error with
// valid=false carries the server's reason.
func (c *Client) AuditVerify(ctx context.Context) (valid bool, reason string, err error) {
	var raw struct {
		Valid bool   `json:"valid"`
		Error string `json:"error"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/audit/verify", nil, &raw); err != nil {
		return false, "", err
	}
	return raw.Valid, raw.Error, nil
}

// AuditEntry returns one audit chain record.
func (c *Client) AuditEntry(ctx context.Context, idx int) (*AuditEntry, error) {
	var e AuditEntry
	if err := c.call(ctx, http.MethodGet, "/api/v1/audit/entries/"+strconv.Itoa(idx), nil, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// call sends in as JSON (when non-nil) and decodes the response into out
// (when non-nil).
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	respBody, err := c.do(req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	c.mu.RLock()
	token := c.bearerToken
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var e struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			apiErr.Code, apiErr.Message = e.Code, e.Error
		} else {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return nil, apiErr
	}
	return body, nil
}

// field pairs a decimal string from a response with its destination.
type field struct {
	raw string
	dst *uint64
}

func parseUints(fields ...field) error {
	for _, f := range fields {
		v, err := strconv.ParseUint(f.raw, 10, 64)
		if err != nil {
			return fmt.Errorf("parse %q: %w", f.raw, err)
		}
		*f.dst = v
	}
	return nil
}
