package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/SovereignLedger/internal/identity"
	"github.com/jmerrifield20/SovereignLedger/internal/ledger"
	"github.com/jmerrifield20/SovereignLedger/internal/ledger/handler"
	"github.com/jmerrifield20/SovereignLedger/internal/ledger/store"
)

var (
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	alice    = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

type testServer struct {
	router *gin.Engine
	tokens *identity.TokenIssuer
}

func setupLedgerRouter(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	now := time.Unix(ledger.ReferenceEpoch+86_400, 0)
	l, err := ledger.Open(context.Background(), store.NewMemoryStore(), ledger.Genesis{
		Owner:   owner,
		BaseURI: "ipfs://X/",
	}, zap.NewNop(), ledger.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatal(err)
	}

	tokens, err := identity.NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"), "https://ledger.test", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	r := gin.New()
	handler.NewLedgerHandler(l, tokens, zap.NewNop()).Register(r.Group("/api/v1"))
	return &testServer{router: r, tokens: tokens}
}

func (s *testServer) do(t *testing.T, method, path string, as *common.Address, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		token, err := s.tokens.Issue(*as)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestProgress_200(t *testing.T) {
	s := setupLedgerRouter(t)

	w := s.do(t, http.MethodGet, "/api/v1/progress", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode(t, w)
	if resp["minted"] != "0" || resp["remaining"] != "144000" || resp["cap"] != "144000" {
		t.Errorf("unexpected progress: %v", resp)
	}
}

func TestMint_requiresToken(t *testing.T) {
	s := setupLedgerRouter(t)

	w := s.do(t, http.MethodPost, "/api/v1/mint", nil, handler.MintRequest{To: alice.Hex(), Amount: "1"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestMint_nonOwner_403(t *testing.T) {
	s := setupLedgerRouter(t)

	w := s.do(t, http.MethodPost, "/api/v1/mint", &stranger, handler.MintRequest{To: alice.Hex(), Amount: "1"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
	if code := decode(t, w)["code"]; code != handler.CodeUnauthorized {
		t.Errorf("code: got %v", code)
	}
}

func TestMint_200_thenProof(t *testing.T) {
	s := setupLedgerRouter(t)

	w := s.do(t, http.MethodPost, "/api/v1/mint", &owner, handler.MintRequest{To: alice.Hex(), Amount: "500"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var receipt handler.ReceiptResponse
	if err := json.Unmarshal(w.Body.Bytes(), &receipt); err != nil {
		t.Fatal(err)
	}
	if receipt.TotalMinted != "500" || len(receipt.Latched) != 1 || receipt.Latched[0] != alice.Hex() {
		t.Errorf("unexpected receipt: %+v", receipt)
	}

	w = s.do(t, http.MethodGet, "/api/v1/proofs/"+alice.Hex(), nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var proof handler.ProofResponse
	if err := json.Unmarshal(w.Body.Bytes(), &proof); err != nil {
		t.Fatal(err)
	}
	if proof.Timestamp != ledger.ReferenceEpoch+86_400 || proof.Delta != 86_400 || proof.Balance != "500" || !proof.Validated {
		t.Errorf("unexpected proof: %+v", proof)
	}

	w = s.do(t, http.MethodGet, "/api/v1/proofs/"+bob.Hex()+"/validated", nil, nil)
	if resp := decode(t, w); resp["validated"] != false {
		t.Errorf("bob should not be validated: %v", resp)
	}

	w = s.do(t, http.MethodGet, "/api/v1/balances/"+alice.Hex(), nil, nil)
	if resp := decode(t, w); resp["balance"] != "500" {
		t.Errorf("balance: %v", resp)
	}
}

func TestMint_badInput_400(t *testing.T) {
	s := setupLedgerRouter(t)

	cases := map[string]handler.MintRequest{
		"short address":   {To: "0x1234", Amount: "1"},
		"no 0x prefix":    {To: "000000000000000000000000000000000000a11c", Amount: "1"},
		"negative amount": {To: alice.Hex(), Amount: "-1"},
		"float amount":    {To: alice.Hex(), Amount: "1.5"},
		"missing amount":  {To: alice.Hex()},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/v1/mint", &owner, req)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestMint_zeroAddress_400(t *testing.T) {
	s := setupLedgerRouter(t)

	w := s.do(t, http.MethodPost, "/api/v1/mint", &owner, handler.MintRequest{To: common.Address{}.Hex(), Amount: "1"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if code := decode(t, w)["code"]; code != handler.CodeZeroAddress {
		t.Errorf("code: got %v", code)
	}
}

func TestMint_overCap_409(t *testing.T) {
	s := setupLedgerRouter(t)

	w := s.do(t, http.MethodPost, "/api/v1/mint", &owner, handler.MintRequest{To: alice.Hex(), Amount: "144001"})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	resp := decode(t, w)
	if resp["code"] != handler.CodeSupplyCapExceeded || resp["remaining"] != "144000" {
		t.Errorf("unexpected body: %v", resp)
	}
}

func TestMintBatch(t *testing.T) {
	s := setupLedgerRouter(t)

	w := s.do(t, http.MethodPost, "/api/v1/mint/batch", &owner, handler.BatchMintRequest{
		Recipients: []string{alice.Hex(), bob.Hex()},
		Amounts:    []string{"10"},
	})
	if w.Code != http.StatusBadRequest || decode(t, w)["code"] != handler.CodeLengthMismatch {
		t.Fatalf("expected 400 length_mismatch, got %d: %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodPost, "/api/v1/mint/batch", &owner, handler.BatchMintRequest{
		Recipients: []string{alice.Hex(), bob.Hex()},
		Amounts:    []string{"10", "20"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var receipt handler.ReceiptResponse
	_ = json.Unmarshal(w.Body.Bytes(), &receipt)
	if receipt.Amount != "30" || receipt.TotalMinted != "30" {
		t.Errorf("unexpected receipt: %+v", receipt)
	}
}

func TestSetMinting_disablesMints(t *testing.T) {
	s := setupLedgerRouter(t)

	w := s.do(t, http.MethodPut, "/api/v1/minting", &owner, gin.H{"enabled": false})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodPost, "/api/v1/mint", &owner, handler.MintRequest{To: alice.Hex(), Amount: "1"})
	if w.Code != http.StatusConflict || decode(t, w)["code"] != handler.CodeMintingDisabled {
		t.Fatalf("expected 409 minting_disabled, got %d: %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/api/v1/status", nil, nil)
	if resp := decode(t, w); resp["minting_enabled"] != false || resp["owner"] != owner.Hex() {
		t.Errorf("unexpected status: %v", resp)
	}

	w = s.do(t, http.MethodPut, "/api/v1/minting", &owner, gin.H{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing enabled: expected 400, got %d", w.Code)
	}
}

func TestMetadataRoutes(t *testing.T) {
	s := setupLedgerRouter(t)

	w := s.do(t, http.MethodGet, "/api/v1/metadata/1", nil, nil)
	if resp := decode(t, w); resp["uri"] != "ipfs://X/1.json" {
		t.Errorf("uri: %v", resp)
	}

	w = s.do(t, http.MethodPut, "/api/v1/metadata/base-uri", &stranger, handler.URIRequest{URI: "https://evil/"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}

	w = s.do(t, http.MethodPut, "/api/v1/metadata/base-uri", &owner, handler.URIRequest{URI: "https://meta/"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	w = s.do(t, http.MethodGet, "/api/v1/metadata/7", nil, nil)
	if resp := decode(t, w); resp["uri"] != "https://meta/7.json" {
		t.Errorf("uri after update: %v", resp)
	}

	w = s.do(t, http.MethodPut, "/api/v1/metadata/contract-uri", &owner, handler.URIRequest{URI: "https://meta/c.json"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	w = s.do(t, http.MethodGet, "/api/v1/contract-uri", nil, nil)
	if resp := decode(t, w); resp["contract_uri"] != "https://meta/c.json" {
		t.Errorf("contract uri: %v", resp)
	}

	w = s.do(t, http.MethodGet, "/api/v1/metadata/abc", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("non-numeric id: expected 400, got %d", w.Code)
	}
}

func TestProof_invalidAddress_400(t *testing.T) {
	s := setupLedgerRouter(t)

	w := s.do(t, http.MethodGet, "/api/v1/proofs/not-an-address", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
