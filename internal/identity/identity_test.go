package identity_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/jmerrifield20/SovereignLedger/internal/identity"
)

const testIssuer = "https://ledger.test"

var (
	testSecret = []byte("0123456789abcdef0123456789abcdef")
	alice      = common.HexToAddress("0x000000000000000000000000000000000000a11c")
)

func newTestIssuer(t *testing.T, ttl time.Duration) *identity.TokenIssuer {
	t.Helper()
	ti, err := identity.NewTokenIssuer(testSecret, testIssuer, ttl)
	if err != nil {
		t.Fatal(err)
	}
	return ti
}

func TestNewTokenIssuer_weakSecret(t *testing.T) {
	if _, err := identity.NewTokenIssuer([]byte("short"), testIssuer, 0); err != identity.ErrWeakSecret {
		t.Errorf("expected ErrWeakSecret, got %v", err)
	}
}

func TestTokenIssuer_roundTrip(t *testing.T) {
	ti := newTestIssuer(t, time.Hour)

	token, err := ti.Issue(alice)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	if parts := strings.Split(token, "."); len(parts) != 3 {
		t.Errorf("expected 3-part JWT, got %d parts", len(parts))
	}

	claims, err := ti.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if claims.Caller() != alice {
		t.Errorf("Caller(): got %s, want %s", claims.Caller().Hex(), alice.Hex())
	}
	if claims.Subject != alice.Hex() {
		t.Errorf("Subject: got %q", claims.Subject)
	}
}

func TestTokenIssuer_Verify_expired(t *testing.T) {
	ti := newTestIssuer(t, time.Nanosecond)
	token, err := ti.Issue(alice)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(1100 * time.Millisecond)
	if _, err := ti.Verify(token); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestTokenIssuer_Verify_wrongIssuer(t *testing.T) {
	a := newTestIssuer(t, time.Hour)
	b, err := identity.NewTokenIssuer(testSecret, "https://other.test", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	token, _ := a.Issue(alice)
	if _, err := b.Verify(token); err == nil {
		t.Error("expected error for foreign issuer")
	}
}

func TestTokenIssuer_Verify_wrongSecret(t *testing.T) {
	a := newTestIssuer(t, time.Hour)
	b, err := identity.NewTokenIssuer([]byte("fedcba9876543210fedcba9876543210"), testIssuer, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	token, _ := a.Issue(alice)
	if _, err := b.Verify(token); err == nil {
		t.Error("expected error for token signed with another secret")
	}
}

func TestTokenIssuer_Verify_garbage(t *testing.T) {
	ti := newTestIssuer(t, time.Hour)
	if _, err := ti.Verify("not.a.token"); err == nil {
		t.Error("expected error for malformed token")
	}
}

func TestKeyRing(t *testing.T) {
	hash, err := identity.HashKey("correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		t.Fatalf("HashKey produced invalid bcrypt hash: %v", err)
	}

	kr := identity.NewKeyRing()
	if err := kr.Add(alice, hash); err != nil {
		t.Fatal(err)
	}
	if kr.Len() != 1 {
		t.Errorf("Len(): got %d", kr.Len())
	}

	if err := kr.Verify(alice, "correct horse"); err != nil {
		t.Errorf("Verify() with right key: %v", err)
	}
	if err := kr.Verify(alice, "battery staple"); err != identity.ErrInvalidKey {
		t.Errorf("wrong key: got %v, want ErrInvalidKey", err)
	}
	stranger := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	if err := kr.Verify(stranger, "correct horse"); err != identity.ErrInvalidKey {
		t.Errorf("unknown address: got %v, want ErrInvalidKey", err)
	}
	if err := kr.Add(stranger, "plaintext"); err == nil {
		t.Error("Add() should reject a non-bcrypt hash")
	}
}

func TestRequireCaller(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ti := newTestIssuer(t, time.Hour)
	token, _ := ti.Issue(alice)

	r := gin.New()
	r.GET("/whoami", identity.RequireCaller(ti), func(c *gin.Context) {
		c.String(http.StatusOK, identity.CallerFromCtx(c).Hex())
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Fatalf("status: got %d, want %d; body: %s", w.Code, tt.want, w.Body.String())
			}
			if tt.want == http.StatusOK && w.Body.String() != alice.Hex() {
				t.Errorf("caller: got %q, want %q", w.Body.String(), alice.Hex())
			}
		})
	}
}

func TestCallerFromCtx_noClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if got := identity.CallerFromCtx(c); got != (common.Address{}) {
		t.Errorf("expected zero address, got %s", got.Hex())
	}
}
