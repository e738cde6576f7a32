package kis

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/anc5557/kis-mcp/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// newTestClient wires a Client against a fake KIS host. The handler receives
// every request except token issuance, which is answered automatically.
func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth2/tokenP" {
			json.NewEncoder(w).Encode(map[string]any{
				"access_token": "test-token",
				"token_type":   "Bearer",
				"expires_in":   86400,
			})
			return
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := config.KIS{AppKey: "key", AppSecret: "secret"}
	c := NewClient(cfg, "12345678", "01", discardLogger(), WithBaseURL(srv.URL))
	return c, srv
}

func TestClientSendsAuthHeaders(t *testing.T) {
	var gotTr, gotAuth, gotAppKey string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotTr = r.Header.Get("tr_id")
		gotAuth = r.Header.Get("Authorization")
		gotAppKey = r.Header.Get("appkey")
		json.NewEncoder(w).Encode(map[string]any{
			"rt_cd": "0", "msg_cd": "MCA00000", "msg1": "ok",
			"output": map[string]any{"stck_prpr": "71900"},
		})
	})

	p, err := c.Price(context.Background(), "005930")
	if err != nil {
		t.Fatalf("Price returned error: %v", err)
	}
	if gotTr != "FHKST01010100" {
		t.Errorf("tr_id = %q, want FHKST01010100", gotTr)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q, want Bearer test-token", gotAuth)
	}
	if gotAppKey != "key" {
		t.Errorf("appkey = %q, want key", gotAppKey)
	}
	if v, _ := Int(p, "currentPrice"); v != 71900 {
		t.Errorf("currentPrice = %d, want 71900", v)
	}
}

func TestClientAPIError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"rt_cd": "1", "msg_cd": "EGW00123", "msg1": "주문가능금액을 초과했습니다",
		})
	})

	_, err := c.Price(context.Background(), "005930")
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("error = %T (%v), want *APIError", err, err)
	}
	if apiErr.Code != "EGW00123" {
		t.Errorf("APIError.Code = %q, want EGW00123", apiErr.Code)
	}
}

func TestClientVirtualTrID(t *testing.T) {
	cfg := config.KIS{AppKey: "k", AppSecret: "s", Virtual: true}
	c := NewClient(cfg, "12345678", "01", discardLogger())

	if got := c.trID("TTTC8434R"); got != "VTTC8434R" {
		t.Errorf("virtual trID = %q, want VTTC8434R", got)
	}
	if got := c.trID("FHKST01010100"); got != "FHKST01010100" {
		t.Errorf("quotation trID = %q, want unchanged", got)
	}

	real := NewClient(config.KIS{AppKey: "k", AppSecret: "s"}, "12345678", "01", discardLogger())
	if got := real.trID("TTTC8434R"); got != "TTTC8434R" {
		t.Errorf("real trID = %q, want unchanged", got)
	}
}

func TestClientTokenReuse(t *testing.T) {
	tokenCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth2/tokenP" {
			tokenCalls++
			json.NewEncoder(w).Encode(map[string]any{
				"access_token": "tok", "expires_in": 86400,
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"rt_cd": "0", "output": map[string]any{}})
	}))
	defer srv.Close()

	cfg := config.KIS{AppKey: "k", AppSecret: "s"}
	c := NewClient(cfg, "12345678", "01", discardLogger(), WithBaseURL(srv.URL))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := c.Price(ctx, "005930"); err != nil {
			t.Fatalf("Price #%d returned error: %v", i, err)
		}
	}
	if tokenCalls != 1 {
		t.Errorf("token endpoint called %d times, want 1", tokenCalls)
	}
}

func TestClientTokenCacheFile(t *testing.T) {
	path := t.TempDir() + "/token.json"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-a", "expires_in": 86400,
		})
	}))
	defer srv.Close()

	cfg := config.KIS{AppKey: "k", AppSecret: "s", TokenPath: path}
	c := NewClient(cfg, "12345678", "01", discardLogger(), WithBaseURL(srv.URL))
	if err := c.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}

	// A second client must reuse the persisted token without hitting the
	// token endpoint again.
	dead := NewClient(cfg, "12345678", "01", discardLogger(), WithBaseURL("http://127.0.0.1:1"))
	if err := dead.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate with cached token returned error: %v", err)
	}
	if dead.token != "tok-a" {
		t.Errorf("cached token = %q, want tok-a", dead.token)
	}
}

func TestClientExpiredCacheIgnored(t *testing.T) {
	path := t.TempDir() + "/token.json"
	stale, _ := json.Marshal(cachedToken{AccessToken: "old", ExpiresAt: time.Now().Add(-time.Hour)})
	if err := os.WriteFile(path, stale, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := config.KIS{AppKey: "k", AppSecret: "s", TokenPath: path}
	c := NewClient(cfg, "12345678", "01", discardLogger())
	if tok := c.loadCachedToken(); tok != nil {
		t.Errorf("loadCachedToken = %+v, want nil for expired token", tok)
	}
}
