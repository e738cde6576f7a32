package adapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anc5557/kis-mcp/internal/config"
	"github.com/anc5557/kis-mcp/internal/kis"
)

// newTestSession opens a Session against a fake KIS host. Handlers are
// registered on the returned mux by path; token issuance is pre-wired.
func newTestSession(t *testing.T) (*kis.Session, *http.ServeMux) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/tokenP", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"access_token": "test-token", "expires_in": 86400})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := config.KIS{AppKey: "key", AppSecret: "secret", AccountNo: "12345678-01"}
	provider := kis.NewProvider(cfg, slog.New(slog.DiscardHandler), kis.WithBaseURL(srv.URL))
	sess, err := provider.Session(context.Background())
	if err != nil {
		t.Fatalf("test session: %v", err)
	}
	return sess, mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// kisOK writes a successful KIS envelope with the given output sections
// ("output", "output1", "output2").
func kisOK(sections map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"rt_cd": "0", "msg_cd": "MCA00000", "msg1": "정상처리 되었습니다."}
		for k, v := range sections {
			body[k] = v
		}
		writeJSON(w, body)
	}
}

// kisReject writes a business-level rejection (rt_cd 1).
func kisReject(msgCd, msg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"rt_cd": "1", "msg_cd": msgCd, "msg1": msg})
	}
}

func wantKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	got, ok := KindOf(err)
	if !ok {
		t.Fatalf("error %v is not an adapter.Error", err)
	}
	if got != kind {
		t.Fatalf("error kind = %s, want %s (err: %v)", got, kind, err)
	}
}

func testLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }
