package kis

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"github.com/anc5557/kis-mcp/internal/config"
)

var accountNoRe = regexp.MustCompile(`^(\d{8})-?(\d{2})$`)

// Session is the single authenticated brokerage connection for the process.
// It is created once by a Provider and borrowed by adapters for the duration
// of one call; adapters never copy or close it.
type Session struct {
	AccountNo string // full account number as configured
	Virtual   bool   // mock-trading mode

	api *Client
}

// API returns the underlying REST client.
func (s *Session) API() *Client { return s.api }

// Provider owns session acquisition. The first Session call authenticates
// against KIS; every later call returns the same *Session (or the same
// error — a failed first acquisition is not retried, per the process-fatal
// contract for authentication failures).
type Provider struct {
	cfg  config.KIS
	log  *slog.Logger
	opts []Option

	once sync.Once
	sess *Session
	err  error
}

// NewProvider creates a Provider. opts are forwarded to the Client and exist
// for tests that point the client at a fake KIS host.
func NewProvider(cfg config.KIS, log *slog.Logger, opts ...Option) *Provider {
	return &Provider{cfg: cfg, log: log, opts: opts}
}

// Session returns the process-wide authenticated session.
func (p *Provider) Session(ctx context.Context) (*Session, error) {
	p.once.Do(func() {
		p.sess, p.err = p.open(ctx)
	})
	return p.sess, p.err
}

func (p *Provider) open(ctx context.Context) (*Session, error) {
	if p.cfg.AppKey == "" || p.cfg.AppSecret == "" {
		return nil, &AuthError{Reason: "KIS_APP_KEY and KIS_APP_SECRET must be set"}
	}

	m := accountNoRe.FindStringSubmatch(p.cfg.AccountNo)
	if m == nil {
		return nil, &AuthError{Reason: fmt.Sprintf("account number %q is not of the form 12345678-01", p.cfg.AccountNo)}
	}
	cano, prdtCode := m[1], m[2]

	client := NewClient(p.cfg, cano, prdtCode, p.log, p.opts...)
	if err := client.Authenticate(ctx); err != nil {
		return nil, err
	}

	mode := "real"
	if p.cfg.Virtual {
		mode = "virtual"
	}
	p.log.Info("kis session opened", "account", cano+"-"+prdtCode, "mode", mode)

	return &Session{
		AccountNo: p.cfg.AccountNo,
		Virtual:   p.cfg.Virtual,
		api:       client,
	}, nil
}
