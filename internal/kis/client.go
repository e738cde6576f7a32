// Package kis is the client layer for the Korea Investment Securities (KIS)
// open API: REST transport with OAuth token lifecycle, the per-process
// authenticated Session, and the response normalizer that shields callers
// from unstable KIS field names.
package kis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/anc5557/kis-mcp/internal/config"
	"github.com/anc5557/kis-mcp/internal/util"
)

// KIS open API hosts. The mock-trading (virtual) host mirrors the real one
// with VT-prefixed transaction ids for trading endpoints.
const (
	RealBaseURL    = "https://openapi.koreainvestment.com:9443"
	VirtualBaseURL = "https://openapivts.koreainvestment.com:29443"
)

// KIS rate limits, requests per second.
const (
	realRatePerSec    = 20
	virtualRatePerSec = 2
)

// tokenMargin is subtracted from the token expiry so a token is refreshed
// before the brokerage rejects it mid-call.
const tokenMargin = 5 * time.Minute

// APIError is a business-level rejection from the KIS API (rt_cd != "0").
type APIError struct {
	TrID    string
	Code    string // msg_cd
	Message string // msg1
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kis api %s: %s (%s)", e.TrID, e.Message, e.Code)
}

// AuthError reports a failed or impossible authentication. It is fatal to
// the process: no tool can be served without a session.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("kis auth: %s: %v", e.Reason, e.Err)
	}
	return "kis auth: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }

// Client is the low-level KIS REST client. It owns the access token and the
// request rate limiter; it is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	appKey     string
	appSecret  string
	virtual    bool
	cano       string // account number, first 8 digits
	prdtCode   string // account product code, last 2 digits
	limiter    *util.RateLimiter
	log        *slog.Logger

	tokenPath string
	mu        sync.Mutex
	token     string
	tokenExp  time.Time
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL overrides the API host. Used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// NewClient creates a Client for the given credentials. cano and prdtCode
// are the two halves of the account number ("12345678-01").
func NewClient(cfg config.KIS, cano, prdtCode string, log *slog.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		appKey:     cfg.AppKey,
		appSecret:  cfg.AppSecret,
		virtual:    cfg.Virtual,
		cano:       cano,
		prdtCode:   prdtCode,
		tokenPath:  cfg.TokenPath,
		log:        log,
	}
	if cfg.Virtual {
		c.baseURL = VirtualBaseURL
		c.limiter = util.NewRateLimiter(virtualRatePerSec)
	} else {
		c.baseURL = RealBaseURL
		c.limiter = util.NewRateLimiter(realRatePerSec)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// trID maps a real-trading transaction id to its mock-trading counterpart
// when the client runs in virtual mode. Quotation ids are mode-independent.
func (c *Client) trID(base string) string {
	if c.virtual && len(base) > 1 && base[0] == 'T' {
		return "V" + base[1:]
	}
	return base
}

// ---------------------------------------------------------------------------
// Token lifecycle
// ---------------------------------------------------------------------------

type cachedToken struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Authenticate eagerly acquires an access token. Used at session creation so
// bad credentials fail the process start instead of the first tool call.
func (c *Client) Authenticate(ctx context.Context) error {
	_, err := c.ensureToken(ctx)
	return err
}

func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExp.Add(-tokenMargin)) {
		return c.token, nil
	}

	if tok := c.loadCachedToken(); tok != nil {
		c.token, c.tokenExp = tok.AccessToken, tok.ExpiresAt
		return c.token, nil
	}

	if c.appKey == "" || c.appSecret == "" {
		return "", &AuthError{Reason: "app key and secret are required"}
	}

	var resp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	body := map[string]string{
		"grant_type": "client_credentials",
		"appkey":     c.appKey,
		"appsecret":  c.appSecret,
	}

	// Token issuance is the one call worth retrying: it happens once a day
	// and a transient failure here would otherwise kill the process.
	err := util.Retry(ctx, 3, 500*time.Millisecond, func() error {
		return c.postJSON(ctx, "/oauth2/tokenP", body, &resp)
	})
	if err != nil {
		return "", &AuthError{Reason: "token issuance failed", Err: err}
	}
	if resp.AccessToken == "" {
		return "", &AuthError{Reason: "token issuance returned no access token"}
	}

	c.token = resp.AccessToken
	c.tokenExp = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	c.saveCachedToken()
	c.log.Debug("kis access token issued", "expires_at", c.tokenExp)
	return c.token, nil
}

func (c *Client) loadCachedToken() *cachedToken {
	if c.tokenPath == "" {
		return nil
	}
	data, err := os.ReadFile(c.tokenPath)
	if err != nil {
		return nil
	}
	var tok cachedToken
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil
	}
	if tok.AccessToken == "" || time.Now().After(tok.ExpiresAt.Add(-tokenMargin)) {
		return nil
	}
	return &tok
}

func (c *Client) saveCachedToken() {
	if c.tokenPath == "" {
		return
	}
	data, err := json.Marshal(cachedToken{AccessToken: c.token, ExpiresAt: c.tokenExp})
	if err != nil {
		return
	}
	if err := os.WriteFile(c.tokenPath, data, 0o600); err != nil {
		c.log.Warn("could not persist access token", "path", c.tokenPath, "error", err)
	}
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("POST %s: status %d: %s", path, res.StatusCode, truncate(data))
	}
	return json.Unmarshal(data, out)
}

// ---------------------------------------------------------------------------
// Request plumbing
// ---------------------------------------------------------------------------

// apiResponse is the common KIS response envelope. Depending on the endpoint
// the data sits under output, output1, or output2, each either an object or
// an array.
type apiResponse struct {
	RtCd    string          `json:"rt_cd"`
	MsgCd   string          `json:"msg_cd"`
	Msg1    string          `json:"msg1"`
	Output  json.RawMessage `json:"output"`
	Output1 json.RawMessage `json:"output1"`
	Output2 json.RawMessage `json:"output2"`
}

func (c *Client) do(ctx context.Context, method, path, tr string, query url.Values, body any) (*apiResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("appkey", c.appKey)
	req.Header.Set("appsecret", c.appSecret)
	req.Header.Set("tr_id", tr)
	req.Header.Set("custtype", "P")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kis %s: %w", tr, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("kis %s: %w", tr, err)
	}

	var resp apiResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("kis %s: status %d: %s", tr, res.StatusCode, truncate(data))
	}
	if resp.RtCd != "" && resp.RtCd != "0" {
		return nil, &APIError{TrID: tr, Code: resp.MsgCd, Message: resp.Msg1}
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kis %s: status %d: %s", tr, res.StatusCode, truncate(data))
	}
	return &resp, nil
}

func truncate(data []byte) string {
	const max = 200
	if len(data) > max {
		return string(data[:max]) + "..."
	}
	return string(data)
}

func decodeObject(raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty output object")
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return p, nil
}

// decodeList decodes an output section that is either an array of objects or
// a single object (KIS uses both shapes for list outputs).
func decodeList(raw json.RawMessage) ([]Payload, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var list []Payload
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	p, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	return []Payload{p}, nil
}

// firstOf returns the first non-empty raw section.
func firstOf(sections ...json.RawMessage) json.RawMessage {
	for _, s := range sections {
		if len(s) > 0 && string(s) != "null" {
			return s
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Quotation endpoints (mode-independent transaction ids)
// ---------------------------------------------------------------------------

func (c *Client) marketQuery(code string) url.Values {
	return url.Values{
		"FID_COND_MRKT_DIV_CODE": {"J"},
		"FID_INPUT_ISCD":         {code},
	}
}

// Price fetches the current price snapshot for one stock.
func (c *Client) Price(ctx context.Context, code string) (Payload, error) {
	resp, err := c.do(ctx, http.MethodGet, "/uapi/domestic-stock/v1/quotations/inquire-price",
		"FHKST01010100", c.marketQuery(code), nil)
	if err != nil {
		return nil, err
	}
	return decodeObject(firstOf(resp.Output, resp.Output1))
}

// OrderBook fetches the ten-level asking-price snapshot for one stock.
func (c *Client) OrderBook(ctx context.Context, code string) (Payload, error) {
	resp, err := c.do(ctx, http.MethodGet, "/uapi/domestic-stock/v1/quotations/inquire-asking-price-exp-ccn",
		"FHKST01010200", c.marketQuery(code), nil)
	if err != nil {
		return nil, err
	}
	return decodeObject(firstOf(resp.Output1, resp.Output))
}

// DailyChart fetches OHLCV bars between start and end. periodCode is the KIS
// FID_PERIOD_DIV_CODE: "D" daily, "W" weekly, "M" monthly. Bars come back
// newest first.
func (c *Client) DailyChart(ctx context.Context, code, periodCode string, start, end time.Time) ([]Payload, error) {
	q := c.marketQuery(code)
	q.Set("FID_INPUT_DATE_1", start.Format("20060102"))
	q.Set("FID_INPUT_DATE_2", end.Format("20060102"))
	q.Set("FID_PERIOD_DIV_CODE", periodCode)
	q.Set("FID_ORG_ADJ_PRC", "0")

	resp, err := c.do(ctx, http.MethodGet, "/uapi/domestic-stock/v1/quotations/inquire-daily-itemchartprice",
		"FHKST03010100", q, nil)
	if err != nil {
		return nil, err
	}
	return decodeList(firstOf(resp.Output2, resp.Output))
}

// ---------------------------------------------------------------------------
// Trading endpoints (VT-prefixed transaction ids in virtual mode)
// ---------------------------------------------------------------------------

func (c *Client) accountQuery() url.Values {
	return url.Values{
		"CANO":         {c.cano},
		"ACNT_PRDT_CD": {c.prdtCode},
	}
}

// Balance fetches the account balance: the position list and the account
// summary row.
func (c *Client) Balance(ctx context.Context) (positions []Payload, summary Payload, err error) {
	q := c.accountQuery()
	q.Set("AFHR_FLPR_YN", "N")
	q.Set("OFL_YN", "")
	q.Set("INQR_DVSN", "02")
	q.Set("UNPR_DVSN", "01")
	q.Set("FUND_STTL_ICLD_YN", "N")
	q.Set("FNCG_AMT_AUTO_RDPT_YN", "N")
	q.Set("PRCS_DVSN", "00")
	q.Set("CTX_AREA_FK100", "")
	q.Set("CTX_AREA_NK100", "")

	resp, err := c.do(ctx, http.MethodGet, "/uapi/domestic-stock/v1/trading/inquire-balance",
		c.trID("TTTC8434R"), q, nil)
	if err != nil {
		return nil, nil, err
	}

	positions, err = decodeList(resp.Output1)
	if err != nil {
		return nil, nil, err
	}
	summaries, err := decodeList(resp.Output2)
	if err != nil {
		return nil, nil, err
	}
	if len(summaries) > 0 {
		summary = summaries[0]
	}
	return positions, summary, nil
}

// BuyableAmount fetches the orderable cash and maximum buy quantity for a
// stock at the given unit price. price 0 asks at market price.
func (c *Client) BuyableAmount(ctx context.Context, code string, price int64) (Payload, error) {
	q := c.accountQuery()
	q.Set("PDNO", code)
	if price > 0 {
		q.Set("ORD_UNPR", strconv.FormatInt(price, 10))
		q.Set("ORD_DVSN", "00")
	} else {
		q.Set("ORD_UNPR", "")
		q.Set("ORD_DVSN", "01")
	}
	q.Set("CMA_EVLU_AMT_ICLD_YN", "N")
	q.Set("OVRS_ICLD_YN", "N")

	resp, err := c.do(ctx, http.MethodGet, "/uapi/domestic-stock/v1/trading/inquire-psbl-order",
		c.trID("TTTC8908R"), q, nil)
	if err != nil {
		return nil, err
	}
	return decodeObject(firstOf(resp.Output, resp.Output1))
}

// SubmitOrder places a cash order. ordDvsn "00" is a limit order with a unit
// price, "01" a market order with price 0.
func (c *Client) SubmitOrder(ctx context.Context, buy bool, code string, qty, price int64, ordDvsn string) (Payload, error) {
	tr := "TTTC0801U" // sell
	if buy {
		tr = "TTTC0802U"
	}
	body := map[string]string{
		"CANO":         c.cano,
		"ACNT_PRDT_CD": c.prdtCode,
		"PDNO":         code,
		"ORD_DVSN":     ordDvsn,
		"ORD_QTY":      strconv.FormatInt(qty, 10),
		"ORD_UNPR":     strconv.FormatInt(price, 10),
	}
	resp, err := c.do(ctx, http.MethodPost, "/uapi/domestic-stock/v1/trading/order-cash",
		c.trID(tr), nil, body)
	if err != nil {
		return nil, err
	}
	return decodeObject(firstOf(resp.Output, resp.Output1))
}

// PendingOrders fetches orders that can still be amended or cancelled, i.e.
// pending or partially filled ones.
func (c *Client) PendingOrders(ctx context.Context) ([]Payload, error) {
	q := c.accountQuery()
	q.Set("INQR_DVSN_1", "0")
	q.Set("INQR_DVSN_2", "0")
	q.Set("CTX_AREA_FK100", "")
	q.Set("CTX_AREA_NK100", "")

	resp, err := c.do(ctx, http.MethodGet, "/uapi/domestic-stock/v1/trading/inquire-psbl-rvsecncl",
		c.trID("TTTC8036R"), q, nil)
	if err != nil {
		return nil, err
	}
	return decodeList(firstOf(resp.Output, resp.Output1))
}

// CancelOrder cancels the full remaining quantity of an order. branch is the
// forwarding branch number reported with the order.
func (c *Client) CancelOrder(ctx context.Context, branch, orderID string) (Payload, error) {
	body := map[string]string{
		"CANO":               c.cano,
		"ACNT_PRDT_CD":       c.prdtCode,
		"KRX_FWDG_ORD_ORGNO": branch,
		"ORGN_ODNO":          orderID,
		"ORD_DVSN":           "00",
		"RVSE_CNCL_DVSN_CD":  "02", // cancel
		"ORD_QTY":            "0",
		"ORD_UNPR":           "0",
		"QTY_ALL_ORD_YN":     "Y",
	}
	resp, err := c.do(ctx, http.MethodPost, "/uapi/domestic-stock/v1/trading/order-rvsecncl",
		c.trID("TTTC0803U"), nil, body)
	if err != nil {
		return nil, err
	}
	return decodeObject(firstOf(resp.Output, resp.Output1))
}

// DailyOrders fetches the order/execution history for a date range.
func (c *Client) DailyOrders(ctx context.Context, start, end time.Time) ([]Payload, error) {
	q := c.accountQuery()
	q.Set("INQR_STRT_DT", start.Format("20060102"))
	q.Set("INQR_END_DT", end.Format("20060102"))
	q.Set("SLL_BUY_DVSN_CD", "00")
	q.Set("INQR_DVSN", "00")
	q.Set("PDNO", "")
	q.Set("CCLD_DVSN", "00")
	q.Set("ORD_GNO_BRNO", "")
	q.Set("ODNO", "")
	q.Set("INQR_DVSN_3", "00")
	q.Set("INQR_DVSN_1", "")
	q.Set("CTX_AREA_FK100", "")
	q.Set("CTX_AREA_NK100", "")

	resp, err := c.do(ctx, http.MethodGet, "/uapi/domestic-stock/v1/trading/inquire-daily-ccld",
		c.trID("TTTC8001R"), q, nil)
	if err != nil {
		return nil, err
	}
	return decodeList(firstOf(resp.Output1, resp.Output))
}

// PeriodProfit fetches realized profit for a date range: per-day rows and a
// summary row.
func (c *Client) PeriodProfit(ctx context.Context, start, end time.Time) (daily []Payload, summary Payload, err error) {
	q := c.accountQuery()
	q.Set("INQR_STRT_DT", start.Format("20060102"))
	q.Set("INQR_END_DT", end.Format("20060102"))
	q.Set("SORT_DVSN", "00")
	q.Set("INQR_DVSN", "00")
	q.Set("CBLC_DVSN", "00")
	q.Set("CTX_AREA_FK100", "")
	q.Set("CTX_AREA_NK100", "")

	resp, err := c.do(ctx, http.MethodGet, "/uapi/domestic-stock/v1/trading/inquire-period-profit",
		c.trID("TTTC8715R"), q, nil)
	if err != nil {
		return nil, nil, err
	}

	daily, err = decodeList(resp.Output1)
	if err != nil {
		return nil, nil, err
	}
	summaries, err := decodeList(resp.Output2)
	if err != nil {
		return nil, nil, err
	}
	if len(summaries) > 0 {
		summary = summaries[0]
	}
	return daily, summary, nil
}
