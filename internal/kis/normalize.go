package kis

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Payload is one decoded JSON object from a KIS API response body.
type Payload map[string]any

// ErrFieldUnavailable reports that no known alias of a canonical field is
// present in a payload. It is a signal, not a failure: callers decide whether
// absence of that particular field is fatal.
var ErrFieldUnavailable = errors.New("field unavailable")

// aliases maps each canonical field name to the concrete KIS field names it
// may appear under, in resolution order. The KIS open API does not document
// these names as a stable contract and they drift between endpoint revisions;
// this table is the single point of adaptation and is extended empirically.
//
// Entries containing "%d" are indexed families resolved via ResolveAt (order
// book levels are numbered askp1..askp10 and so on).
var aliases = map[string][]string{
	// quotations
	"currentPrice": {"stck_prpr", "prpr", "last"},
	"changeAmount": {"prdy_vrss"},
	"changeRate":   {"prdy_ctrt"},
	"volume":       {"acml_vol", "cntg_vol", "vol"},
	"tradingValue": {"acml_tr_pbmn"},
	"marketCap":    {"hts_avls"},
	"openPrice":    {"stck_oprc", "oprc"},
	"highPrice":    {"stck_hgpr", "hgpr"},
	"lowPrice":     {"stck_lwpr", "lwpr"},
	"closePrice":   {"stck_clpr", "clpr"},
	"barDate":      {"stck_bsop_date", "bsop_date"},

	// order book
	"askPrice": {"askp%d"},
	"askQty":   {"askp_rsqn%d"},
	"bidPrice": {"bidp%d"},
	"bidQty":   {"bidp_rsqn%d"},

	// balance / positions
	"stockCode":        {"pdno", "stck_shrn_iscd", "mksc_shrn_iscd"},
	"stockName":        {"prdt_name", "hts_kor_isnm"},
	"holdingQty":       {"hldg_qty", "cblc_qty"},
	"orderableQty":     {"ord_psbl_qty"},
	"avgPurchasePrice": {"pchs_avg_pric"},
	"valuationAmount":  {"evlu_amt"},
	"profitAmount":     {"evlu_pfls_amt"},
	"profitRate":       {"evlu_pfls_rt"},
	"totalValuation":   {"tot_evlu_amt"},
	"netAssets":        {"nass_amt"},
	"withdrawable":     {"prvs_rcdl_excc_amt", "wdrw_psbl_tot_amt", "dnca_tot_amt"},
	"stocksValuation":  {"scts_evlu_amt"},

	// orders / executions
	"orderID":        {"odno", "ord_no"},
	"originalID":     {"orgn_odno"},
	"orderBranch":    {"ord_gno_brno", "krx_fwdg_ord_orgno"},
	"orderQty":       {"ord_qty"},
	"pendingQty":     {"psbl_qty", "rmn_qty", "unerc_qty"},
	"orderPrice":     {"ord_unpr", "ord_pric"},
	"orderTime":      {"ord_tmd"},
	"sideCode":       {"sll_buy_dvsn_cd"},
	"executedQty":    {"tot_ccld_qty", "ccld_qty"},
	"executedAmount": {"tot_ccld_amt", "ccld_amt"},
	"avgExecPrice":   {"avg_prvs", "ccld_unpr"},

	// buyable
	"buyableCash":  {"ord_psbl_cash", "dnca_tot_amt"},
	"maxBuyQty":    {"max_buy_qty", "nrcvb_buy_qty"},
	"maxBuyAmount": {"max_buy_amt", "nrcvb_buy_amt"},

	// profit / loss
	"realizedProfit": {"rlzt_pfls", "rlzt_pfls_smtl_amt"},
	"buyAmount":      {"buy_amt", "pchs_amt", "pchs_amt_smtl"},
	"sellAmount":     {"sll_amt", "sll_excc_amt", "evlu_amt_smtl"},
	"tradeDate":      {"trad_dt"},
}

// Resolve returns the first present, non-empty value for the canonical field.
func Resolve(p Payload, canonical string) (any, error) {
	return ResolveAt(p, canonical, 0)
}

// ResolveAt resolves an indexed alias family (e.g. askPrice at depth 3 tries
// "askp3"). For non-indexed fields the index is ignored.
func ResolveAt(p Payload, canonical string, i int) (any, error) {
	names, ok := aliases[canonical]
	if !ok {
		return nil, fmt.Errorf("%w: unknown canonical field %q", ErrFieldUnavailable, canonical)
	}
	for _, name := range names {
		if strings.Contains(name, "%d") {
			name = fmt.Sprintf(name, i)
		}
		v, present := p[name]
		if !present || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && s == "" {
			// KIS encodes "not applicable" as the empty string.
			continue
		}
		return v, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrFieldUnavailable, canonical)
}

// Str resolves the canonical field as a string.
func Str(p Payload, canonical string) (string, error) {
	v, err := Resolve(p, canonical)
	if err != nil {
		return "", err
	}
	return fmt.Sprint(v), nil
}

// Int resolves the canonical field as an integer. KIS serialises every number
// as a string, occasionally with a decimal tail ("71900.00"), so both forms
// are accepted.
func Int(p Payload, canonical string) (int64, error) {
	return IntAt(p, canonical, 0)
}

// IntAt is Int for indexed alias families.
func IntAt(p Payload, canonical string, i int) (int64, error) {
	v, err := ResolveAt(p, canonical, i)
	if err != nil {
		return 0, err
	}
	return toInt(v, canonical)
}

// Float resolves the canonical field as a float64.
func Float(p Payload, canonical string) (float64, error) {
	v, err := Resolve(p, canonical)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case string:
		f, perr := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if perr != nil {
			return 0, fmt.Errorf("%w: %s is not numeric (%q)", ErrFieldUnavailable, canonical, n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: %s has unexpected type %T", ErrFieldUnavailable, canonical, v)
	}
}

func toInt(v any, canonical string) (int64, error) {
	switch n := v.(type) {
	case float64:
		return int64(n), nil
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f), nil
		}
		return 0, fmt.Errorf("%w: %s is not numeric (%q)", ErrFieldUnavailable, canonical, n)
	default:
		return 0, fmt.Errorf("%w: %s has unexpected type %T", ErrFieldUnavailable, canonical, v)
	}
}
