package payment

import (
	"strings"
	"unicode/utf8"

	"finna-payment/internal/config"
)

// parseMappings reads "key=value:key2=value2" settings. Malformed pairs are
// skipped.
func parseMappings(s string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ":") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}

type productCodes struct {
	fallback string
	fee      string
	byType   map[string]string
	byOrg    map[string]string
	maxLen   int
}

func newProductCodes(cfg config.Gateway, maxLen int) productCodes {
	fee := cfg.TransactionFeeProductCode
	if fee == "" {
		fee = cfg.ProductCode
	}
	return productCodes{
		fallback: cfg.ProductCode,
		fee:      fee,
		byType:   parseMappings(cfg.ProductCodeMappings),
		byOrg:    parseMappings(cfg.OrganizationProductCodeMappings),
		maxLen:   maxLen,
	}
}

// forFine resolves the code of a fine: the fine type mapping replaces the
// default code and the organization mapping is prepended to the result.
func (p productCodes) forFine(f Fine) string {
	code := p.fallback
	if c, ok := p.byType[f.Type]; ok {
		code = c
	}
	if prefix, ok := p.byOrg[f.Organization]; ok {
		code = prefix + code
	}
	return truncateRunes(code, p.maxLen)
}

func (p productCodes) forTransactionFee() string {
	return truncateRunes(p.fee, p.maxLen)
}

// truncateRunes cuts s to at most n characters without splitting a
// multi-byte sequence. Invalid UTF-8 is dropped first.
func truncateRunes(s string, n int) string {
	s = strings.ToValidUTF8(s, "")
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
