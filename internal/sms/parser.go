package sms

import (
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// amountToken matches a currency amount with optional thousands separators
// and exactly two decimal places, optionally prefixed by a cedi marker.
const amountToken = `(?:GHS?|GH₵|₵)?\s?([0-9][0-9,]*\.[0-9]{2})`

// family is one provider-specific pattern: a compiled expression plus the
// capture-group positions for amount and counterparty. Families are evaluated
// in declaration order and the first match wins, so ties are impossible.
type family struct {
	name      string
	provider  Provider
	direction Direction
	re        *regexp.Regexp
	cpGroup   int // 0 = no counterparty captured
}

var families = []family{
	{
		name:      "mtn_sent",
		provider:  ProviderMTN,
		direction: DirectionSent,
		re:        regexp.MustCompile(`(?i)you\s+have\s+(?:sent|paid|transferred)\s+` + amountToken + `\s+to\s+(\+?\d+)`),
		cpGroup:   2,
	},
	{
		name:      "mtn_received",
		provider:  ProviderMTN,
		direction: DirectionReceived,
		re:        regexp.MustCompile(`(?i)you\s+have\s+received\s+` + amountToken + `\s+from\s+(\+?\d+)`),
		cpGroup:   2,
	},
	{
		name:      "vodafone_sent",
		provider:  ProviderVodafone,
		direction: DirectionSent,
		re:        regexp.MustCompile(`(?i)you\s+(?:sent|paid|transferred)\s+` + amountToken + `\s+to\s+(\+?\d+)`),
		cpGroup:   2,
	},
	{
		name:      "vodafone_received",
		provider:  ProviderVodafone,
		direction: DirectionReceived,
		re:        regexp.MustCompile(`(?i)you\s+received\s+` + amountToken + `\s+from\s+(\+?\d+)`),
		cpGroup:   2,
	},
	{
		name:      "airteltigo_sent",
		provider:  ProviderAirtelTigo,
		direction: DirectionSent,
		re:        regexp.MustCompile(`(?i)you\s+paid\s+` + amountToken + `(?:\s+to\s+(\+?\d+))?`),
		cpGroup:   2,
	},
	// Generic fallback: a directional verb plus an amount anywhere in the
	// text. The provider is sniffed from operator keywords afterwards; a
	// text with no recognizable operator is rejected, not defaulted.
	{
		name:      "generic_sent",
		provider:  ProviderUnknown,
		direction: DirectionSent,
		re:        regexp.MustCompile(`(?i)(?:sent|paid|transferred)\s+` + amountToken + `(?:\s+to\s+(\+?\d+))?`),
		cpGroup:   2,
	},
	{
		name:      "generic_received",
		provider:  ProviderUnknown,
		direction: DirectionReceived,
		re:        regexp.MustCompile(`(?i)received\s+` + amountToken + `(?:\s+from\s+(\+?\d+))?`),
		cpGroup:   2,
	},
}

var (
	balanceRe   = regexp.MustCompile(`(?i)bal(?:ance)?(?:\s+is)?[:\s]+(?:GHS?|GH₵|₵)?\s?([0-9][0-9,]*(?:\.[0-9]{1,2})?)`)
	referenceRe = regexp.MustCompile(`(?i)\b(?:reference|ref|id)[:.]?\s+([A-Za-z0-9]+)`)
	anyAmountRe = regexp.MustCompile(amountToken)
	anyVerbRe   = regexp.MustCompile(`(?i)\b(sent|paid|transferred|received)\b`)
)

const maxTextLen = 500

// Parse converts raw notification text into a Transaction. It is a pure
// function of its inputs; receivedAt becomes the transaction clock.
func Parse(raw string, receivedAt time.Time) (*Transaction, error) {
	text := sanitize(raw)
	if text == "" {
		return nil, &ParseError{Reason: ReasonMalformedText, Detail: "empty message"}
	}

	for _, f := range families {
		m := f.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}

		amount, err := parseAmount(m[1])
		if err != nil {
			return nil, err
		}

		provider := f.provider
		if provider == ProviderUnknown {
			provider = sniffProvider(text)
			if provider == ProviderUnknown {
				return nil, &ParseError{Reason: ReasonUnknownProvider, Detail: "no operator keywords in text"}
			}
		}

		counterparty := ""
		if f.cpGroup > 0 && f.cpGroup < len(m) && m[f.cpGroup] != "" {
			counterparty = lastFour(strings.TrimPrefix(m[f.cpGroup], "+"))
		}

		return &Transaction{
			Provider:     provider,
			Direction:    f.direction,
			Amount:       amount,
			Counterparty: counterparty,
			BalanceAfter: parseBalance(text),
			Reference:    parseReference(text),
			ObservedAt:   receivedAt,
			RawTextHash:  HashText(raw),
		}, nil
	}

	// No family matched: report the most specific failure.
	hasVerb := anyVerbRe.MatchString(text)
	hasAmount := anyAmountRe.MatchString(text)
	switch {
	case hasVerb && !hasAmount:
		return nil, &ParseError{Reason: ReasonNoAmount, Detail: "no currency amount token"}
	case hasAmount && !hasVerb:
		return nil, &ParseError{Reason: ReasonAmbiguousDirection, Detail: "no directional verb"}
	default:
		return nil, &ParseError{Reason: ReasonMalformedText, Detail: "not a transaction notification"}
	}
}

func parseAmount(token string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.ReplaceAll(token, ",", ""))
	if err != nil {
		return decimal.Zero, &ParseError{Reason: ReasonNoAmount, Detail: "unparsable amount token"}
	}
	if !amount.GreaterThan(minAmount) || !amount.LessThan(maxAmount) {
		return decimal.Zero, &ParseError{Reason: ReasonMalformedText, Detail: "amount out of range"}
	}
	return amount, nil
}

func parseBalance(text string) *decimal.Decimal {
	m := balanceRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	bal, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return nil
	}
	return &bal
}

func parseReference(text string) string {
	m := referenceRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	ref := m[1]
	if len(ref) > 50 {
		ref = ref[:50]
	}
	return ref
}

// sanitize strips control characters and caps the length of inbound text.
// Forwarded SMS occasionally carry stray cursor or bidi control bytes.
func sanitize(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, raw)
	cleaned = strings.TrimSpace(cleaned)
	if len(cleaned) > maxTextLen {
		// Back up to a rune boundary so the cut never leaves a partial
		// multi-byte character for the regexes to choke on.
		cut := maxTextLen
		for cut > 0 && !utf8.RuneStart(cleaned[cut]) {
			cut--
		}
		cleaned = cleaned[:cut]
	}
	return cleaned
}

// sniffProvider infers the operator from brand keywords, used only by the
// generic fallback family.
func sniffProvider(text string) Provider {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "mtn") || strings.Contains(lower, "momo"):
		return ProviderMTN
	case strings.Contains(lower, "vodafone") || strings.Contains(lower, "vodacash") || strings.Contains(lower, "telecel"):
		return ProviderVodafone
	case strings.Contains(lower, "airteltigo") || strings.Contains(lower, "airtel") || strings.Contains(lower, "tigo"):
		return ProviderAirtelTigo
	default:
		return ProviderUnknown
	}
}
