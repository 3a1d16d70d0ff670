// Package sms parses mobile-money notification text from Ghanaian providers
// into normalized transaction records.
//
// Parsing is a pure function: the same raw text always yields the same
// Transaction. Provider-specific pattern families are tried in a fixed
// priority order and the first full match wins. Anything the parser cannot
// extract with confidence is a rejection, never a guess; downstream scoring
// must only ever see records it can trust.
package sms

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Provider is the mobile-money operator whose message format matched.
type Provider string

const (
	ProviderMTN        Provider = "mtn_momo"
	ProviderVodafone   Provider = "vodafone_cash"
	ProviderAirtelTigo Provider = "airteltigo_money"
	ProviderUnknown    Provider = "unknown"
)

// Direction of funds relative to the message recipient.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// Amount bounds. Anything outside (0, 1,000,000) GHS is rejected as
// malformed rather than scored.
var (
	minAmount = decimal.Zero
	maxAmount = decimal.NewFromInt(1_000_000)
)

// Transaction is a normalized, immutable view of one notification.
type Transaction struct {
	Provider     Provider
	Direction    Direction
	Amount       decimal.Decimal
	Counterparty string // last 4 digits, or full identifier if shorter; may be empty
	BalanceAfter *decimal.Decimal
	Reference    string
	ObservedAt   time.Time
	RawTextHash  string // sha256 hex of the original text; the text itself is never kept
}

// ParseReason classifies why a message could not be parsed.
type ParseReason string

const (
	ReasonNoAmount           ParseReason = "no_amount"
	ReasonAmbiguousDirection ParseReason = "ambiguous_direction"
	ReasonUnknownProvider    ParseReason = "unknown_provider"
	ReasonMalformedText      ParseReason = "malformed_text"
)

// ParseError reports a rejected message. Callers must not score a guessed
// transaction: a ParseError means the notification is answered with a polite
// "could not understand this message" and dropped.
type ParseError struct {
	Reason ParseReason
	Detail string
}

func (e *ParseError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("sms: %s", e.Reason)
	}
	return fmt.Sprintf("sms: %s: %s", e.Reason, e.Detail)
}

// HashText returns the sha256 hex digest used as the dedup-stable reference
// to raw notification text.
func HashText(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// lastFour truncates a phone-shaped token to its last 4 digits.
func lastFour(token string) string {
	if len(token) > 4 {
		return token[len(token)-4:]
	}
	return token
}
