package sms

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var parseTime = time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)

func TestParseMTNSent(t *testing.T) {
	raw := "Payment made for GHS. You have sent GHS 150.00 to 233241234567. " +
		"Your balance is GHS 1,230.45. Reference: 4X9G2. Transaction ID: 98765."
	tx, err := Parse(raw, parseTime)
	require.NoError(t, err)

	assert.Equal(t, ProviderMTN, tx.Provider)
	assert.Equal(t, DirectionSent, tx.Direction)
	assert.True(t, tx.Amount.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, "4567", tx.Counterparty)
	require.NotNil(t, tx.BalanceAfter)
	assert.True(t, tx.BalanceAfter.Equal(decimal.RequireFromString("1230.45")))
	assert.Equal(t, "4X9G2", tx.Reference)
	assert.Equal(t, parseTime, tx.ObservedAt)
	assert.Equal(t, HashText(raw), tx.RawTextHash)
}

func TestParseMTNReceived(t *testing.T) {
	tx, err := Parse("You have received GHS 75.50 from 233209876543. Your MoMo balance is GHS 300.00.", parseTime)
	require.NoError(t, err)

	assert.Equal(t, ProviderMTN, tx.Provider)
	assert.Equal(t, DirectionReceived, tx.Direction)
	assert.True(t, tx.Amount.Equal(decimal.RequireFromString("75.50")))
	assert.Equal(t, "6543", tx.Counterparty)
}

func TestParseVodafoneSent(t *testing.T) {
	tx, err := Parse("Vodafone Cash: You sent GHS 45.00 to 233501112222. New balance: GHS 88.20.", parseTime)
	require.NoError(t, err)

	assert.Equal(t, ProviderVodafone, tx.Provider)
	assert.Equal(t, DirectionSent, tx.Direction)
	assert.Equal(t, "2222", tx.Counterparty)
}

func TestParseVodafoneReceived(t *testing.T) {
	tx, err := Parse("You received GHS 200.00 from 233507654321 via Vodafone Cash.", parseTime)
	require.NoError(t, err)

	assert.Equal(t, ProviderVodafone, tx.Provider)
	assert.Equal(t, DirectionReceived, tx.Direction)
	assert.True(t, tx.Amount.Equal(decimal.NewFromInt(200)))
}

func TestParseAirtelTigoSent(t *testing.T) {
	tx, err := Parse("AirtelTigo Money: You paid GHS 30.00. Bal: GHS 12.50.", parseTime)
	require.NoError(t, err)

	assert.Equal(t, ProviderAirtelTigo, tx.Provider)
	assert.Equal(t, DirectionSent, tx.Direction)
	assert.Empty(t, tx.Counterparty)
	require.NotNil(t, tx.BalanceAfter)
	assert.True(t, tx.BalanceAfter.Equal(decimal.RequireFromString("12.50")))
}

func TestParseGenericFallbackSniffsProvider(t *testing.T) {
	tx, err := Parse("Alert: transferred GHS 500.00 via MTN MoMo wallet.", parseTime)
	require.NoError(t, err)

	assert.Equal(t, ProviderMTN, tx.Provider)
	assert.Equal(t, DirectionSent, tx.Direction)
	assert.Empty(t, tx.Counterparty)
}

func TestParseGenericNoOperatorRejected(t *testing.T) {
	_, err := Parse("transferred GHS 500.00 to your account", parseTime)

	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ReasonUnknownProvider, pe.Reason)
}

func TestParseVerbWithoutAmount(t *testing.T) {
	_, err := Parse("You have sent money via MTN MoMo", parseTime)

	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ReasonNoAmount, pe.Reason)
}

func TestParseAmountWithoutVerb(t *testing.T) {
	_, err := Parse("GHS 150.00 MTN MoMo", parseTime)

	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ReasonAmbiguousDirection, pe.Reason)
}

func TestParseEmptyAndJunk(t *testing.T) {
	for _, raw := range []string{"", "   ", "hello there", "\x00\x01\x02"} {
		_, err := Parse(raw, parseTime)

		var pe *ParseError
		require.ErrorAs(t, err, &pe, "input %q", raw)
		assert.Equal(t, ReasonMalformedText, pe.Reason, "input %q", raw)
	}
}

func TestParseAmountRequiresTwoDecimals(t *testing.T) {
	// "GHS 150" without decimals is not an amount token
	_, err := Parse("You have sent GHS 150 to 233241234567 via MTN", parseTime)

	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ReasonNoAmount, pe.Reason)
}

func TestParseAmountOutOfRange(t *testing.T) {
	_, err := Parse("You have sent GHS 0.00 to 233241234567", parseTime)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ReasonMalformedText, pe.Reason)

	_, err = Parse("You have sent GHS 2,000,000.00 to 233241234567", parseTime)
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ReasonMalformedText, pe.Reason)
}

func TestParseThousandsSeparators(t *testing.T) {
	tx, err := Parse("You have sent GHS 1,500.00 to 233241234567", parseTime)
	require.NoError(t, err)
	assert.True(t, tx.Amount.Equal(decimal.NewFromInt(1500)))
}

func TestParseCediSymbol(t *testing.T) {
	tx, err := Parse("You have sent GH₵ 25.00 to 233241234567", parseTime)
	require.NoError(t, err)
	assert.True(t, tx.Amount.Equal(decimal.NewFromInt(25)))
}

func TestParseNoBalanceNoReference(t *testing.T) {
	tx, err := Parse("You have sent GHS 10.00 to 233241234567", parseTime)
	require.NoError(t, err)
	assert.Nil(t, tx.BalanceAfter)
	assert.Empty(t, tx.Reference)
}

func TestParseIsDeterministic(t *testing.T) {
	raw := "You have sent GHS 150.00 to 233241234567. Your balance is GHS 1,230.45."
	a, err := Parse(raw, parseTime)
	require.NoError(t, err)
	b, err := Parse(raw, parseTime)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestParseControlCharactersStripped(t *testing.T) {
	tx, err := Parse("You have sent\x00 GHS 60.00 to 233241234567", parseTime)
	require.NoError(t, err)
	assert.True(t, tx.Amount.Equal(decimal.NewFromInt(60)))
}

func TestParseLongTextTruncated(t *testing.T) {
	raw := "You have sent GHS 10.00 to 233241234567 " + string(make([]byte, 1000))
	_, err := Parse(raw, parseTime)
	// Amount and counterparty land inside the cap, so this still parses
	require.NoError(t, err)
}

func TestParseTruncationKeepsRuneBoundary(t *testing.T) {
	// A multi-byte cedi sign straddling the length cap must not be cut in
	// half, which would leave invalid UTF-8 for the regexes to scan.
	raw := "You have sent GHS 10.00 to 233241234567 "
	raw += strings.Repeat("x", maxTextLen-len(raw)-1)
	raw += strings.Repeat("₵", 10)

	got := sanitize(raw)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), maxTextLen)

	_, err := Parse(raw, parseTime)
	require.NoError(t, err)
}

func TestParseErrorMessage(t *testing.T) {
	_, err := Parse("nothing useful", parseTime)
	require.Error(t, err)

	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Contains(t, pe.Error(), string(ReasonMalformedText))
}

func TestHashTextStable(t *testing.T) {
	a := HashText("same text")
	b := HashText("same text")
	c := HashText("different text")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestParseShortCounterpartyKeptWhole(t *testing.T) {
	tx, err := Parse("You have sent GHS 10.00 to 123", parseTime)
	require.NoError(t, err)
	assert.Equal(t, "123", tx.Counterparty)
}
