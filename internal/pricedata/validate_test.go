package pricedata

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"dex-signal-lab/internal/domain"
	"dex-signal-lab/internal/warn"
)

func goodCandle(ts int64) domain.Candle {
	return domain.Candle{TimestampMs: ts, Open: 10, High: 12, Low: 9, Close: 11, Volume: 5}
}

func TestValidateAcceptsWellFormed(t *testing.T) {
	v := NewValidator(true, nil)

	in := []domain.Candle{goodCandle(60_000), goodCandle(120_000)}
	out, err := v.Validate("TOK", in)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestValidateStrictFailsHard(t *testing.T) {
	v := NewValidator(true, nil)

	bad := goodCandle(60_000)
	bad.Low = 15 // above open and close

	_, err := v.Validate("TOK", []domain.Candle{bad})
	var mce *MalformedCandleError
	require.ErrorAs(t, err, &mce)
	require.Equal(t, "TOK", mce.Contract)
	require.Equal(t, int64(60_000), mce.TimestampMs)
}

func TestValidateFailOpenSkipsWithWarning(t *testing.T) {
	warner := warn.NewDeduper(zerolog.Nop())
	v := NewValidator(false, warner)

	bad := goodCandle(120_000)
	bad.Close = -1

	out, err := v.Validate("TOK", []domain.Candle{goodCandle(60_000), bad, goodCandle(180_000)})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Len(t, warner.Keys(), 1)
}

func TestValidateRules(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*domain.Candle)
	}{
		{"zero open", func(c *domain.Candle) { c.Open = 0 }},
		{"negative close", func(c *domain.Candle) { c.Close = -5 }},
		{"high below close", func(c *domain.Candle) { c.High = c.Close - 1 }},
		{"low above open", func(c *domain.Candle) { c.Low = c.Open + 1 }},
		{"negative volume", func(c *domain.Candle) { c.Volume = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := goodCandle(60_000)
			tc.mutate(&c)
			require.NotEmpty(t, checkCandle(c))
		})
	}
}

func TestValidateJumpGate(t *testing.T) {
	v := NewValidator(false, warn.NewDeduper(zerolog.Nop())).WithMaxPriceJump(50)

	in := []domain.Candle{
		{TimestampMs: 60_000, Open: 10, High: 12, Low: 9, Close: 10, Volume: 1},
		// Opens 100% above the previous close.
		{TimestampMs: 120_000, Open: 20, High: 22, Low: 19, Close: 21, Volume: 1},
		{TimestampMs: 180_000, Open: 11, High: 12, Low: 10, Close: 11, Volume: 1},
	}

	out, err := v.Validate("TOK", in)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, int64(60_000), out[0].TimestampMs)
	require.Equal(t, int64(180_000), out[1].TimestampMs)
}
