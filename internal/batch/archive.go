package batch

import (
	"context"

	"github.com/rs/zerolog"

	"dex-signal-lab/internal/pricedata"
	"dex-signal-lab/internal/storage"
)

// ArchivingLoader wraps a PriceLoader and copies every freshly fetched
// candle slice into a candle archive. Cache-served loads are not
// re-archived; the archive itself is idempotent so overlap is harmless.
type ArchivingLoader struct {
	inner     PriceLoader
	archive   storage.CandleArchive
	timeframe string
	logger    zerolog.Logger
}

// NewArchivingLoader wires a loader to an archive.
func NewArchivingLoader(inner PriceLoader, archive storage.CandleArchive, timeframe string, logger zerolog.Logger) *ArchivingLoader {
	return &ArchivingLoader{inner: inner, archive: archive, timeframe: timeframe, logger: logger}
}

var _ PriceLoader = (*ArchivingLoader)(nil)

// LoadPrices delegates to the inner loader. Archive failures are logged
// and swallowed: the backtest result does not depend on the archive.
func (a *ArchivingLoader) LoadPrices(ctx context.Context, contract string, startMs, endMs int64) (*pricedata.LoadResult, error) {
	res, err := a.inner.LoadPrices(ctx, contract, startMs, endMs)
	if err != nil {
		return nil, err
	}
	if !res.FromCache && len(res.Candles) > 0 {
		if archiveErr := a.archive.InsertBulk(ctx, contract, a.timeframe, res.Candles); archiveErr != nil {
			a.logger.Warn().
				Err(archiveErr).
				Str("contract", contract).
				Msg("candle archive insert failed")
		}
	}
	return res, nil
}
