package batch

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"dex-signal-lab/internal/pricedata"
	"dex-signal-lab/internal/storage/memory"
)

func TestArchivingLoaderArchivesFetchedCandles(t *testing.T) {
	fetched := candlesResult(3)
	fetched.FromCache = false
	loader := &fakeLoader{results: map[string]*pricedata.LoadResult{
		"NET":    fetched,
		"CACHED": candlesResult(2),
	}}
	archive := memory.NewCandleArchive()
	a := NewArchivingLoader(loader, archive, "1m", zerolog.Nop())
	ctx := context.Background()

	res, err := a.LoadPrices(ctx, "NET", 0, 0)
	require.NoError(t, err)
	require.Len(t, res.Candles, 3)

	stored, err := archive.GetByTimeRange(ctx, "NET", "1m", 0, 1<<62)
	require.NoError(t, err)
	require.Len(t, stored, 3)

	// candlesResult marks FromCache, so nothing lands in the archive.
	_, err = a.LoadPrices(ctx, "CACHED", 0, 0)
	require.NoError(t, err)
	stored, err = archive.GetByTimeRange(ctx, "CACHED", "1m", 0, 1<<62)
	require.NoError(t, err)
	require.Empty(t, stored)
}
