package pricedata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"dex-signal-lab/internal/domain"
)

// candleCSVHeader is the persisted candle file header.
var candleCSVHeader = []string{"timestamp", "open", "high", "low", "close", "volume"}

// Cache persists per-contract candle files under a root directory.
// Two layouts are readable:
//
//	(a) <root>/<timeframe>/<contract>.csv   primary, all writes go here
//	(b) <root>/<contract>_<timeframe>.csv   legacy, migrated to (a) on read
type Cache struct {
	root string
	tf   Timeframe
}

// NewCache creates a candle cache rooted at dir for one timeframe.
func NewCache(dir string, tf Timeframe) *Cache {
	return &Cache{root: dir, tf: tf}
}

func (c *Cache) primaryPath(contract string) string {
	return filepath.Join(c.root, c.tf.Name, contract+".csv")
}

func (c *Cache) legacyPath(contract string) string {
	return filepath.Join(c.root, contract+"_"+c.tf.Name+".csv")
}

// Load reads the cached candles for a contract, probing the primary layout
// first. A legacy file found instead is rewritten to the primary layout and
// removed. Returns ErrCacheMiss when neither layout exists.
func (c *Cache) Load(contract string) ([]domain.Candle, error) {
	candles, err := readCandleCSV(c.primaryPath(contract))
	if err == nil {
		return candles, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	legacy := c.legacyPath(contract)
	candles, err = readCandleCSV(legacy)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}

	// Opportunistic migration to the primary layout.
	if err := c.Save(contract, candles); err != nil {
		return nil, fmt.Errorf("migrate legacy cache for %s: %w", contract, err)
	}
	_ = os.Remove(legacy)

	return candles, nil
}

// Save writes candles to the primary layout, replacing any existing file.
// The write goes through a temp file and rename so readers never observe a
// partial file.
func (c *Cache) Save(contract string, candles []domain.Candle) error {
	path := c.primaryPath(contract)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+contract+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(candleCSVHeader); err != nil {
		tmp.Close()
		return fmt.Errorf("write cache header: %w", err)
	}
	for _, cd := range domain.SortCandles(candles) {
		row := []string{
			time.UnixMilli(cd.TimestampMs).UTC().Format(time.RFC3339),
			formatPrice(cd.Open),
			formatPrice(cd.High),
			formatPrice(cd.Low),
			formatPrice(cd.Close),
			formatPrice(cd.Volume),
		}
		if err := w.Write(row); err != nil {
			tmp.Close()
			return fmt.Errorf("write cache row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp cache file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace cache file: %w", err)
	}
	return nil
}

// Union merges cached and fetched candles, first-seen (cached) winning on
// duplicate timestamps.
func Union(cached, fetched []domain.Candle) []domain.Candle {
	merged := make([]domain.Candle, 0, len(cached)+len(fetched))
	merged = append(merged, cached...)
	merged = append(merged, fetched...)
	return domain.SortCandles(merged)
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// readCandleCSV parses one persisted candle file. Rows are returned sorted
// ascending and de-duplicated by timestamp. Parse failures wrap
// ErrCorruptCache.
func readCandleCSV(path string) ([]domain.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(candleCSVHeader)

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptCache, path, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	// Header-first format; tolerate headerless legacy files.
	start := 0
	if records[0][0] == candleCSVHeader[0] {
		start = 1
	}

	candles := make([]domain.Candle, 0, len(records)-start)
	for _, rec := range records[start:] {
		ts, err := time.Parse(time.RFC3339, rec[0])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: bad timestamp %q", ErrCorruptCache, path, rec[0])
		}
		vals := make([]float64, 5)
		for i := 0; i < 5; i++ {
			v, err := strconv.ParseFloat(rec[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: bad %s %q", ErrCorruptCache, path, candleCSVHeader[i+1], rec[i+1])
			}
			vals[i] = v
		}
		candles = append(candles, domain.Candle{
			TimestampMs: ts.UnixMilli(),
			Open:        vals[0],
			High:        vals[1],
			Low:         vals[2],
			Close:       vals[3],
			Volume:      vals[4],
		})
	}

	return domain.SortCandles(candles), nil
}
