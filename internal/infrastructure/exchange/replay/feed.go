// Package replay feeds recorded samples from a CSV file.
//
// Rows are "timestamp,symbol,price[,volume]". The timestamp is RFC3339 or unix
// milliseconds. A header row is skipped when its price column does not parse.
package replay

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"xtrend/internal/domain"
)

const Name = "REPLAY"

type Feed struct {
	path string
	pace time.Duration // delay between rows, 0 replays as fast as the pipeline accepts
}

func NewFeed(path string, pace time.Duration) *Feed {
	return &Feed{path: path, pace: pace}
}

func (f *Feed) Name() string { return Name }

// Subscribe opens the file up front so a missing file fails fast. Rows for
// symbols outside the list are skipped unless the list is empty.
func (f *Feed) Subscribe(ctx context.Context, symbols []string) (<-chan domain.PriceSample, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open replay file: %w", err)
	}

	want := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		want[domain.CanonicalSymbol(s)] = struct{}{}
	}

	out := make(chan domain.PriceSample, 1024)
	go func() {
		defer close(out)
		defer file.Close()
		n, err := f.stream(ctx, file, want, out)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Str("file", f.path).Msg("replay aborted")
		}
		log.Info().Str("file", f.path).Int("samples", n).Msg("replay finished")
	}()
	return out, nil
}

func (f *Feed) stream(ctx context.Context, r io.Reader, want map[string]struct{}, out chan<- domain.PriceSample) (int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	sent := 0
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return sent, nil
		}
		if err != nil {
			return sent, err
		}

		smp, err := ParseRecord(rec)
		if err != nil {
			if line == 1 {
				continue // header
			}
			log.Warn().Err(err).Int("line", line).Msg("replay row skipped")
			continue
		}
		if len(want) > 0 {
			if _, ok := want[smp.Symbol]; !ok {
				continue
			}
		}

		select {
		case out <- smp:
			sent++
		case <-ctx.Done():
			return sent, ctx.Err()
		}
		if f.pace > 0 {
			select {
			case <-time.After(f.pace):
			case <-ctx.Done():
				return sent, ctx.Err()
			}
		}
	}
}

// ParseRecord converts one CSV row into a sample.
func ParseRecord(rec []string) (domain.PriceSample, error) {
	if len(rec) < 3 {
		return domain.PriceSample{}, fmt.Errorf("want at least 3 columns, got %d", len(rec))
	}
	ts, err := parseTime(strings.TrimSpace(rec[0]))
	if err != nil {
		return domain.PriceSample{}, err
	}
	px, err := decimal.NewFromString(strings.TrimSpace(rec[2]))
	if err != nil {
		return domain.PriceSample{}, fmt.Errorf("price %q: %w", rec[2], err)
	}
	smp := domain.PriceSample{
		Symbol:    domain.CanonicalSymbol(rec[1]),
		Price:     px,
		Timestamp: ts,
	}
	if len(rec) > 3 && strings.TrimSpace(rec[3]) != "" {
		if smp.Volume, err = decimal.NewFromString(strings.TrimSpace(rec[3])); err != nil {
			return domain.PriceSample{}, fmt.Errorf("volume %q: %w", rec[3], err)
		}
	}
	return smp, nil
}

func parseTime(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}
