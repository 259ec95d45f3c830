package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/obsidianstack/logshipper/agent/internal/ingest"
	"github.com/obsidianstack/logshipper/agent/internal/shipper"
	"github.com/obsidianstack/logshipper/pkg/types"
)

// Pusher is the part of *shipper.Shipper the pipeline uses.
type Pusher interface {
	Push(ctx context.Context, rec types.Record) shipper.Result
}

// Stats summarises one Run.
type Stats struct {
	Lines     int64 // non-blank lines read
	Invalid   int64 // lines that failed to decode
	Delivered int64
	Filtered  int64
	Failed    int64
}

// Run ships every line of r and returns once r is exhausted and all pushes
// have finished, or ctx is cancelled. current is called once per record.
func Run(ctx context.Context, r io.Reader, dec *ingest.Decoder, workers int, current func() Pusher) (Stats, error) {
	if workers <= 0 {
		workers = 1
	}

	var (
		lines, invalid, delivered, filtered, failed atomic.Int64
		wg                                         sync.WaitGroup
	)
	records := make(chan types.Record, workers*2)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range records {
				// Records still buffered after cancellation are dropped
				// rather than pushed with a dead context.
				if ctx.Err() != nil {
					continue
				}
				res := current().Push(ctx, rec)
				switch {
				case res.Outcome == shipper.OutcomeDelivered:
					delivered.Add(1)
				case res.Outcome == shipper.OutcomeFilteredOut:
					filtered.Add(1)
				case res.Failed():
					failed.Add(1)
				}
			}
		}()
	}

	sc := ingest.NewScanner(r, dec)
	var readErr error
feed:
	for sc.Next() {
		lines.Add(1)
		if err := sc.LineErr(); err != nil {
			invalid.Add(1)
			slog.Warn("pipeline: skipping undecodable line", "line", sc.Line(), "err", err)
			continue
		}
		select {
		case records <- sc.Record():
		case <-ctx.Done():
			break feed
		}
	}
	if err := sc.Err(); err != nil {
		readErr = fmt.Errorf("pipeline: read input: %w", err)
	}
	close(records)
	wg.Wait()

	stats := Stats{
		Lines:     lines.Load(),
		Invalid:   invalid.Load(),
		Delivered: delivered.Load(),
		Filtered:  filtered.Load(),
		Failed:    failed.Load(),
	}
	if readErr != nil {
		return stats, readErr
	}
	return stats, ctx.Err()
}
