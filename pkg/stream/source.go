// Package stream moves audio and decoded messages between the engine and
// the outside world: paced sample sources, raw sample sinks and a UDP
// forwarder for decoded payloads.
package stream

import (
	"context"
	"time"
)

// Source delivers audio chunks until it is exhausted or ctx is done.
type Source interface {
	Start(ctx context.Context, out chan<- []float32) error
}

// SliceSource replays samples in fixed size chunks. With a zero interval it
// sends as fast as the receiver accepts; otherwise one chunk per tick, which
// simulates a live capture.
type SliceSource struct {
	samples     []float32
	chunkSize   int
	timeBetween time.Duration
}

func NewSliceSource(samples []float32, chunkSize int, timeBetween time.Duration) *SliceSource {
	if chunkSize <= 0 {
		chunkSize = 1024
	}
	return &SliceSource{
		samples:     samples,
		chunkSize:   chunkSize,
		timeBetween: timeBetween,
	}
}

// RealTime returns the interval that plays chunks of chunkSize samples at
// sampleRate.
func RealTime(chunkSize int, sampleRate float64) time.Duration {
	return time.Duration(float64(chunkSize) / sampleRate * float64(time.Second))
}

// Start sends every chunk and closes out when done.
func (s *SliceSource) Start(ctx context.Context, out chan<- []float32) error {
	defer close(out)

	var tick <-chan time.Time
	if s.timeBetween > 0 {
		ticker := time.NewTicker(s.timeBetween)
		defer ticker.Stop()
		tick = ticker.C
	}

	for off := 0; off < len(s.samples); off += s.chunkSize {
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		}

		end := off + s.chunkSize
		if end > len(s.samples) {
			end = len(s.samples)
		}
		chunk := make([]float32, end-off)
		copy(chunk, s.samples[off:end])

		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- chunk:
		}
	}
	return nil
}
