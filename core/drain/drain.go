package drain

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/bits-and-blooms/bloom/v3"
	"github.com/sony/gobreaker"
	"github.com/yasserelgammal/rate-limiter/limiter"
	"github.com/yasserelgammal/rate-limiter/store"

	"github.com/korken89/persistlog/core/ringbuf"
)

// errRateLimited signals that the token bucket vetoed a send this round.
var errRateLimited = errors.New("drain: rate limited")

// Config tunes the drain loop. Zero values disable the corresponding
// feature except MaxBatch, RetryInterval, BreakerCooldown and
// DedupeFalsePositive, which fall back to defaults.
type Config struct {
	// MaxBatch caps the bytes shipped per transmit.
	MaxBatch int

	// Compress brotli-compresses each batch before transmit.
	Compress bool

	// RatePerSecond and RateBurst configure token-bucket pacing of
	// transmits. Zero rate means unpaced.
	RatePerSecond int64
	RateBurst     int64

	// RetryInterval is how long Run backs off after a failed or
	// rate-limited transmit.
	RetryInterval time.Duration

	// BreakerCooldown is how long the circuit breaker stays open after
	// tripping on consecutive transmit failures.
	BreakerCooldown time.Duration

	// DedupeExpected sizes the duplicate-suppression bloom filter (number
	// of batches it should track). Zero disables suppression.
	DedupeExpected      uint
	DedupeFalsePositive float64

	Logger *slog.Logger
}

// DefaultConfig returns the stock drain configuration.
func DefaultConfig() Config {
	return Config{
		MaxBatch:            4096,
		RetryInterval:       time.Second,
		BreakerCooldown:     10 * time.Second,
		DedupeFalsePositive: 0.01,
	}
}

// Drainer pumps committed bytes from the consumer into a transmit sink,
// releasing exactly what was shipped so a crash mid-transmit replays the
// unacknowledged suffix instead of losing it.
type Drainer struct {
	consumer *ringbuf.Consumer
	sink     Sink
	config   Config
	breaker  *gobreaker.CircuitBreaker
	limiter  *limiter.TokenBucket
	seen     *bloom.BloomFilter
	logger   *slog.Logger

	// offset counts released stream bytes; it keys duplicate suppression
	// so identical content at different stream positions never collides.
	offset uint64
}

// New builds a drainer over the region's consumer.
func New(consumer *ringbuf.Consumer, sink Sink, config Config) (*Drainer, error) {
	if consumer == nil || sink == nil {
		return nil, errors.New("drain: consumer and sink required")
	}
	if config.MaxBatch <= 0 {
		config.MaxBatch = DefaultConfig().MaxBatch
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = DefaultConfig().RetryInterval
	}
	if config.BreakerCooldown <= 0 {
		config.BreakerCooldown = DefaultConfig().BreakerCooldown
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	d := &Drainer{
		consumer: consumer,
		sink:     sink,
		config:   config,
		logger:   config.Logger.With("component", "drain"),
	}

	d.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "drain-transmit",
		Timeout: config.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	if config.RatePerSecond > 0 {
		burst := config.RateBurst
		if burst <= 0 {
			burst = config.RatePerSecond
		}
		tb, err := limiter.NewTokenBucket(
			limiter.Config{
				Rate:     config.RatePerSecond,
				Duration: time.Second,
				Burst:    burst,
			},
			store.NewMemoryStore(time.Minute),
		)
		if err != nil {
			return nil, fmt.Errorf("drain: rate limiter: %w", err)
		}
		d.limiter = tb
	}

	if config.DedupeExpected > 0 {
		fp := config.DedupeFalsePositive
		if fp <= 0 {
			fp = DefaultConfig().DedupeFalsePositive
		}
		d.seen = bloom.NewWithEstimates(config.DedupeExpected, fp)
	}

	return d, nil
}

// Run drains until ctx is done. Transmit failures are logged and retried
// after RetryInterval; they never propagate into the ring.
func (d *Drainer) Run(ctx context.Context) error {
	for {
		if err := d.consumer.WaitNotEmpty(ctx); err != nil {
			return err
		}
		if _, err := d.DrainOnce(ctx); err != nil {
			if errors.Is(err, errRateLimited) {
				d.logger.Debug("transmit paced by rate limit")
			} else {
				d.logger.Warn("transmit failed", "error", err)
			}
			select {
			case <-time.After(d.config.RetryInterval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// DrainOnce ships at most one batch and returns the number of stream
// bytes released. A zero count with nil error means the ring was empty.
func (d *Drainer) DrainOnce(ctx context.Context) (int, error) {
	grant := d.consumer.Read()
	primary, secondary := grant.Bufs()
	total := len(primary) + len(secondary)
	if total == 0 {
		return 0, nil
	}

	n := total
	if n > d.config.MaxBatch {
		n = d.config.MaxBatch
	}
	batch := make([]byte, 0, n)
	if len(primary) >= n {
		batch = append(batch, primary[:n]...)
	} else {
		batch = append(batch, primary...)
		batch = append(batch, secondary[:n-len(primary)]...)
	}

	key := d.batchKey(batch)
	if d.seen != nil && d.seen.Test(key) {
		// Already accepted on a previous attempt (or by a concurrent
		// drain of the same stream); don't ship it twice.
		grant.Release(n)
		d.offset += uint64(n)
		return n, nil
	}

	if d.limiter != nil && !d.limiter.Allow("drain") {
		return 0, errRateLimited
	}

	payload, err := d.encode(batch)
	if err != nil {
		return 0, err
	}

	if _, err := d.breaker.Execute(func() (interface{}, error) {
		return nil, d.sink.Send(ctx, payload)
	}); err != nil {
		return 0, err
	}

	if d.seen != nil {
		d.seen.Add(key)
	}
	grant.Release(n)
	d.offset += uint64(n)
	return n, nil
}

// Close closes the transmit sink.
func (d *Drainer) Close() error {
	return d.sink.Close()
}

func (d *Drainer) batchKey(batch []byte) []byte {
	sum := sha256.Sum256(batch)
	key := make([]byte, 8+len(sum))
	binary.LittleEndian.PutUint64(key, d.offset)
	copy(key[8:], sum[:])
	return key
}

func (d *Drainer) encode(batch []byte) ([]byte, error) {
	if !d.config.Compress {
		return batch, nil
	}
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
	if _, err := w.Write(batch); err != nil {
		return nil, fmt.Errorf("compress batch: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compress batch: %w", err)
	}
	return buf.Bytes(), nil
}
