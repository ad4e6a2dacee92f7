// Package confirm turns asynchronous snapshot operations into bounded,
// synchronous outcomes.
//
// A deletion goes through two phases. The delete request is submitted and
// retried a bounded number of times with randomized backoff. Once accepted,
// the snapshot is polled until the store reports it absent or the
// confirmation timeout elapses. A deletion is only reported as done after
// absence has been observed.
package confirm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/younsl/snapshooter/internal/models"
	"github.com/younsl/snapshooter/pkg/cloud"
)

// Defaults
const (
	DefaultSubmitAttempts = 3
	DefaultMinDelay       = 1 * time.Second
	DefaultMaxDelay       = 3 * time.Second
	DefaultTimeout        = 30 * time.Second
)

var (
	// ErrStillPresent is returned when a deleted snapshot is still reported
	// by the store after the confirmation timeout
	ErrStillPresent = errors.New("snapshot still present after deletion")
	// ErrSnapshotInError is returned when a snapshot lands in error status
	ErrSnapshotInError = errors.New("snapshot in error status")
	// ErrNotReady is returned when a snapshot does not become available in time
	ErrNotReady = errors.New("snapshot not available in time")
)

// State of a single deletion
type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateConfirming
	StateConfirmed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateConfirming:
		return "confirming"
	case StateConfirmed:
		return "confirmed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config holds the retry policy. Zero values take the defaults.
type Config struct {
	// SubmitAttempts bounds the number of delete requests
	SubmitAttempts int
	// MinDelay and MaxDelay bound the uniformly random wait between attempts
	MinDelay time.Duration
	MaxDelay time.Duration
	// Timeout bounds confirmation polling and availability waits
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.SubmitAttempts <= 0 {
		c.SubmitAttempts = DefaultSubmitAttempts
	}
	if c.MinDelay == 0 && c.MaxDelay == 0 {
		c.MinDelay, c.MaxDelay = DefaultMinDelay, DefaultMaxDelay
	}
	if c.MaxDelay < c.MinDelay {
		c.MaxDelay = c.MinDelay
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Result describes how a deletion went
type Result struct {
	State    State
	Attempts int
	Polls    int
	Elapsed  time.Duration
}

// Confirmer runs deletions and availability waits against a store. It holds
// no per-snapshot state and is safe for concurrent use.
type Confirmer struct {
	cfg    Config
	logger zerolog.Logger
}

// New creates a Confirmer
func New(cfg Config, logger zerolog.Logger) *Confirmer {
	return &Confirmer{
		cfg:    cfg.withDefaults(),
		logger: logger.With().Str("component", "confirm").Logger(),
	}
}

// Config returns the effective retry policy
func (c *Confirmer) Config() Config {
	return c.cfg
}

// newBackOff returns a policy waiting a uniformly random delay in
// [MinDelay, MaxDelay] between attempts.
func (c *Confirmer) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = (c.cfg.MinDelay + c.cfg.MaxDelay) / 2
	b.RandomizationFactor = 0
	if sum := c.cfg.MinDelay + c.cfg.MaxDelay; sum > 0 {
		b.RandomizationFactor = float64(c.cfg.MaxDelay-c.cfg.MinDelay) / float64(sum)
	}
	b.Multiplier = 1
	b.MaxInterval = c.cfg.MaxDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Delete deletes snapshot id and waits until the store confirms it is gone.
// A snapshot that is already absent counts as deleted.
func (c *Confirmer) Delete(ctx context.Context, store cloud.BlockStorage, id string) (Result, error) {
	logger := c.logger.With().Str("snapshot", id).Logger()
	start := time.Now()
	result := Result{State: StateSubmitting}
	finish := func(state State) {
		result.State = state
		result.Elapsed = time.Since(start)
	}

	alreadyGone := false
	submit := func() error {
		result.Attempts++
		err := store.DeleteSnapshot(ctx, id)
		if cloud.IsNotFound(err) {
			alreadyGone = true
			return nil
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		logger.Debug().Err(err).Int("attempt", result.Attempts).Dur("retry_in", next).Msg("Delete request failed, retrying")
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.cfg.SubmitAttempts-1)), ctx)
	if err := backoff.RetryNotify(submit, policy, notify); err != nil {
		finish(StateFailed)
		return result, fmt.Errorf("delete snapshot %s after %d attempts: %w", id, result.Attempts, err)
	}
	if alreadyGone {
		logger.Debug().Msg("Snapshot already absent")
		finish(StateConfirmed)
		return result, nil
	}

	result.State = StateConfirming
	confirmCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var lastErr error
	poll := func() error {
		result.Polls++
		_, err := store.GetSnapshot(confirmCtx, id)
		switch {
		case cloud.IsNotFound(err):
			return nil
		case err != nil:
			lastErr = err
			return err
		default:
			lastErr = nil
			return ErrStillPresent
		}
	}
	tick := func(err error, next time.Duration) {
		logger.Trace().Err(err).Int("poll", result.Polls).Dur("retry_in", next).Msg("Waiting for snapshot deletion")
	}

	if err := backoff.RetryNotify(poll, backoff.WithContext(c.newBackOff(), confirmCtx), tick); err != nil {
		finish(StateFailed)
		if ctx.Err() != nil {
			return result, fmt.Errorf("confirm deletion of snapshot %s: %w", id, ctx.Err())
		}
		if lastErr != nil {
			return result, fmt.Errorf("snapshot %s after %s: %w (last lookup error: %v)", id, c.cfg.Timeout, ErrStillPresent, lastErr)
		}
		return result, fmt.Errorf("snapshot %s after %s: %w", id, c.cfg.Timeout, ErrStillPresent)
	}

	finish(StateConfirmed)
	logger.Trace().Int("polls", result.Polls).Dur("elapsed", result.Elapsed).Msg("Snapshot deletion confirmed")
	return result, nil
}

// WaitAvailable polls snapshot id until it is available. It fails fast with
// ErrSnapshotInError when the snapshot lands in error status and with
// ErrNotReady when the timeout elapses first.
func (c *Confirmer) WaitAvailable(ctx context.Context, store cloud.BlockStorage, id string) (*models.Snapshot, error) {
	logger := c.logger.With().Str("snapshot", id).Logger()
	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var snapshot *models.Snapshot
	lastStatus := "unknown"
	op := func() error {
		s, err := store.GetSnapshot(waitCtx, id)
		if err != nil {
			return err
		}
		lastStatus = s.Status
		switch s.Status {
		case models.SnapshotStatusAvailable:
			snapshot = s
			return nil
		case models.SnapshotStatusError:
			return backoff.Permanent(fmt.Errorf("snapshot %s: %w", id, ErrSnapshotInError))
		default:
			return fmt.Errorf("snapshot %s is %s", id, s.Status)
		}
	}
	tick := func(err error, next time.Duration) {
		logger.Trace().Err(err).Dur("retry_in", next).Msg("Waiting for snapshot to become available")
	}

	err := backoff.RetryNotify(op, backoff.WithContext(c.newBackOff(), waitCtx), tick)
	switch {
	case err == nil:
		return snapshot, nil
	case errors.Is(err, ErrSnapshotInError):
		return nil, err
	case ctx.Err() != nil:
		return nil, fmt.Errorf("wait for snapshot %s: %w", id, ctx.Err())
	default:
		return nil, fmt.Errorf("snapshot %s still %s after %s: %w", id, lastStatus, c.cfg.Timeout, ErrNotReady)
	}
}
