package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/licsync/licsync/internal/bundle"
	"github.com/licsync/licsync/internal/cache"
	"github.com/licsync/licsync/internal/models"
)

// ErrPollInProgress is returned when a poll is requested while the
// previous one is still running.
var ErrPollInProgress = errors.New("poll already in progress")

// Cache is the local store the poller refreshes.
type Cache interface {
	LastSyncTime(ctx context.Context) (*time.Time, error)
	SetLastSyncTime(ctx context.Context, t time.Time) error
	RefreshDictionary(ctx context.Context, records []models.DictionaryRecord) (cache.RefreshStats, error)
	RefreshReference(ctx context.Context, records []models.ReferenceRecord) (cache.RefreshStats, error)
	CountSanity(ctx context.Context) (cache.SanityCounts, error)
}

// Result summarizes one completed poll.
type Result struct {
	Updated    bool
	Dictionary cache.RefreshStats
	Reference  cache.RefreshStats
	Counts     cache.SanityCounts
}

// Poller drives the node's sync cycle.
type Poller struct {
	transport Transport
	cache     Cache
	dataDir   string
	logger    zerolog.Logger

	// Guards against overlapping polls when a cycle outlives the
	// interval.
	mu sync.Mutex
}

// NewPoller creates a poller. Payloads are unpacked under dataDir before
// the cache refresh.
func NewPoller(transport Transport, c Cache, dataDir string, logger zerolog.Logger) *Poller {
	return &Poller{
		transport: transport,
		cache:     c,
		dataDir:   dataDir,
		logger:    logger.With().Str("component", "poller").Logger(),
	}
}

// Run polls immediately and then on every interval tick until the
// context ends. Poll failures are logged and the loop keeps going.
func (p *Poller) Run(ctx context.Context, interval time.Duration) {
	p.logger.Info().Dur("interval", interval).Msg("poller started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := p.Poll(ctx); err != nil && !errors.Is(err, ErrPollInProgress) {
			p.logger.Error().Err(err).Msg("poll failed")
		}

		select {
		case <-ctx.Done():
			p.logger.Info().Msg("poller stopped")
			return
		case <-ticker.C:
		}
	}
}

// Poll runs one sync cycle. A cycle still in flight makes the new one
// return ErrPollInProgress instead of queueing behind it.
func (p *Poller) Poll(ctx context.Context) (Result, error) {
	if !p.mu.TryLock() {
		return Result{}, ErrPollInProgress
	}
	defer p.mu.Unlock()

	req, err := p.PrepareRequest(ctx)
	if err != nil {
		return Result{}, err
	}

	resp, err := p.transport.Sync(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("sync with server: %w", err)
	}

	return p.ProcessResponse(ctx, resp)
}

// PrepareRequest builds the sync request from the recorded last sync
// time. A node that has never synced sends no time and lets the server
// treat it as maximally stale.
func (p *Poller) PrepareRequest(ctx context.Context) (models.SyncRequest, error) {
	last, err := p.cache.LastSyncTime(ctx)
	if err != nil {
		return models.SyncRequest{}, fmt.Errorf("read last sync time: %w", err)
	}
	return models.SyncRequest{LastSyncTime: last}, nil
}

// ProcessResponse applies a sync response to the local cache. A
// no-update response is a no-op. The two domains are applied
// independently: a bad dictionary entry still lets the reference refresh
// land, and vice versa. The last sync time advances only when everything
// the response carried was applied, so a partial failure is retried in
// full on the next poll.
func (p *Poller) ProcessResponse(ctx context.Context, resp models.SyncResponse) (Result, error) {
	var result Result
	if !resp.HasUpdate() {
		p.logger.Debug().Msg("cache is current")
		return result, nil
	}
	if len(resp.Payload) == 0 {
		return result, errors.New("response marked updated but carries no payload")
	}

	staging, err := os.MkdirTemp(p.dataDir, "incoming-*")
	if err != nil {
		return result, fmt.Errorf("create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	if _, err := bundle.Unpack(resp.Payload, staging); err != nil {
		return result, fmt.Errorf("unpack payload: %w", err)
	}

	var domainErrs []error

	if resp.DictionaryIncluded == models.IncludedYes {
		stats, err := p.applyDictionary(ctx, staging)
		if err != nil {
			p.logger.Error().Err(err).Msg("dictionary domain failed, continuing")
			domainErrs = append(domainErrs, err)
		}
		result.Dictionary = stats
	}

	if resp.ReferenceIncluded == models.IncludedYes {
		stats, err := p.applyReference(ctx, staging)
		if err != nil {
			p.logger.Error().Err(err).Msg("reference domain failed, continuing")
			domainErrs = append(domainErrs, err)
		}
		result.Reference = stats
	}

	if len(domainErrs) > 0 {
		return result, errors.Join(domainErrs...)
	}

	if err := p.cache.SetLastSyncTime(ctx, time.Now().UTC()); err != nil {
		return result, fmt.Errorf("record sync time: %w", err)
	}
	result.Updated = true

	counts, err := p.cache.CountSanity(ctx)
	if err != nil {
		return result, fmt.Errorf("count cache content: %w", err)
	}
	result.Counts = counts

	p.logger.Info().
		Int("dictionary_inserted", result.Dictionary.Inserted).
		Int("dictionary_failed", result.Dictionary.Failed).
		Int("reference_inserted", result.Reference.Inserted).
		Int("reference_failed", result.Reference.Failed).
		Int("users", counts.Users).
		Int("reference_rows", counts.ReferenceRows).
		Msg("cache refreshed from sync payload")

	return result, nil
}

func (p *Poller) applyDictionary(ctx context.Context, staging string) (cache.RefreshStats, error) {
	records, err := readSnapshot[models.DictionaryRecord](staging, models.DictionarySnapshotName)
	if err != nil {
		return cache.RefreshStats{}, err
	}
	stats, err := p.cache.RefreshDictionary(ctx, records)
	if err != nil {
		return stats, fmt.Errorf("refresh dictionary cache: %w", err)
	}
	return stats, nil
}

func (p *Poller) applyReference(ctx context.Context, staging string) (cache.RefreshStats, error) {
	records, err := readSnapshot[models.ReferenceRecord](staging, models.ReferenceSnapshotName)
	if err != nil {
		return cache.RefreshStats{}, err
	}
	stats, err := p.cache.RefreshReference(ctx, records)
	if err != nil {
		return stats, fmt.Errorf("refresh reference cache: %w", err)
	}
	return stats, nil
}

func readSnapshot[T any](dir, name string) ([]T, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("read unpacked snapshot %s: %w", name, err)
	}
	var records []T
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", name, err)
	}
	return records, nil
}
