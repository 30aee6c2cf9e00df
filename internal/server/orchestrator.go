// Package server implements the authority side of the sync protocol:
// deciding per domain whether a polling node needs data, refreshing
// snapshots from the upstream sources when they have moved, and packaging
// the result for transfer.
package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/licsync/licsync/internal/bundle"
	"github.com/licsync/licsync/internal/directory"
	"github.com/licsync/licsync/internal/freshness"
	"github.com/licsync/licsync/internal/metrics"
	"github.com/licsync/licsync/internal/models"
	"github.com/licsync/licsync/internal/refsource"
	"github.com/licsync/licsync/internal/validate"
)

// SnapshotStore is the snapshot persistence the orchestrator needs.
type SnapshotStore interface {
	Write(domain models.Domain, records any) error
	Read(domain models.Domain) ([]byte, error)
	LastWriteTime(domain models.Domain) (*time.Time, error)
}

// Options configures the orchestrator.
type Options struct {
	// Limits are the validation length limits applied by both pipelines.
	Limits validate.Limits
	// Fields maps the logical user attributes onto directory field names.
	Fields validate.FieldNames
	// DictionaryLogPath, when set, receives the enrollment run report.
	DictionaryLogPath string
	// ReferenceLogPath, when set, receives the reference run report.
	ReferenceLogPath string
}

// Orchestrator services node sync requests.
type Orchestrator struct {
	store     SnapshotStore
	directory directory.Directory
	source    refsource.Source
	options   Options
	logger    zerolog.Logger

	// One refresh per domain at a time; concurrent requests for the same
	// stale domain would otherwise rebuild the same snapshot twice.
	dictionaryMu sync.Mutex
	referenceMu  sync.Mutex
}

// New creates an orchestrator.
func New(store SnapshotStore, dir directory.Directory, source refsource.Source, options Options, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		store:     store,
		directory: dir,
		source:    source,
		options:   options,
		logger:    logger.With().Str("component", "orchestrator").Logger(),
	}
}

// ServiceRequest arbitrates freshness per domain, refreshes what has
// gone stale, and returns the response for the node. The two domains
// fail independently: a broken feed or directory degrades only its own
// domain to "not included" and the other still ships. A domain whose
// refresh fails but whose previous snapshot exists falls back to sending
// that snapshot.
func (o *Orchestrator) ServiceRequest(ctx context.Context, req models.SyncRequest) models.SyncResponse {
	requester := req.RequesterTime()

	dictionary := o.arbitrate(ctx, models.DomainDictionary, requester)
	reference := o.arbitrate(ctx, models.DomainReference, requester)

	var entries []bundle.Entry
	if dictionary {
		data, err := o.store.Read(models.DomainDictionary)
		if err != nil {
			o.logger.Error().Err(err).Msg("read dictionary snapshot")
			dictionary = false
		} else {
			entries = append(entries, bundle.Entry{Name: models.DictionarySnapshotName, Data: data})
		}
	}
	if reference {
		data, err := o.store.Read(models.DomainReference)
		if err != nil {
			o.logger.Error().Err(err).Msg("read reference snapshot")
			reference = false
		} else {
			entries = append(entries, bundle.Entry{Name: models.ReferenceSnapshotName, Data: data})
		}
	}

	resp := models.SyncResponse{
		DictionaryIncluded: models.FlagFor(dictionary),
		ReferenceIncluded:  models.FlagFor(reference),
	}
	if len(entries) == 0 {
		return resp
	}

	payload, err := bundle.Pack(entries)
	if err != nil {
		o.logger.Error().Err(err).Msg("pack sync payload")
		return models.NoUpdate()
	}
	resp.Payload = payload

	o.logger.Info().
		Bool("dictionary", dictionary).
		Bool("reference", reference).
		Int("payload_bytes", len(payload)).
		Time("requester_time", requester).
		Msg("sync payload prepared")

	return resp
}

// arbitrate decides and, when needed, refreshes one domain. It reports
// whether the domain's snapshot should be included in the response.
// Failures stay inside the domain: an unreachable source falls back to
// arbitrating on the times still known, and a failed refresh falls back
// to the existing snapshot when one is on disk.
func (o *Orchestrator) arbitrate(ctx context.Context, domain models.Domain, requester time.Time) bool {
	snapshotTime, err := o.store.LastWriteTime(domain)
	if err != nil {
		o.logger.Error().Err(err).Str("domain", string(domain)).Msg("stat snapshot")
		return false
	}
	sourceTime, err := o.sourceTime(ctx, domain)
	if err != nil {
		o.logger.Warn().Err(err).Str("domain", string(domain)).Msg("source unreachable, arbitrating without it")
		sourceTime = nil
	}

	decision := freshness.Decide(&requester, snapshotTime, sourceTime)

	// A send decision without a snapshot on disk means the snapshot was
	// removed out from under us; rebuild it.
	if decision == freshness.Send && snapshotTime == nil {
		decision = freshness.RefreshAndSend
	}

	metrics.Decisions.WithLabelValues(string(domain), decision.String()).Inc()
	o.logger.Debug().
		Str("domain", string(domain)).
		Str("decision", decision.String()).
		Msg("freshness arbitrated")

	switch decision {
	case freshness.None:
		return false
	case freshness.Send:
		return true
	}

	if err := o.refresh(ctx, domain); err != nil {
		o.logger.Error().Err(err).Str("domain", string(domain)).Msg("refresh failed")
		// The stale snapshot is still better than nothing.
		return snapshotTime != nil
	}
	return true
}

func (o *Orchestrator) sourceTime(ctx context.Context, domain models.Domain) (*time.Time, error) {
	if domain == models.DomainReference {
		return o.source.LastChangeTime()
	}
	return o.directory.LatestConsistentTime(ctx)
}

func (o *Orchestrator) refresh(ctx context.Context, domain models.Domain) error {
	if domain == models.DomainReference {
		return o.RefreshReference(ctx)
	}
	return o.RefreshDictionary(ctx)
}

// RefreshDictionary rebuilds the dictionary snapshot from the enrollment
// directory.
func (o *Orchestrator) RefreshDictionary(ctx context.Context) error {
	o.dictionaryMu.Lock()
	defer o.dictionaryMu.Unlock()

	asOf, err := o.directory.LatestConsistentTime(ctx)
	if err != nil {
		return fmt.Errorf("resolve directory consistent time: %w", err)
	}
	if asOf == nil {
		now := time.Now().UTC()
		asOf = &now
	}

	enrollments, err := o.directory.ListActiveEnrollments(ctx)
	if err != nil {
		return fmt.Errorf("list enrollments: %w", err)
	}

	pipeline := validate.NewEnrollmentPipeline(o.options.Limits, o.options.Fields, o.logger)
	var rows []directory.UserRow
	for _, enrollment := range enrollments {
		userRows, err := o.directory.QueryFields(ctx, enrollment, o.options.Fields.Names(), *asOf)
		if err != nil {
			return fmt.Errorf("query enrollment %s: %w", enrollment.Name, err)
		}
		rows = append(rows, userRows...)
	}

	records, report := pipeline.Run(rows)
	if o.options.DictionaryLogPath != "" {
		if err := report.WriteLog(o.options.DictionaryLogPath); err != nil {
			o.logger.Error().Err(err).Msg("write dictionary run report")
		}
	}

	if err := o.store.Write(models.DomainDictionary, records); err != nil {
		return fmt.Errorf("write dictionary snapshot: %w", err)
	}

	metrics.SnapshotRefreshes.WithLabelValues(string(models.DomainDictionary)).Inc()
	o.logger.Info().
		Int("enrollments", len(enrollments)).
		Int("records", len(records)).
		Int("rejections", len(report.Rejections)).
		Msg("dictionary snapshot refreshed")
	return nil
}

// RefreshReference rebuilds the reference snapshot from the feed file.
func (o *Orchestrator) RefreshReference(ctx context.Context) error {
	o.referenceMu.Lock()
	defer o.referenceMu.Unlock()

	r, err := o.source.Open()
	if err != nil {
		return fmt.Errorf("open reference source: %w", err)
	}
	defer r.Close()

	pipeline := validate.NewReferencePipeline(o.options.Limits, o.logger)
	records, report, err := pipeline.Run(r)
	if err != nil {
		return fmt.Errorf("run reference pipeline: %w", err)
	}
	if o.options.ReferenceLogPath != "" {
		if err := report.WriteLog(o.options.ReferenceLogPath); err != nil {
			o.logger.Error().Err(err).Msg("write reference run report")
		}
	}

	if err := o.store.Write(models.DomainReference, records); err != nil {
		return fmt.Errorf("write reference snapshot: %w", err)
	}

	metrics.SnapshotRefreshes.WithLabelValues(string(models.DomainReference)).Inc()
	o.logger.Info().
		Int("records", len(records)).
		Int("rejections", len(report.Rejections)).
		Msg("reference snapshot refreshed")
	return nil
}

// Bootstrap refreshes both snapshots if neither exists yet, so the first
// node poll after install does not pay for a double rebuild.
func (o *Orchestrator) Bootstrap(ctx context.Context) error {
	if mtime, err := o.store.LastWriteTime(models.DomainDictionary); err != nil {
		return err
	} else if mtime == nil {
		if err := o.RefreshDictionary(ctx); err != nil {
			return err
		}
	}
	if mtime, err := o.store.LastWriteTime(models.DomainReference); err != nil {
		return err
	} else if mtime == nil {
		// The feed may simply not have been dropped yet.
		if changed, err := o.source.LastChangeTime(); err != nil {
			return err
		} else if changed == nil {
			o.logger.Warn().Msg("no reference feed present, skipping bootstrap refresh")
			return nil
		}
		if err := o.RefreshReference(ctx); err != nil {
			return err
		}
	}
	return nil
}
