// Package service drives one alert at a time through normalize → filter →
// audit → dedup → submit. Alerts are processed strictly sequentially; the
// per-object submission-ordering guarantee depends on it.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tricejer41/FirstLight/internal/alert"
	"github.com/Tricejer41/FirstLight/internal/config"
	"github.com/Tricejer41/FirstLight/internal/filter"
	"github.com/Tricejer41/FirstLight/internal/stamp"
	"github.com/Tricejer41/FirstLight/internal/storage"
	"github.com/Tricejer41/FirstLight/internal/stream"
	"github.com/Tricejer41/FirstLight/internal/tns"
)

// RegistryClient is the slice of the registry client the pipeline needs.
type RegistryClient interface {
	Enabled() bool
	ProbeEndpoints(ctx context.Context) (tns.ProbeResult, error)
	SubmitReport(ctx context.Context, payload tns.Payload, pinnedURL string) (json.RawMessage, error)
}

// Service orchestrates the alert pipeline.
type Service struct {
	consumer stream.Consumer
	store    storage.AuditLog
	registry RegistryClient
	resolver tns.ReverseResolver
	logger   zerolog.Logger

	n1          filter.Config
	tnsCfg      tns.Config
	dryRun      bool
	pollTimeout time.Duration

	// submitURL is discovered once at startup and cached for the process
	// lifetime. Empty means submissions are logged but skipped.
	submitURL string
}

// New constructs the pipeline service.
func New(cfg *config.Config, consumer stream.Consumer, store storage.AuditLog, registry RegistryClient, resolver tns.ReverseResolver, dryRun bool, logger zerolog.Logger) *Service {
	return &Service{
		consumer:    consumer,
		store:       store,
		registry:    registry,
		resolver:    resolver,
		logger:      logger.With().Str("component", "service").Logger(),
		n1:          cfg.N1,
		tnsCfg:      cfg.TNS,
		dryRun:      dryRun,
		pollTimeout: cfg.Stream.PollTimeout,
	}
}

// Run probes the registry once, then polls alerts until the context is
// cancelled or the stream ends. Only storage failures are fatal.
func (s *Service) Run(ctx context.Context) error {
	s.probeOnce(ctx)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		topic, record, err := s.consumer.Poll(ctx, s.pollTimeout)
		if errors.Is(err, stream.ErrEndOfStream) {
			s.logger.Info().Msg("stream exhausted")
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if err != nil {
			s.logger.Error().Err(err).Msg("poll failed")
			continue
		}
		if topic == "" {
			continue // poll timeout, not an error
		}

		if err := s.Process(ctx, topic, record); err != nil {
			return err
		}
	}
}

// probeOnce discovers the submit endpoint at startup. Probe failure never
// crashes the process; it downgrades submissions to logged skips.
func (s *Service) probeOnce(ctx context.Context) {
	if s.dryRun || s.registry == nil || !s.registry.Enabled() {
		return
	}

	probe, err := s.registry.ProbeEndpoints(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("registry probe failed; submissions will be skipped")
		return
	}
	if probe.SubmitURL == "" {
		s.logger.Error().Strs("notes", probe.Notes).Msg("no working submit endpoint; submissions will be skipped")
		return
	}
	s.submitURL = probe.SubmitURL
	s.logger.Info().Str("submit_url", probe.SubmitURL).Msg("registry endpoint discovered")
}

// Process runs one alert to completion. The only errors it returns are
// storage failures; everything else is logged and absorbed.
func (s *Service) Process(ctx context.Context, topic string, record map[string]any) error {
	received := time.Now().UTC()

	na, err := alert.Normalize(record, topic)
	if err != nil {
		// Retrying the same payload can never succeed.
		s.logger.Error().Err(err).Str("topic", topic).Msg("normalize failed, alert skipped")
		return nil
	}

	res := filter.Evaluate(na, s.n1)
	if metrics, ok := stamp.FromAlert(record); ok {
		for k, v := range metrics.Map() {
			res.Metrics[k] = v
		}
	}

	if err := s.auditAlert(ctx, na, received); err != nil {
		return err
	}
	if err := s.auditDecision(ctx, na, res); err != nil {
		return err
	}

	if !res.Accepted {
		s.logger.Debug().
			Str("object_id", na.ObjectID).
			Str("candid", na.Candid).
			Str("reason", res.Reason).
			Msg("alert rejected")
		return nil
	}

	proceed, err := s.checkDuplicates(ctx, na)
	if err != nil || !proceed {
		return err
	}

	return s.submit(ctx, na)
}

func (s *Service) auditAlert(ctx context.Context, na *alert.Normalized, received time.Time) error {
	payload, err := json.Marshal(na.Raw)
	if err != nil {
		payload = []byte("{}")
	}
	if err := s.store.InsertAlert(ctx, storage.AlertRecord{
		ObjectID:   na.ObjectID,
		Candid:     na.Candid,
		Topic:      na.Topic,
		EmittedJD:  na.JD,
		ReceivedAt: received,
		Payload:    payload,
	}); err != nil {
		return fmt.Errorf("audit alert: %w", err)
	}
	return nil
}

func (s *Service) auditDecision(ctx context.Context, na *alert.Normalized, res filter.Result) error {
	metrics, err := json.Marshal(res.Metrics)
	if err != nil {
		metrics = []byte("{}")
	}
	if err := s.store.InsertDecision(ctx, storage.DecisionRecord{
		ObjectID:  na.ObjectID,
		Candid:    na.Candid,
		Topic:     na.Topic,
		DecidedAt: time.Now().UTC(),
		Passed:    res.Accepted,
		Reason:    res.Reason,
		Metrics:   metrics,
	}); err != nil {
		return fmt.Errorf("audit decision: %w", err)
	}
	return nil
}

// checkDuplicates runs both dedup layers in order, recording every outcome
// as a check action before any submission decision. Returns proceed=false
// when either layer already knows the object.
func (s *Service) checkDuplicates(ctx context.Context, na *alert.Normalized) (bool, error) {
	// Layer 1: the durable audit history. Reading storage here is what makes
	// resubmission impossible across process restarts.
	submitted, err := s.store.HasSubmission(ctx, na.ObjectID)
	if err != nil {
		return false, fmt.Errorf("local dedup check: %w", err)
	}
	if submitted {
		return false, s.registryAction(ctx, na, storage.ActionCheck, storage.OutcomeSkip, "already_submitted_in_db")
	}
	if err := s.registryAction(ctx, na, storage.ActionCheck, storage.OutcomeOK, "no_prior_submission"); err != nil {
		return false, err
	}

	// Layer 2: the remote reverse resolver.
	found, detail := s.resolver.Lookup(ctx, na.ObjectID)
	if found {
		return false, s.registryAction(ctx, na, storage.ActionCheck, storage.OutcomeSkip, detail)
	}
	return true, s.registryAction(ctx, na, storage.ActionCheck, storage.OutcomeOK, detail)
}

func (s *Service) submit(ctx context.Context, na *alert.Normalized) error {
	switch {
	case s.dryRun:
		if err := s.registryAction(ctx, na, storage.ActionSubmit, storage.OutcomeSkip, "dry_run"); err != nil {
			return err
		}
		s.logger.Info().
			Str("object_id", na.ObjectID).
			Str("candid", na.Candid).
			Float64("mag", na.Mag).
			Msg("candidate pass (dry-run, not submitted)")
		return nil
	case s.registry == nil || !s.registry.Enabled():
		return s.registryAction(ctx, na, storage.ActionSubmit, storage.OutcomeSkip, "tns_disabled_missing_credentials")
	case s.submitURL == "":
		return s.registryAction(ctx, na, storage.ActionSubmit, storage.OutcomeSkip, "tns_endpoint_unknown_probe_failed")
	}

	payload := tns.BuildMinimalReport(tns.ReportParams{
		ObjectName:    na.ObjectID,
		RADeg:         na.RA,
		DecDeg:        na.Dec,
		DiscoveryTime: alert.JDToTime(na.JD),
		Mag:           na.Mag,
		Fid:           na.Fid,
		Instrument:    "ZTF",
		Observer:      "Fink/ZTF",
	}, s.tnsCfg)

	body, err := s.registry.SubmitReport(ctx, payload, s.submitURL)
	if err != nil {
		s.logger.Error().Err(err).
			Str("object_id", na.ObjectID).
			Str("candid", na.Candid).
			Msg("registry submission failed")
		return s.registryAction(ctx, na, storage.ActionSubmit, storage.OutcomeError, err.Error())
	}

	s.logger.Info().
		Str("object_id", na.ObjectID).
		Str("candid", na.Candid).
		Msg("submitted to registry")
	return s.registryAction(ctx, na, storage.ActionSubmit, storage.OutcomeOK, string(body))
}

func (s *Service) registryAction(ctx context.Context, na *alert.Normalized, action, outcome, detail string) error {
	if err := s.store.InsertRegistryAction(ctx, storage.RegistryActionRecord{
		ObjectID: na.ObjectID,
		Candid:   na.Candid,
		At:       time.Now().UTC(),
		Action:   action,
		Outcome:  outcome,
		Detail:   detail,
	}); err != nil {
		return fmt.Errorf("audit registry action: %w", err)
	}
	return nil
}

var _ RegistryClient = (*tns.Client)(nil)
