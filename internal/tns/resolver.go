package tns

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultResolverURL is the survey portal's name-resolution endpoint.
const DefaultResolverURL = "https://api.ztf.fink-portal.org/api/v1/resolver"

// ReverseResolver answers "does this object already have a registry
// counterpart?". The pipeline's remote dedup layer runs through it.
type ReverseResolver interface {
	Lookup(ctx context.Context, objectID string) (found bool, detail string)
}

// ResolverOptions parameterise the portal resolver.
type ResolverOptions struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`

	// FailOpen picks the failure policy: with fail-open (the default), a
	// resolver outage counts as "no match" and the candidate proceeds to
	// submission; fail-closed counts it as a match and skips. Fail-open
	// trades a small duplicate-submission risk for availability.
	FailOpen bool `mapstructure:"fail_open"`
}

// Resolver queries the portal for an existing registry counterpart.
type Resolver struct {
	opts   ResolverOptions
	client *http.Client
	logger zerolog.Logger
}

// NewResolver constructs a portal resolver.
func NewResolver(opts ResolverOptions, logger zerolog.Logger) *Resolver {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultResolverURL
	}

	return &Resolver{
		opts:   opts,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "resolver").Logger(),
	}
}

// Lookup posts a reverse resolution request for objectID. A non-empty JSON
// response is a match; an empty one is not. Transport or parse failures fall
// back to the configured failure policy.
func (r *Resolver) Lookup(ctx context.Context, objectID string) (bool, string) {
	payload, err := json.Marshal(map[string]any{
		"resolver": "tns",
		"reverse":  true,
		"name":     objectID,
	})
	if err != nil {
		return r.failurePolicy(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.opts.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return r.failurePolicy(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return r.failurePolicy(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return r.failurePolicy(fmt.Errorf("resolver returned HTTP %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return r.failurePolicy(err)
	}

	var out any
	if err := json.Unmarshal(body, &out); err != nil {
		return r.failurePolicy(err)
	}

	if isEmptyResponse(out) {
		return false, "resolver_no_match"
	}
	return true, "resolver_found_tns=" + strings.TrimSpace(string(body))
}

func (r *Resolver) failurePolicy(err error) (bool, string) {
	if r.opts.FailOpen {
		r.logger.Warn().Err(err).Msg("resolver unavailable, failing open")
		return false, "resolver_error_fail_open: " + err.Error()
	}
	r.logger.Warn().Err(err).Msg("resolver unavailable, failing closed")
	return true, "resolver_error_fail_closed: " + err.Error()
}

func isEmptyResponse(v any) bool {
	switch out := v.(type) {
	case nil:
		return true
	case []any:
		return len(out) == 0
	case map[string]any:
		return len(out) == 0
	case string:
		return out == ""
	default:
		return false
	}
}

var _ ReverseResolver = (*Resolver)(nil)
