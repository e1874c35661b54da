// Package tns talks to the transient discovery registry. The registry's
// exact endpoint paths are not stable across deployments, so the client
// probes an ordered candidate list at startup instead of hard-coding one URL.
package tns

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Candidate path suffixes under the API base URL, most common naming first.
var submitCandidates = []string{
	"bulk-report",
	"bulk_report",
	"bulkreport",
	"bulk-report/upload",
	"bulk_report/upload",
	"bulk/at-report",
	"bulk/at_report",
	"bulk/at",
}

var statusCandidates = []string{
	"bulk-report/status",
	"bulk_report/status",
	"bulkreport/status",
	"bulk-report/retrieve",
	"bulk_report/retrieve",
	"bulkreport/retrieve",
	"bulk-report/get",
	"bulk_report/get",
	"bulkreport/get",
}

// ErrDisabled is returned when the registry credentials are not configured.
// The pipeline keeps filtering and auditing; only registry traffic stops.
var ErrDisabled = errors.New("tns: client disabled, missing credentials")

// EndpointRejectedError marks a 400/422 from a live endpoint: the endpoint is
// real but the payload was refused, so rotating to other candidates would not
// help and could duplicate-submit.
type EndpointRejectedError struct {
	URL        string
	StatusCode int
	Body       json.RawMessage
}

func (e *EndpointRejectedError) Error() string {
	return fmt.Sprintf("tns: endpoint %s rejected payload (HTTP %d): %s", e.URL, e.StatusCode, string(e.Body))
}

// Config carries registry credentials and identity. Values are injected via
// the constructor; nothing reads the environment at request time.
type Config struct {
	BotID               string        `mapstructure:"bot_id"`
	BotName             string        `mapstructure:"bot_name"`
	APIKey              string        `mapstructure:"api_key"`
	APIURL              string        `mapstructure:"api_url"`
	ReporterName        string        `mapstructure:"reporter_name"`
	ReporterEmail       string        `mapstructure:"reporter_email"`
	ReporterInstitution string        `mapstructure:"reporter_institution"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`
}

// Enabled reports whether all required credentials are present.
func (c Config) Enabled() bool {
	return c.BotID != "" && c.BotName != "" && c.APIKey != "" && c.APIURL != ""
}

// Marker builds the bot identity string the registry expects in the
// User-Agent header: tns_marker{"tns_id":<int>,"type":"bot","name":"<name>"}.
func (c Config) Marker() string {
	id, _ := strconv.Atoi(c.BotID)
	marker, _ := json.Marshal(struct {
		TNSID int    `json:"tns_id"`
		Type  string `json:"type"`
		Name  string `json:"name"`
	}{TNSID: id, Type: "bot", Name: c.BotName})
	return "tns_marker" + string(marker)
}

// Client submits AT reports to the registry.
type Client struct {
	cfg    Config
	client *http.Client
	logger zerolog.Logger
	apiURL string
}

// NewClient constructs a registry client.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "tns_client").Logger(),
		apiURL: strings.TrimRight(cfg.APIURL, "/"),
	}
}

// Enabled reports whether the client holds usable credentials.
func (c *Client) Enabled() bool {
	return c.cfg.Enabled()
}

// ProbeResult carries the discovered endpoints and per-candidate notes.
type ProbeResult struct {
	SubmitURL string
	StatusURL string
	Notes     []string
}

// ProbeEndpoints posts a minimal payload to every candidate and returns the
// first accepted submit and status URLs. Probing never raises on transport
// trouble; a failed candidate is just skipped.
func (c *Client) ProbeEndpoints(ctx context.Context) (ProbeResult, error) {
	if !c.Enabled() {
		return ProbeResult{}, ErrDisabled
	}

	var res ProbeResult
	for _, ep := range submitCandidates {
		url := c.apiURL + "/" + ep
		ok, note := c.tryPost(ctx, url)
		res.Notes = append(res.Notes, fmt.Sprintf("submit probe %s: %s", ep, note))
		if ok {
			res.SubmitURL = url
			break
		}
	}
	for _, ep := range statusCandidates {
		url := c.apiURL + "/" + ep
		ok, note := c.tryPost(ctx, url)
		res.Notes = append(res.Notes, fmt.Sprintf("status probe %s: %s", ep, note))
		if ok {
			res.StatusURL = url
			break
		}
	}
	return res, nil
}

// tryPost classifies one probe attempt. 404/405 and text/html responses mean
// "not this endpoint"; any structured answer means the endpoint is live.
func (c *Client) tryPost(ctx context.Context, url string) (bool, string) {
	resp, err := c.postForm(ctx, url, map[string]string{
		"api_key": c.cfg.APIKey,
		"data":    "{}",
	})
	if err != nil {
		return false, "EXC " + err.Error()
	}
	defer resp.Body.Close()

	short := fmt.Sprintf("HTTP %d", resp.StatusCode)
	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return false, short
	}

	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if strings.Contains(ct, "json") {
		var body map[string]json.RawMessage
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return true, short + " JSON (unparsed)"
		}
		keys := make([]string, 0, 6)
		for k := range body {
			if len(keys) == 6 {
				break
			}
			keys = append(keys, k)
		}
		return true, short + " JSON keys=" + strings.Join(keys, ",")
	}
	// HTML usually means an auth wall or a generic error page.
	if strings.Contains(ct, "text/html") {
		return false, short + " HTML"
	}
	return true, short + " CT=" + ct
}

// SubmitReport posts a formatted AT report. With a pinned URL from a probe it
// posts there only; otherwise it rotates through the candidate list, stopping
// early on a 400/422 because that endpoint is real and further attempts could
// duplicate-submit.
func (c *Client) SubmitReport(ctx context.Context, payload Payload, pinnedURL string) (json.RawMessage, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("tns: marshal report: %w", err)
	}

	urls := []string{pinnedURL}
	if pinnedURL == "" {
		urls = urls[:0]
		for _, ep := range submitCandidates {
			urls = append(urls, c.apiURL+"/"+ep)
		}
	}

	var lastErr error
	for _, url := range urls {
		resp, err := c.postForm(ctx, url, map[string]string{
			"api_key": c.cfg.APIKey,
			"data":    string(data),
		})
		if err != nil {
			lastErr = fmt.Errorf("tns: post %s: %w", url, err)
			continue
		}

		body := decodeBody(resp)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return body, nil
		}
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity {
			return nil, &EndpointRejectedError{URL: url, StatusCode: resp.StatusCode, Body: body}
		}
		lastErr = fmt.Errorf("tns: %s returned HTTP %d: %s", url, resp.StatusCode, string(body))
	}

	if lastErr == nil {
		lastErr = errors.New("tns: no submit URL available")
	}
	return nil, lastErr
}

// postForm sends the registry's expected multipart form with the bot marker
// in the User-Agent header.
func (c *Client) postForm(ctx context.Context, url string, fields map[string]string) (*http.Response, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := form.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write form field %q: %w", k, err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("User-Agent", c.cfg.Marker())

	return c.client.Do(req)
}

// decodeBody returns the response JSON, or a JSON wrapper around the raw
// text when the body is not parseable.
func decodeBody(resp *http.Response) json.RawMessage {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err == nil && json.Valid(raw) && len(bytes.TrimSpace(raw)) > 0 {
		return raw
	}
	wrapped, _ := json.Marshal(map[string]any{
		"raw":         strings.TrimSpace(string(raw)),
		"status_code": resp.StatusCode,
	})
	return wrapped
}
