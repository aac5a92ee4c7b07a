package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"kiln_console/internal/logger"
	"kiln_console/internal/models"
)

const (
	snapshotPath = "/log"
	streamPath   = "/logws"

	// maxSnapshotBytes caps the body read; a full multi-day run at one row
	// per minute stays far below it.
	maxSnapshotBytes = 32 << 20
)

var errUnsupportedScheme = errors.New("unsupported URL scheme")

// SnapshotResult is the outcome of one snapshot request.
type SnapshotResult struct {
	Activity      models.ProcessActivity
	Body          string // header and rows; empty unless Active
	LastTimestamp *int64 // leading timestamp of the last row, if it parsed
}

// Snapshotter fetches everything logged so far for the running program.
type Snapshotter interface {
	Fetch(ctx context.Context) SnapshotResult
}

// SnapshotFetcher is the HTTP Snapshotter.
type SnapshotFetcher struct {
	client *http.Client
	url    string
	log    *logger.Logger
}

// NewSnapshotFetcher builds a fetcher for {baseURL}/log.
func NewSnapshotFetcher(baseURL string, client *http.Client, log *logger.Logger) *SnapshotFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &SnapshotFetcher{
		client: client,
		url:    SnapshotURL(baseURL),
		log:    logger.OrNop(log),
	}
}

// Fetch never returns an error: any failure degrades to Inactive so the
// console shows "no program running" instead of failing.
func (f *SnapshotFetcher) Fetch(ctx context.Context) SnapshotResult {
	body, status, err := f.get(ctx)
	if err != nil {
		f.log.Warnw("telemetry_snapshot_failed", "url", f.url, "err", err)
		return inactiveSnapshot()
	}

	switch {
	case status == http.StatusNoContent:
		f.log.Infow("telemetry_snapshot_no_program", "url", f.url)
		return inactiveSnapshot()
	case status < 200 || status > 299:
		f.log.Warnw("telemetry_snapshot_bad_status", "url", f.url, "status", status)
		return inactiveSnapshot()
	}

	res := parseSnapshot(body)
	f.log.Debugw("telemetry_snapshot_fetched", "bytes", len(body), "activity", res.Activity)
	return res
}

func (f *SnapshotFetcher) get(ctx context.Context) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return "", 0, fmt.Errorf("build snapshot request: %w", err)
	}
	req.Header.Set("Accept", "text/csv")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("snapshot request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("read snapshot body: %w", err)
	}
	return string(b), resp.StatusCode, nil
}

// parseSnapshot turns a 2xx body into a result. The control unit answers
// with the sentinel text instead of 204 in some versions.
func parseSnapshot(body string) SnapshotResult {
	text := strings.TrimSpace(body)
	if text == models.NoProgramRunning {
		return inactiveSnapshot()
	}

	res := SnapshotResult{Activity: models.ActivityActive, Body: text}
	lines := strings.Split(text, "\n")
	if len(lines) > 1 {
		if ts, err := models.LeadingTimestamp(lines[len(lines)-1]); err == nil {
			res.LastTimestamp = &ts
		}
	}
	return res
}

func inactiveSnapshot() SnapshotResult {
	return SnapshotResult{Activity: models.ActivityInactive}
}

// SnapshotURL is the snapshot endpoint under the control unit base.
func SnapshotURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + snapshotPath
}

// StreamURL derives the streaming endpoint from the snapshot base:
// http becomes ws, https becomes wss, and /logws is appended.
func StreamURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse base url %q: %w", baseURL, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("%w %q in %q", errUnsupportedScheme, u.Scheme, baseURL)
	}
	u.Path += streamPath
	return u.String(), nil
}
