// Package loki provides a client to push scan events to Grafana Loki.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// jobLabel is the job label on every pushed stream.
const jobLabel = "qr-access-control"

// PushRequest is the Loki push API request body (v1).
type PushRequest struct {
	Streams []Stream `json:"streams"`
}

// Stream is a single stream with labels and log entries.
type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"` // each entry is [timestamp_ns, log_line]
}

// labelSanitize replaces characters we keep out of Loki label values.
var labelSanitize = regexp.MustCompile(`[^a-zA-Z0-9_\-:]`)

// eventFields are the low-cardinality scan event fields promoted to labels.
// Ticket ids stay in the line to keep stream cardinality bounded.
type eventFields struct {
	EventType      string `json:"event_type"`
	Source         string `json:"source"`
	CheckpointKind string `json:"checkpoint_kind"`
	Outcome        string `json:"outcome"`
	Reason         string `json:"reason"`
	CreatedAt      string `json:"created_at"`
}

// Client pushes to one Loki base URL (e.g. http://localhost:3100).
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a Client. A nil httpClient uses one with a 10s timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), http: httpClient}
}

// PushEventJSON parses a scan event (Kafka message value), extracts timestamp and labels, and pushes it.
// If parsing fails, the raw line is pushed with the current time and only the job label.
func (c *Client) PushEventJSON(ctx context.Context, rawJSON []byte) error {
	labels := map[string]string{}
	ts := time.Now().UTC()
	var f eventFields
	if err := json.Unmarshal(rawJSON, &f); err == nil {
		for k, v := range map[string]string{
			"event_type":      f.EventType,
			"source":          f.Source,
			"checkpoint_kind": f.CheckpointKind,
			"outcome":         f.Outcome,
			"reason":          f.Reason,
		} {
			if v != "" {
				labels[k] = v
			}
		}
		if f.CreatedAt != "" {
			if t, err := time.Parse(time.RFC3339Nano, f.CreatedAt); err == nil && !t.IsZero() {
				ts = t
			}
		}
	}
	return c.PushEvent(ctx, ts, string(rawJSON), labels)
}

// PushEvent sends a single log line. Returns an error if the request fails or Loki returns non-2xx.
func (c *Client) PushEvent(ctx context.Context, timestamp time.Time, line string, labels map[string]string) error {
	if c.baseURL == "" {
		return fmt.Errorf("loki: base URL is empty")
	}
	streamLabels := make(map[string]string, len(labels)+1)
	streamLabels["job"] = jobLabel
	for k, v := range labels {
		if s := labelSanitize.ReplaceAllString(strings.TrimSpace(v), "_"); s != "" {
			streamLabels[k] = s
		}
	}
	payload, err := json.Marshal(PushRequest{
		Streams: []Stream{{
			Stream: streamLabels,
			Values: [][]string{{strconv.FormatInt(timestamp.UnixNano(), 10), line}},
		}},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/loki/api/v1/push", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("loki: push returned %s", resp.Status)
	}
	return nil
}
