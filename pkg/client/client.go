// Package client is the HTTP client for the access control API, used by attendee and scanner devices.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	auditdomain "qr-access-control/internal/audit/domain"
	"qr-access-control/internal/checkpoint"
	"qr-access-control/internal/security"
	"qr-access-control/internal/session/domain"
	staffservice "qr-access-control/internal/staff/service"
)

// Client is the access control API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new API client. A nil httpClient gets a 10s timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

type sessionResponse struct {
	TicketID   string `json:"ticketId"`
	EventID    string `json:"eventId"`
	SessionKey string `json:"session_key"`
	Exp        int64  `json:"exp"`
}

// Issue fetches the ticket's session context. It satisfies rotation.Issuer; 404 and 409
// responses unwrap to the issuer's ErrTicketNotFound and ErrTicketNotActive.
func (c *Client) Issue(ctx context.Context, ticketID string) (*domain.Context, error) {
	var resp sessionResponse
	if err := c.post(ctx, "/api/tickets/session", map[string]string{"ticketId": ticketID}, &resp); err != nil {
		return nil, fmt.Errorf("client.Issue: %w", err)
	}
	key, err := security.DecodeKey(resp.SessionKey)
	if err != nil {
		return nil, fmt.Errorf("client.Issue: session key: %w", err)
	}
	sc := &domain.Context{
		TicketID:  resp.TicketID,
		EventID:   resp.EventID,
		Key:       key,
		ExpiresAt: time.Unix(resp.Exp, 0),
	}
	if sc.TicketID == "" {
		sc.TicketID = ticketID
	}
	return sc, nil
}

// ScanGate submits a token scanned at a gate.
func (c *Client) ScanGate(ctx context.Context, qr, gateID string) (checkpoint.Decision, error) {
	var d checkpoint.Decision
	if err := c.post(ctx, "/validate/scan", map[string]string{"qr": qr, "gateId": gateID}, &d); err != nil {
		return d, fmt.Errorf("client.ScanGate: %w", err)
	}
	return normalize(d), nil
}

// ScanZone submits a token scanned at a zone checkpoint.
func (c *Client) ScanZone(ctx context.Context, qr, zoneCheckpointID string) (checkpoint.Decision, error) {
	var d checkpoint.Decision
	if err := c.post(ctx, "/zones/checkpoint/scan", map[string]string{"qr": qr, "zoneCheckpointId": zoneCheckpointID}, &d); err != nil {
		return d, fmt.Errorf("client.ScanZone: %w", err)
	}
	return normalize(d), nil
}

// normalize folds reason codes this client does not know into INVALID.
func normalize(d checkpoint.Decision) checkpoint.Decision {
	if d.Outcome != checkpoint.Allow {
		d.Outcome = checkpoint.Deny
		d.Reason = checkpoint.ParseReason(string(d.Reason))
	}
	return d
}

// StaffLogin checks a staff PIN and returns the operator profile.
func (c *Client) StaffLogin(ctx context.Context, staffID, pin string) (*staffservice.Profile, error) {
	var p staffservice.Profile
	if err := c.post(ctx, "/api/staff/login", map[string]string{"staffId": staffID, "pin": pin}, &p); err != nil {
		return nil, fmt.Errorf("client.StaffLogin: %w", err)
	}
	return &p, nil
}

// Attempts lists the ticket's recent scan attempts, newest first. limit <= 0 uses the server default.
func (c *Client) Attempts(ctx context.Context, ticketID string, limit int) ([]*auditdomain.Attempt, error) {
	path := "/api/tickets/" + url.PathEscape(ticketID) + "/attempts"
	if limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}
	var resp struct {
		Attempts []*auditdomain.Attempt `json:"attempts"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("client.Attempts: %w", err)
	}
	return resp.Attempts, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	return c.doRequest(ctx, http.MethodPost, path, body, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.doRequest(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode >= 400 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if readErr != nil {
			return &HTTPError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read body: %v", readErr)}
		}
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return &HTTPError{StatusCode: resp.StatusCode, Message: apiErr.Error}
		}
		return &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
