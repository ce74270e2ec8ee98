package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"qr-access-control/internal/checkpoint"
	"qr-access-control/internal/security"
	"qr-access-control/internal/ticket/domain"
)

func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	key := bytes.Repeat([]byte{7}, 32)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tickets/session", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"ticketId":    "TK-001",
			"eventId":     "evt_1",
			"session_key": security.EncodeKey(key),
			"exp":         time.Now().Add(time.Hour).Unix(),
		})
	})
	mux.HandleFunc("/validate/scan", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"decision":"ALLOW","ticketId":"TK-001","entitlements":[{"zoneId":"Z-VIP","zoneName":"VIP","reentryLimit":1,"reentryUsed":0}],"unavailable":false}`)) //nolint:errcheck
	})
	mux.HandleFunc("/zones/checkpoint/scan", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"decision":"DENY","reason":"REENTRY_BLOCK","unavailable":false}`)) //nolint:errcheck
	})
	mux.HandleFunc("/api/staff/login", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"staffId":"maya","displayName":"Maya López","role":"ZONE","zoneCheckpointId":"zc_10"}`)) //nolint:errcheck
	})
	mux.HandleFunc("/api/tickets/TK-001/attempts", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ticketId":"TK-001","attempts":[{"id":"a1","ticketId":"TK-001","checkpointKind":"GATE","checkpointId":"G-SUR","decision":"ALLOW","unavailable":false,"createdAt":"2026-06-01T18:05:00Z"}]}`)) //nolint:errcheck
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestScanCommands(t *testing.T) {
	srv := fakeAPI(t)

	out, err := execute(t, "scan", "gate", "--server", srv.URL, "--qr", "a.b.c", "--gate", "G-SUR")
	if err != nil {
		t.Fatalf("scan gate: %v", err)
	}
	if !strings.Contains(out, "ALLOW  ticket=TK-001") || !strings.Contains(out, "Z-VIP") {
		t.Errorf("gate output = %q", out)
	}

	out, err = execute(t, "scan", "zone", "--server", srv.URL, "--qr", "a.b.c", "--zone", "zc_10")
	if !errors.Is(err, errDenied) {
		t.Fatalf("scan zone err = %v, want errDenied", err)
	}
	if !strings.Contains(out, "reason=REENTRY_BLOCK") {
		t.Errorf("zone output = %q", out)
	}
}

func TestStaffLoginAndAttemptsCommands(t *testing.T) {
	srv := fakeAPI(t)

	out, err := execute(t, "staff", "login", "--server", srv.URL, "--id", "maya", "--pin", "4321")
	if err != nil {
		t.Fatalf("staff login: %v", err)
	}
	if !strings.Contains(out, "role=ZONE") || !strings.Contains(out, "zone checkpoint: zc_10") {
		t.Errorf("login output = %q", out)
	}

	out, err = execute(t, "attempts", "TK-001", "--server", srv.URL)
	if err != nil {
		t.Fatalf("attempts: %v", err)
	}
	if !strings.Contains(out, "G-SUR") || !strings.Contains(out, "ALLOW") {
		t.Errorf("attempts output = %q", out)
	}
}

func TestAttendeeCommand(t *testing.T) {
	srv := fakeAPI(t)

	out, err := execute(t, "attendee", "--server", srv.URL, "--ticket", "TK-001", "--ttl", "20ms", "--count", "3")
	if err != nil {
		t.Fatalf("attendee: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 3 {
		t.Fatalf("printed %d tokens, want 3: %q", len(lines), out)
	}
	if strings.Count(strings.Fields(lines[0])[0], ".") != 2 {
		t.Errorf("first line is not a JWT: %q", lines[0])
	}
}

func TestPrintDecision_Unavailable(t *testing.T) {
	var buf bytes.Buffer
	err := printDecision(&buf, checkpoint.Decision{Outcome: checkpoint.Deny, Reason: checkpoint.ReasonInvalid, Unavailable: true})
	if !errors.Is(err, errDenied) || !strings.Contains(buf.String(), "unavailable") {
		t.Errorf("output = %q, err = %v", buf.String(), err)
	}
	buf.Reset()
	err = printDecision(&buf, checkpoint.Decision{Outcome: checkpoint.Allow, TicketID: "T", Entitlements: []domain.Entitlement{{ZoneID: "Z1"}}})
	if err != nil || !strings.Contains(buf.String(), "Z1") {
		t.Errorf("output = %q, err = %v", buf.String(), err)
	}
}
