// Package seed loads ticket, staff and zone checkpoint fixtures from YAML into the directory.
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	staffdomain "qr-access-control/internal/staff/domain"
	"qr-access-control/internal/ticket/domain"
)

//go:embed demo.yaml
var demoFixture []byte

// Fixture is the YAML document shape.
type Fixture struct {
	Event string `yaml:"event"`
	// EventDate (YYYY-MM-DD) anchors "HH:MM" time windows. Times are UTC.
	EventDate       string            `yaml:"eventDate,omitempty"`
	ZoneCheckpoints map[string]string `yaml:"zoneCheckpoints,omitempty"`
	Tickets         []TicketFixture   `yaml:"tickets"`
	Staff           []StaffFixture    `yaml:"staff,omitempty"`
}

// TicketFixture is one ticket. Event defaults to the document event.
type TicketFixture struct {
	TicketID      string               `yaml:"ticketId"`
	Event         string               `yaml:"event,omitempty"`
	HolderName    string               `yaml:"holderName,omitempty"`
	Status        string               `yaml:"status"`
	GateAllowlist []string             `yaml:"gateAllowlist,omitempty"`
	Entitlements  []EntitlementFixture `yaml:"entitlements,omitempty"`
}

// EntitlementFixture is one zone entitlement.
type EntitlementFixture struct {
	ZoneID       string         `yaml:"zoneId"`
	ZoneName     string         `yaml:"zoneName,omitempty"`
	ReentryLimit int            `yaml:"reentryLimit"`
	ReentryUsed  int            `yaml:"reentryUsed,omitempty"`
	TimeWindow   *WindowFixture `yaml:"timeWindow,omitempty"`
}

// WindowFixture bounds are RFC 3339 timestamps or "HH:MM" on the fixture's eventDate.
type WindowFixture struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// StaffFixture is one operator with a plaintext PIN, hashed on Apply.
type StaffFixture struct {
	StaffID          string `yaml:"staffId"`
	DisplayName      string `yaml:"displayName,omitempty"`
	Role             string `yaml:"role"`
	PIN              string `yaml:"pin"`
	GateID           string `yaml:"gateId,omitempty"`
	ZoneCheckpointID string `yaml:"zoneCheckpointId,omitempty"`
}

// Demo returns the built-in demo fixture.
func Demo() (*Fixture, error) { return Parse(demoFixture) }

// LoadFile reads and parses a fixture file.
func LoadFile(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seed: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a fixture, rejecting unknown fields.
func Parse(data []byte) (*Fixture, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f Fixture
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("seed: parse: %w", err)
	}
	return &f, nil
}

// DomainTickets converts the ticket fixtures to domain tickets, validating each.
func (f *Fixture) DomainTickets() ([]*domain.Ticket, error) {
	var day time.Time
	if f.EventDate != "" {
		d, err := time.Parse(time.DateOnly, f.EventDate)
		if err != nil {
			return nil, fmt.Errorf("seed: eventDate: %w", err)
		}
		day = d
	}
	out := make([]*domain.Ticket, 0, len(f.Tickets))
	seen := make(map[string]bool, len(f.Tickets))
	for _, tf := range f.Tickets {
		if tf.TicketID == "" {
			return nil, errors.New("seed: ticket without ticketId")
		}
		if seen[tf.TicketID] {
			return nil, fmt.Errorf("seed: duplicate ticket %s", tf.TicketID)
		}
		seen[tf.TicketID] = true
		t := &domain.Ticket{
			ID:            tf.TicketID,
			EventID:       tf.Event,
			HolderName:    tf.HolderName,
			Status:        domain.Status(strings.ToUpper(tf.Status)),
			GateAllowlist: tf.GateAllowlist,
		}
		if t.EventID == "" {
			t.EventID = f.Event
		}
		if t.EventID == "" {
			return nil, fmt.Errorf("seed: ticket %s has no event", tf.TicketID)
		}
		if !t.Status.Valid() {
			return nil, fmt.Errorf("seed: ticket %s: unknown status %q", tf.TicketID, tf.Status)
		}
		for _, ef := range tf.Entitlements {
			e, err := ef.toDomain(day)
			if err != nil {
				return nil, fmt.Errorf("seed: ticket %s: %w", tf.TicketID, err)
			}
			t.Entitlements = append(t.Entitlements, e)
		}
		out = append(out, t)
	}
	return out, nil
}

func (ef EntitlementFixture) toDomain(day time.Time) (domain.Entitlement, error) {
	e := domain.Entitlement{ZoneID: ef.ZoneID, ZoneName: ef.ZoneName, ReentryLimit: ef.ReentryLimit, ReentryUsed: ef.ReentryUsed}
	if e.ZoneID == "" {
		return e, errors.New("entitlement without zoneId")
	}
	if e.ReentryLimit < 0 || e.ReentryUsed < 0 || (e.ReentryLimit > 0 && e.ReentryUsed > e.ReentryLimit) {
		return e, fmt.Errorf("zone %s: invalid reentry counters %d/%d", e.ZoneID, e.ReentryUsed, e.ReentryLimit)
	}
	if ef.TimeWindow == nil {
		return e, nil
	}
	start, err := parseBound(ef.TimeWindow.Start, day)
	if err != nil {
		return e, fmt.Errorf("zone %s: window start: %w", e.ZoneID, err)
	}
	end, err := parseBound(ef.TimeWindow.End, day)
	if err != nil {
		return e, fmt.Errorf("zone %s: window end: %w", e.ZoneID, err)
	}
	if !end.After(start) {
		return e, fmt.Errorf("zone %s: window end must be after start", e.ZoneID)
	}
	e.TimeWindow = &domain.TimeWindow{Start: start, End: end}
	return e, nil
}

func parseBound(s string, day time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	clock, err := time.Parse("15:04", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC 3339 nor HH:MM", s)
	}
	if day.IsZero() {
		return time.Time{}, fmt.Errorf("%q needs eventDate", s)
	}
	return day.Add(time.Duration(clock.Hour())*time.Hour + time.Duration(clock.Minute())*time.Minute), nil
}

// Validate checks staff entries and the checkpoint map without touching storage.
func (f *Fixture) Validate() error {
	for cp, zone := range f.ZoneCheckpoints {
		if cp == "" || zone == "" {
			return errors.New("seed: zoneCheckpoints entries need both ids")
		}
	}
	for _, sf := range f.Staff {
		if sf.StaffID == "" || sf.PIN == "" {
			return errors.New("seed: staff entries need staffId and pin")
		}
		switch role := staffdomain.Role(strings.ToUpper(sf.Role)); role {
		case staffdomain.RoleGate:
			if sf.GateID == "" {
				return fmt.Errorf("seed: gate staff %s needs gateId", sf.StaffID)
			}
		case staffdomain.RoleZone:
			if sf.ZoneCheckpointID == "" {
				return fmt.Errorf("seed: zone staff %s needs zoneCheckpointId", sf.StaffID)
			}
		default:
			return fmt.Errorf("seed: staff %s: unknown role %q", sf.StaffID, sf.Role)
		}
	}
	_, err := f.DomainTickets()
	return err
}

// TicketStore is the ticket write path Apply uses.
type TicketStore interface {
	Put(ctx context.Context, t *domain.Ticket) error
}

// CheckpointStore maps zone checkpoints to zones.
type CheckpointStore interface {
	PutZoneCheckpoint(ctx context.Context, checkpointID, zoneID string) error
}

// StaffStore persists staff.
type StaffStore interface {
	Put(ctx context.Context, s *staffdomain.Staff) error
}

// PINHasher hashes plaintext PINs; *security.Hasher implements it.
type PINHasher interface {
	Hash(pin []byte) (string, error)
}

// Targets are the stores a fixture is written to. Staff and Hasher may be nil to skip staff.
type Targets struct {
	Tickets     TicketStore
	Checkpoints CheckpointStore
	Staff       StaffStore
	Hasher      PINHasher
}

// Summary counts what Apply wrote.
type Summary struct {
	Tickets, ZoneCheckpoints, Staff int
}

// Apply validates the fixture and upserts everything into the targets. Re-applying is idempotent.
func Apply(ctx context.Context, f *Fixture, to Targets) (Summary, error) {
	var sum Summary
	if err := f.Validate(); err != nil {
		return sum, err
	}
	tickets, err := f.DomainTickets()
	if err != nil {
		return sum, err
	}
	for _, t := range tickets {
		if err := to.Tickets.Put(ctx, t); err != nil {
			return sum, fmt.Errorf("seed: put ticket %s: %w", t.ID, err)
		}
		sum.Tickets++
	}
	if to.Checkpoints != nil {
		for cp, zone := range f.ZoneCheckpoints {
			if err := to.Checkpoints.PutZoneCheckpoint(ctx, cp, zone); err != nil {
				return sum, fmt.Errorf("seed: put zone checkpoint %s: %w", cp, err)
			}
			sum.ZoneCheckpoints++
		}
	}
	if to.Staff == nil || to.Hasher == nil {
		return sum, nil
	}
	for _, sf := range f.Staff {
		hash, err := to.Hasher.Hash([]byte(sf.PIN))
		if err != nil {
			return sum, fmt.Errorf("seed: hash pin for %s: %w", sf.StaffID, err)
		}
		st := &staffdomain.Staff{
			ID:          sf.StaffID,
			DisplayName: sf.DisplayName,
			Role:        staffdomain.Role(strings.ToUpper(sf.Role)),
			PINHash:     hash,
		}
		if st.Role == staffdomain.RoleGate {
			st.GateID = sf.GateID
		} else {
			st.ZoneCheckpointID = sf.ZoneCheckpointID
		}
		if err := to.Staff.Put(ctx, st); err != nil {
			return sum, fmt.Errorf("seed: put staff %s: %w", sf.StaffID, err)
		}
		sum.Staff++
	}
	return sum, nil
}
