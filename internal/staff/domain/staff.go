// Package domain holds the staff profile used by scanner devices.
package domain

// Role is the checkpoint kind a staff member operates.
type Role string

const (
	RoleGate Role = "GATE"
	RoleZone Role = "ZONE"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleGate || r == RoleZone }

// Staff is a gate or zone operator. PINHash is a bcrypt hash; plaintext PINs are never stored.
type Staff struct {
	ID               string
	DisplayName      string
	Role             Role
	PINHash          string
	GateID           string // RoleGate only
	ZoneCheckpointID string // RoleZone only
}
