package housing

import "fmt"

// Side tells from which profile an occupancy change was requested. It picks
// the wording of the outcome and the page to show afterwards.
type Side int

const (
	TenantSide Side = iota
	RoomSide
)

// ParseSide maps the route segment to a Side; anything unknown is the tenant side.
func ParseSide(s string) Side {
	if s == "room" {
		return RoomSide
	}
	return TenantSide
}

func (s Side) String() string {
	switch s {
	case TenantSide:
		return "tenant"
	case RoomSide:
		return "room"
	default:
		panic(fmt.Sprintf("housing: unknown side %d", int(s)))
	}
}

// Outcome is what an occupancy change reports back to the caller.
type Outcome struct {
	Message  string   `json:"message"`
	Redirect string   `json:"redirect"`
	Leasing  *Leasing `json:"leasing,omitempty"`
}

func TenantPath(id uint) string { return fmt.Sprintf("/api/v1/tenants/%d", id) }
func RoomPath(id uint) string { return fmt.Sprintf("/api/v1/rooms/%d", id) }
func LeasingPath(id uint) string { return fmt.Sprintf("/api/v1/leasings/%d", id) }

func (s Side) profile(tenantID, roomID uint) string {
	switch s {
	case TenantSide:
		return TenantPath(tenantID)
	case RoomSide:
		return RoomPath(roomID)
	default:
		panic(fmt.Sprintf("housing: unknown side %d", int(s)))
	}
}

func (s Side) pick(tenantText, roomText string) string {
	switch s {
	case TenantSide:
		return tenantText
	case RoomSide:
		return roomText
	default:
		panic(fmt.Sprintf("housing: unknown side %d", int(s)))
	}
}
