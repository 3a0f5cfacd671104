package housing

import (
	"context"
	"fmt"
)

type HistoryFilter struct {
	TenantID *uint
	RoomID   *uint
}

// newest entry first; reservations without an entry date come before everything
const historyOrder = "CASE WHEN date_of_entry IS NULL THEN 0 ELSE 1 END, date_of_entry DESC, id DESC"

// History lists every leasing matching the filter, current and next ones included.
func (o *Occupancy) History(ctx context.Context, f HistoryFilter) ([]Leasing, error) {
	q := o.db.WithContext(ctx).Preload("Tenant").Preload("Room")
	if f.TenantID != nil {
		q = q.Where("tenant_id = ?", *f.TenantID)
	}
	if f.RoomID != nil {
		q = q.Where("room_id = ?", *f.RoomID)
	}

	var leasings []Leasing
	if err := q.Order(historyOrder).Find(&leasings).Error; err != nil {
		return nil, err
	}
	return leasings, nil
}

// PreviousLeasingsOfTenant is the tenant history without its current and next leasing.
func (o *Occupancy) PreviousLeasingsOfTenant(ctx context.Context, t *Tenant) ([]Leasing, error) {
	return o.previous(ctx, HistoryFilter{TenantID: &t.ID}, t.CurrentLeasingID, t.NextLeasingID)
}

func (o *Occupancy) PreviousLeasingsOfRoom(ctx context.Context, r *Room) ([]Leasing, error) {
	return o.previous(ctx, HistoryFilter{RoomID: &r.ID}, r.CurrentLeasingID, r.NextLeasingID)
}

func (o *Occupancy) previous(ctx context.Context, f HistoryFilter, exclude ...*uint) ([]Leasing, error) {
	all, err := o.History(ctx, f)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, l := range all {
		if !matches(l.ID, exclude...) {
			out = append(out, l)
		}
	}
	return out, nil
}

func matches(id uint, refs ...*uint) bool {
	for _, r := range refs {
		if r != nil && *r == id {
			return true
		}
	}
	return false
}

// Inconsistency is a tenant or room pointer that disagrees with its leasing.
type Inconsistency struct {
	Entity string `json:"entity"`
	ID     uint   `json:"id"`
	Field  string `json:"field"`
	Detail string `json:"detail"`
}

func (i Inconsistency) String() string {
	return fmt.Sprintf("%s %d %s: %s", i.Entity, i.ID, i.Field, i.Detail)
}

// CheckConsistency verifies that every current and next pointer on tenants
// and rooms names a leasing of that tenant or room, and that both sides agree.
func (o *Occupancy) CheckConsistency(ctx context.Context) ([]Inconsistency, error) {
	db := o.db.WithContext(ctx)

	var leasings []Leasing
	if err := db.Find(&leasings).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint]Leasing, len(leasings))
	for _, l := range leasings {
		byID[l.ID] = l
	}

	var tenants []Tenant
	if err := db.Find(&tenants).Error; err != nil {
		return nil, err
	}
	var rooms []Room
	if err := db.Find(&rooms).Error; err != nil {
		return nil, err
	}

	tenantRefs := make(map[uint][2]*uint, len(tenants))
	roomRefs := make(map[uint][2]*uint, len(rooms))
	for _, t := range tenants {
		tenantRefs[t.ID] = [2]*uint{t.CurrentLeasingID, t.NextLeasingID}
	}
	for _, r := range rooms {
		roomRefs[r.ID] = [2]*uint{r.CurrentLeasingID, r.NextLeasingID}
	}

	var found []Inconsistency
	fields := [2]string{"current_leasing", "next_leasing"}

	check := func(entity string, id uint, refs [2]*uint, owner func(Leasing) uint, other map[uint][2]*uint, otherID func(Leasing) uint) {
		for i, ref := range refs {
			if ref == nil {
				continue
			}
			l, ok := byID[*ref]
			switch {
			case !ok:
				found = append(found, Inconsistency{entity, id, fields[i], fmt.Sprintf("leasing %d does not exist", *ref)})
			case owner(l) != id:
				found = append(found, Inconsistency{entity, id, fields[i], fmt.Sprintf("leasing %d belongs to another %s", l.ID, entity)})
			default:
				back := other[otherID(l)][i]
				if back == nil || *back != l.ID {
					found = append(found, Inconsistency{entity, id, fields[i], fmt.Sprintf("leasing %d is not mirrored on the other side", l.ID)})
				}
			}
		}
	}

	for _, t := range tenants {
		check("tenant", t.ID, tenantRefs[t.ID], func(l Leasing) uint { return l.TenantID }, roomRefs, func(l Leasing) uint { return l.RoomID })
	}
	for _, r := range rooms {
		check("room", r.ID, roomRefs[r.ID], func(l Leasing) uint { return l.RoomID }, tenantRefs, func(l Leasing) uint { return l.TenantID })
	}
	return found, nil
}
