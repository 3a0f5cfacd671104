package housing

import (
	"context"
	"errors"
	"time"

	"github.com/hidenkeys/aloes/apperr"
	"github.com/hidenkeys/aloes/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Occupancy links tenants and rooms through leasings.
//
// A leasing is the record of one tenancy; tenants and rooms only point at
// their current and next leasing. Every operation runs in one transaction:
// rows are re-read (and row-locked on postgres) before the preconditions are
// checked, and each pointer write is conditional on the value it replaces, so
// a concurrent change surfaces as a conflict instead of a half-applied update.
type Occupancy struct {
	db *gorm.DB
}

func NewOccupancy(db *gorm.DB) *Occupancy {
	return &Occupancy{db: db}
}

var errConcurrent = apperr.Conflict("L'occupation a été modifiée entre-temps, veuillez réessayer")

// Reserve creates the next leasing of a tenant in a room.
func (o *Occupancy) Reserve(ctx context.Context, side Side, tenantID, roomID uint) (*Outcome, error) {
	var leasing *Leasing
	err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tenant, err := lockTenant(tx, tenantID)
		if err != nil {
			return err
		}
		room, err := lockRoom(tx, roomID)
		if err != nil {
			return err
		}

		if !room.IsActive {
			return apperr.Conflict("La chambre %s n'est pas active", room.Code)
		}
		if tenant.NextLeasingID != nil {
			return apperr.Conflict("Ce locataire a déjà réservé une chambre")
		}
		if room.NextLeasingID != nil {
			return apperr.Conflict("Cette chambre est déjà réservée")
		}

		leasing = &Leasing{TenantID: tenant.ID, RoomID: room.ID}
		if err := tx.Omit(clause.Associations).Create(leasing).Error; err != nil {
			return err
		}
		if err := moveRefs(tx, &Tenant{}, tenant.ID, ref{"next_leasing_id", nil, &leasing.ID}); err != nil {
			return err
		}
		return moveRefs(tx, &Room{}, room.ID, ref{"next_leasing_id", nil, &leasing.ID})
	})
	if err != nil {
		return nil, err
	}

	return &Outcome{
		Message:  side.pick("Le locataire a bien réservé la chambre", "La chambre a bien été réservée"),
		Redirect: side.profile(tenantID, roomID),
		Leasing:  leasing,
	}, nil
}

// MoveInDirect moves a tenant into an empty room without a prior reservation.
func (o *Occupancy) MoveInDirect(ctx context.Context, side Side, tenantID, roomID uint, entry time.Time) (*Outcome, error) {
	var leasing *Leasing
	err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tenant, err := lockTenant(tx, tenantID)
		if err != nil {
			return err
		}
		room, err := lockRoom(tx, roomID)
		if err != nil {
			return err
		}

		if !room.IsActive {
			return apperr.Conflict("La chambre %s n'est pas active", room.Code)
		}
		if tenant.CurrentLeasingID != nil {
			return apperr.Conflict("Ce locataire possède déjà une chambre")
		}
		if room.CurrentLeasingID != nil {
			return apperr.Conflict("%s", side.pick("Cette chambre n'est pas vide", "La chambre n'est pas vide"))
		}

		leasing = &Leasing{TenantID: tenant.ID, RoomID: room.ID, EntryDate: date(entry)}
		if err := tx.Omit(clause.Associations).Create(leasing).Error; err != nil {
			return err
		}
		if err := moveRefs(tx, &Tenant{}, tenant.ID, ref{"current_leasing_id", nil, &leasing.ID}); err != nil {
			return err
		}
		return moveRefs(tx, &Room{}, room.ID, ref{"current_leasing_id", nil, &leasing.ID})
	})
	if err != nil {
		return nil, err
	}

	return &Outcome{
		Message:  "Le locataire a bien été emménagé",
		Redirect: side.profile(tenantID, roomID),
		Leasing:  leasing,
	}, nil
}

// MoveIn promotes a reservation to the current leasing. The id is the tenant,
// or the reserved room when called from the room side. The reserved room must
// still be empty when the transaction runs.
func (o *Occupancy) MoveIn(ctx context.Context, side Side, id uint, entry time.Time) (*Outcome, error) {
	var leasing Leasing
	err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tenantID, err := o.resolveTenant(tx, side, id, func(r *Room) *uint { return r.NextLeasingID },
			"Cette chambre n'est pas réservée")
		if err != nil {
			return err
		}
		tenant, err := lockTenant(tx, tenantID)
		if err != nil {
			return err
		}
		if tenant.NextLeasingID == nil {
			return apperr.Conflict("Ce locataire n'a pas de prochaine chambre")
		}
		if err := tx.First(&leasing, *tenant.NextLeasingID).Error; err != nil {
			return err
		}
		if side == RoomSide && leasing.RoomID != id {
			return errConcurrent
		}
		room, err := lockRoom(tx, leasing.RoomID)
		if err != nil {
			return err
		}

		if room.NextLeasingID == nil || *room.NextLeasingID != leasing.ID {
			return errConcurrent
		}
		if room.CurrentLeasingID != nil {
			return apperr.Conflict("%s", side.pick("La prochaine chambre n'est pas vide", "La chambre n'est pas vide"))
		}
		if tenant.CurrentLeasingID != nil {
			return apperr.Conflict("%s", side.pick(
				"Ce locataire possède actuellement une chambre. Déménagez-le avant de l'emménager",
				"Le prochain locataire possède actuellement une chambre. Déménagez-le avant de l'emménager",
			))
		}

		leasing.EntryDate = date(entry)
		if err := tx.Model(&Leasing{}).Where("id = ?", leasing.ID).Update("date_of_entry", leasing.EntryDate).Error; err != nil {
			return err
		}
		promote := []ref{
			{"current_leasing_id", nil, &leasing.ID},
			{"next_leasing_id", &leasing.ID, nil},
		}
		if err := moveRefs(tx, &Tenant{}, tenant.ID, promote...); err != nil {
			return err
		}
		return moveRefs(tx, &Room{}, room.ID, promote...)
	})
	if err != nil {
		return nil, err
	}

	return &Outcome{
		Message:  "Le locataire a bien emménagé",
		Redirect: side.profile(leasing.TenantID, leasing.RoomID),
		Leasing:  &leasing,
	}, nil
}

// MoveOut closes the current leasing of a tenant, or of the tenant living in
// the room when called from the room side. The leasing is kept as history.
func (o *Occupancy) MoveOut(ctx context.Context, side Side, id uint, departure time.Time) (*Outcome, error) {
	var leasing *Leasing
	err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tenantID, err := o.resolveTenant(tx, side, id, func(r *Room) *uint { return r.CurrentLeasingID },
			"La chambre est déjà vide")
		if err != nil {
			return err
		}
		tenant, err := lockTenant(tx, tenantID)
		if err != nil {
			return err
		}
		leasing, err = moveOut(tx, tenant, departure)
		if err != nil {
			return err
		}
		if side == RoomSide && leasing.RoomID != id {
			return errConcurrent
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Outcome{
		Message:  side.pick("Le locataire a bien déménagé", "La chambre a bien été vidée"),
		Redirect: side.profile(leasing.TenantID, leasing.RoomID),
		Leasing:  leasing,
	}, nil
}

// CancelReservation deletes the next leasing of a tenant, or of the room when
// called from the room side.
func (o *Occupancy) CancelReservation(ctx context.Context, side Side, id uint) (*Outcome, error) {
	var leasing Leasing
	err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tenantID, err := o.resolveTenant(tx, side, id, func(r *Room) *uint { return r.NextLeasingID },
			"Cette chambre n'est pas réservée")
		if err != nil {
			return err
		}
		tenant, err := lockTenant(tx, tenantID)
		if err != nil {
			return err
		}
		if tenant.NextLeasingID == nil {
			return apperr.Conflict("Ce locataire n'a pas de prochaine chambre")
		}
		if err := tx.First(&leasing, *tenant.NextLeasingID).Error; err != nil {
			return err
		}
		if side == RoomSide && leasing.RoomID != id {
			return errConcurrent
		}
		room, err := lockRoom(tx, leasing.RoomID)
		if err != nil {
			return err
		}
		if room.NextLeasingID == nil || *room.NextLeasingID != leasing.ID {
			return errConcurrent
		}

		if err := moveRefs(tx, &Tenant{}, tenant.ID, ref{"next_leasing_id", &leasing.ID, nil}); err != nil {
			return err
		}
		if err := moveRefs(tx, &Room{}, room.ID, ref{"next_leasing_id", &leasing.ID, nil}); err != nil {
			return err
		}
		res := tx.Where("id = ? AND date_of_entry IS NULL", leasing.ID).Delete(&Leasing{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return errConcurrent
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Outcome{
		Message:  side.pick("La prochaine chambre a été annulée", "Le prochain locataire a bien été annulé"),
		Redirect: side.profile(leasing.TenantID, leasing.RoomID),
		Leasing:  &leasing,
	}, nil
}

// Leave records the departure of a tenant from the residence and moves them
// out of their current room on the same date.
func (o *Occupancy) Leave(ctx context.Context, tenantID uint, departure time.Time) (*Outcome, error) {
	var closed *Leasing
	err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tenant, err := lockTenant(tx, tenantID)
		if err != nil {
			return err
		}
		if tenant.DepartureDate != nil {
			return apperr.Conflict("Le locataire a déjà quitté la résidence")
		}

		res := tx.Model(&Tenant{}).
			Where("id = ? AND date_of_departure IS NULL", tenant.ID).
			Update("date_of_departure", date(departure))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return errConcurrent
		}

		if tenant.CurrentLeasingID == nil {
			return nil
		}
		closed, err = moveOut(tx, tenant, departure)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &Outcome{
		Message:  "Le locataire a bien quitté la résidence",
		Redirect: TenantPath(tenantID),
		Leasing:  closed,
	}, nil
}

// resolveTenant returns the tenant targeted by a side-aware operation: the id
// itself on the tenant side, the tenant of the room's leasing on the room side.
func (o *Occupancy) resolveTenant(tx *gorm.DB, side Side, id uint, pick func(*Room) *uint, emptyMessage string) (uint, error) {
	switch side {
	case TenantSide:
		return id, nil
	case RoomSide:
		var room Room
		if err := tx.First(&room, id).Error; err != nil {
			return 0, notFound(err, "Chambre introuvable")
		}
		leasingID := pick(&room)
		if leasingID == nil {
			return 0, apperr.Conflict("%s", emptyMessage)
		}
		var leasing Leasing
		if err := tx.First(&leasing, *leasingID).Error; err != nil {
			return 0, err
		}
		return leasing.TenantID, nil
	default:
		panic("housing: unknown side")
	}
}

func moveOut(tx *gorm.DB, tenant *Tenant, departure time.Time) (*Leasing, error) {
	if tenant.CurrentLeasingID == nil {
		return nil, apperr.Conflict("Le locataire n'est dans aucune chambre actuellement")
	}
	var leasing Leasing
	if err := tx.First(&leasing, *tenant.CurrentLeasingID).Error; err != nil {
		return nil, err
	}
	if leasing.EntryDate != nil && departure.Before(time.Time(*leasing.EntryDate)) {
		return nil, apperr.Validation("La date de sortie précède la date d'entrée",
			map[string]string{"date": "gtefield"})
	}
	room, err := lockRoom(tx, leasing.RoomID)
	if err != nil {
		return nil, err
	}
	if room.CurrentLeasingID == nil || *room.CurrentLeasingID != leasing.ID {
		return nil, errConcurrent
	}

	leasing.DepartureDate = date(departure)
	if err := tx.Model(&Leasing{}).Where("id = ?", leasing.ID).Update("date_of_departure", leasing.DepartureDate).Error; err != nil {
		return nil, err
	}
	if err := moveRefs(tx, &Tenant{}, tenant.ID, ref{"current_leasing_id", &leasing.ID, nil}); err != nil {
		return nil, err
	}
	if err := moveRefs(tx, &Room{}, room.ID, ref{"current_leasing_id", &leasing.ID, nil}); err != nil {
		return nil, err
	}
	return &leasing, nil
}

func lockTenant(tx *gorm.DB, id uint) (*Tenant, error) {
	var tenant Tenant
	if err := storage.ForUpdate(tx).First(&tenant, id).Error; err != nil {
		return nil, notFound(err, "Locataire introuvable")
	}
	return &tenant, nil
}

func lockRoom(tx *gorm.DB, id uint) (*Room, error) {
	var room Room
	if err := storage.ForUpdate(tx).First(&room, id).Error; err != nil {
		return nil, notFound(err, "Chambre introuvable")
	}
	return &room, nil
}

func notFound(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("%s", message)
	}
	return err
}

// ref is one pointer column moving from an expected value to a new one.
type ref struct {
	column   string
	from, to *uint
}

func moveRefs(tx *gorm.DB, model any, id uint, refs ...ref) error {
	q := tx.Model(model).Where("id = ?", id)
	sets := make(map[string]any, len(refs))
	for _, r := range refs {
		if r.from == nil {
			q = q.Where(r.column + " IS NULL")
		} else {
			q = q.Where(r.column+" = ?", *r.from)
		}
		if r.to == nil {
			sets[r.column] = gorm.Expr("NULL")
		} else {
			sets[r.column] = *r.to
		}
	}

	res := q.Updates(sets)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return errConcurrent
	}
	return nil
}
