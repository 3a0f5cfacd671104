package housing

import (
	"context"
	"strings"
	"time"

	"github.com/hidenkeys/aloes/apperr"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store reads and writes the housing entities outside of occupancy changes.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) Tenant(ctx context.Context, id uint) (*Tenant, error) {
	var t Tenant
	err := s.db.WithContext(ctx).
		Preload("School").
		Preload("CurrentLeasing.Room").
		Preload("NextLeasing.Room").
		First(&t, id).Error
	if err != nil {
		return nil, notFound(err, "Locataire introuvable")
	}
	return &t, nil
}

func (s *Store) Room(ctx context.Context, id uint) (*Room, error) {
	var r Room
	err := s.db.WithContext(ctx).
		Preload("Rent").
		Preload("Renovation").
		Preload("CurrentLeasing.Tenant").
		Preload("NextLeasing.Tenant").
		First(&r, id).Error
	if err != nil {
		return nil, notFound(err, "Chambre introuvable")
	}
	return &r, nil
}

func (s *Store) Leasing(ctx context.Context, id uint) (*Leasing, error) {
	var l Leasing
	err := s.db.WithContext(ctx).
		Preload("Tenant.School").
		Preload("Room.Rent").
		First(&l, id).Error
	if err != nil {
		return nil, notFound(err, "Dossier introuvable")
	}
	return &l, nil
}

func (s *Store) CreateTenant(ctx context.Context, t *Tenant) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(t).Error
}

// SaveTenant writes the editable fields. Occupancy pointers are never touched here.
func (s *Store) SaveTenant(ctx context.Context, t *Tenant) error {
	return s.db.WithContext(ctx).Model(t).
		Omit(clause.Associations, "current_leasing_id", "next_leasing_id", "created_at").
		Select("*").
		Updates(t).Error
}

func (s *Store) CreateRoom(ctx context.Context, r *Room) error {
	if err := s.checkRoom(ctx, r); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(r).Error
}

func (s *Store) SaveRoom(ctx context.Context, r *Room) error {
	if err := s.checkRoom(ctx, r); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(r).
		Omit(clause.Associations, "current_leasing_id", "next_leasing_id", "created_at", "map", "is_active").
		Select("*").
		Updates(r).Error
}

func (s *Store) checkRoom(ctx context.Context, r *Room) error {
	var count int64
	err := s.db.WithContext(ctx).Model(&Room{}).
		Where("(lot = ? OR room = ?) AND id <> ?", r.Lot, r.Code, r.ID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return apperr.Validation("Ce lot ou ce numéro de chambre existe déjà",
			map[string]string{"lot": "unique", "room": "unique"})
	}
	if err := s.db.WithContext(ctx).Model(&Rent{}).Where("id = ?", r.RentID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return apperr.Validation("Ce loyer n'existe pas", map[string]string{"rentId": "exists"})
	}
	return nil
}

func (s *Store) SetRoomMap(ctx context.Context, id uint, path string) error {
	return s.db.WithContext(ctx).Model(&Room{}).Where("id = ?", id).Update("map", path).Error
}

// ToggleActive flips the active flag of a room and returns the new value.
func (s *Store) ToggleActive(ctx context.Context, id uint) (bool, error) {
	var active bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var r Room
		if err := tx.First(&r, id).Error; err != nil {
			return notFound(err, "Chambre introuvable")
		}
		active = !r.IsActive
		res := tx.Model(&Room{}).Where("id = ? AND is_active = ?", id, r.IsActive).Update("is_active", active)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return errConcurrent
		}
		return nil
	})
	return active, err
}

// SaveLeasing updates the file of a leasing. While a tenant or a room points
// at it, its dates are owned by the occupancy operations and are kept; the
// dates of a past leasing can be corrected.
func (s *Store) SaveLeasing(ctx context.Context, l *Leasing) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		linked, err := leasingLinked(tx, l.ID)
		if err != nil {
			return err
		}

		omit := []string{clause.Associations, "tenant_id", "room_id", "created_at"}
		if linked {
			var stored Leasing
			if err := tx.Select("date_of_entry", "date_of_departure").First(&stored, l.ID).Error; err != nil {
				return notFound(err, "Dossier introuvable")
			}
			l.EntryDate, l.DepartureDate = stored.EntryDate, stored.DepartureDate
			omit = append(omit, "date_of_entry", "date_of_departure")
		} else if l.EntryDate != nil && l.DepartureDate != nil &&
			time.Time(*l.DepartureDate).Before(time.Time(*l.EntryDate)) {
			return apperr.Validation("La date de sortie précède la date d'entrée",
				map[string]string{"dateOfDeparture": "gtefield"})
		}

		return tx.Model(l).Omit(omit...).Select("*").Updates(l).Error
	})
}

func leasingLinked(tx *gorm.DB, id uint) (bool, error) {
	for _, model := range []any{&Tenant{}, &Room{}} {
		var n int64
		err := tx.Model(model).
			Where("current_leasing_id = ? OR next_leasing_id = ?", id, id).
			Count(&n).Error
		if err != nil {
			return false, err
		}
		if n > 0 {
			return true, nil
		}
	}
	return false, nil
}

type SearchFilter struct {
	LastName          string `query:"last_name"`
	FirstName         string `query:"first_name"`
	Name              string `query:"name"`
	Room              string `query:"room"`
	Lot               uint   `query:"lot"`
	Gender            string `query:"gender"`
	SchoolID          uint   `query:"school"`
	EmptyRoomsOnly    bool   `query:"empty_rooms_only"`
	ExcludeTemporary  bool   `query:"exclude_temporary"`
	ExcludeEmptyRooms bool   `query:"exclude_empty_rooms"`
	RenovationID      uint   `query:"renovation"`
	Building          string `query:"building"`
	Sort              string `query:"sort"`
}

func (f SearchFilter) empty() bool {
	return f == SearchFilter{} || f == SearchFilter{Gender: "I", Building: "I"}
}

func contains(s string) string {
	return "%" + strings.ToLower(s) + "%"
}

func prefix(s string) string {
	return strings.ToLower(s) + "%"
}

// Search lists rooms with their current occupant. Without criteria only the
// active rooms are listed; any criterion searches every room.
func (s *Store) Search(ctx context.Context, f SearchFilter) ([]Room, error) {
	q := s.db.WithContext(ctx).Model(&Room{}).
		Select("rooms.*").
		Joins("LEFT JOIN leasings cl ON cl.id = rooms.current_leasing_id").
		Joins("LEFT JOIN tenants ct ON ct.id = cl.tenant_id").
		Preload("Rent").
		Preload("Renovation").
		Preload("CurrentLeasing.Tenant").
		Preload("NextLeasing.Tenant")

	if f.empty() {
		q = q.Where("rooms.is_active = ?", true)
	}
	if f.LastName != "" {
		q = q.Where("LOWER(ct.name) LIKE ?", contains(f.LastName))
	}
	if f.FirstName != "" {
		q = q.Where("LOWER(ct.first_name) LIKE ?", contains(f.FirstName))
	}
	if f.Name != "" {
		q = q.Where("(LOWER(ct.name) LIKE ? OR LOWER(ct.first_name) LIKE ?)", contains(f.Name), contains(f.Name))
	}
	if f.Room != "" {
		q = q.Where("LOWER(rooms.room) LIKE ?", prefix(f.Room))
	}
	if f.Lot != 0 {
		q = q.Where("rooms.lot = ?", f.Lot)
	}
	if f.Gender != "" && f.Gender != "I" {
		q = q.Where("ct.gender = ?", f.Gender)
	}
	if f.SchoolID != 0 {
		q = q.Where("ct.school_id = ?", f.SchoolID)
	}
	if f.EmptyRoomsOnly {
		q = q.Where("ct.id IS NULL")
	}
	if f.ExcludeTemporary {
		q = q.Where("ct.temporary = ?", false)
	}
	if f.ExcludeEmptyRooms {
		q = q.Where("ct.id IS NOT NULL")
	}
	if f.RenovationID != 0 {
		q = q.Where("rooms.renovation_id = ?", f.RenovationID)
	}
	if f.Building != "" && f.Building != "I" {
		q = q.Where("LOWER(rooms.room) LIKE ?", prefix(f.Building))
	}

	switch f.Sort {
	case "room":
		q = q.Order("rooms.room")
	case "first_name":
		q = q.Order("ct.first_name")
	case "last_name":
		q = q.Order("ct.name")
	default:
		q = q.Order("rooms.id")
	}

	var rooms []Room
	if err := q.Find(&rooms).Error; err != nil {
		return nil, err
	}
	return rooms, nil
}

// HomelessTenants are the tenants without a current leasing.
func (s *Store) HomelessTenants(ctx context.Context) ([]Tenant, error) {
	var tenants []Tenant
	err := s.db.WithContext(ctx).
		Preload("NextLeasing.Room").
		Where("current_leasing_id IS NULL").
		Order("name, first_name").
		Find(&tenants).Error
	return tenants, err
}

func (s *Store) InactiveRooms(ctx context.Context) ([]Room, error) {
	var rooms []Room
	err := s.db.WithContext(ctx).Preload("Rent").Where("is_active = ?", false).Order("room").Find(&rooms).Error
	return rooms, err
}

// Choice is one autocomplete suggestion.
type Choice struct {
	ID   uint   `json:"id"`
	Text string `json:"text"`
}

// EmptyRooms suggests active rooms without a current leasing.
func (s *Store) EmptyRooms(ctx context.Context, q string) ([]Choice, error) {
	return s.roomChoices(ctx, "current_leasing_id IS NULL", q)
}

// UnreservedRooms suggests active rooms without a next leasing.
func (s *Store) UnreservedRooms(ctx context.Context, q string) ([]Choice, error) {
	return s.roomChoices(ctx, "next_leasing_id IS NULL", q)
}

func (s *Store) TenantsWithoutReservation(ctx context.Context, q string) ([]Choice, error) {
	return s.tenantChoices(ctx, "next_leasing_id IS NULL", q)
}

func (s *Store) TenantsWithoutRoom(ctx context.Context, q string) ([]Choice, error) {
	return s.tenantChoices(ctx, "current_leasing_id IS NULL", q)
}

func (s *Store) roomChoices(ctx context.Context, cond, q string) ([]Choice, error) {
	query := s.db.WithContext(ctx).Where("is_active = ?", true).Where(cond)
	if q != "" {
		query = query.Where("LOWER(room) LIKE ?", prefix(q))
	}
	var rooms []Room
	if err := query.Order("room").Find(&rooms).Error; err != nil {
		return nil, err
	}
	out := make([]Choice, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, Choice{ID: r.ID, Text: r.String()})
	}
	return out, nil
}

func (s *Store) tenantChoices(ctx context.Context, cond, q string) ([]Choice, error) {
	query := s.db.WithContext(ctx).Where(cond)
	if q != "" {
		query = query.Where("(LOWER(name) LIKE ? OR LOWER(first_name) LIKE ?)", contains(q), contains(q))
	}
	var tenants []Tenant
	if err := query.Order("name, first_name").Find(&tenants).Error; err != nil {
		return nil, err
	}
	out := make([]Choice, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, Choice{ID: t.ID, Text: t.String()})
	}
	return out, nil
}

var Buildings = []string{"A", "B", "C", "D", "E", "G"}

type MailLists struct {
	All        []string            `json:"all"`
	ByBuilding map[string][]string `json:"byBuilding"`
}

// MailLists collects the emails of tenants currently living in a room.
func (s *Store) MailLists(ctx context.Context) (*MailLists, error) {
	var rows []struct {
		Email string
		Room  string
	}
	err := s.db.WithContext(ctx).Table("tenants").
		Select("tenants.email AS email, rooms.room AS room").
		Joins("JOIN leasings ON leasings.id = tenants.current_leasing_id").
		Joins("JOIN rooms ON rooms.id = leasings.room_id").
		Where("tenants.email <> ''").
		Order("rooms.room").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	lists := &MailLists{All: []string{}, ByBuilding: make(map[string][]string, len(Buildings))}
	for _, b := range Buildings {
		lists.ByBuilding[b] = []string{}
	}
	for _, r := range rows {
		lists.All = append(lists.All, r.Email)
		b := strings.ToUpper(r.Room[:1])
		if _, ok := lists.ByBuilding[b]; ok {
			lists.ByBuilding[b] = append(lists.ByBuilding[b], r.Email)
		}
	}
	return lists, nil
}

// AddOneYear moves every tenant with a known school year up one year.
func (s *Store) AddOneYear(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Model(&Tenant{}).
		Where("school_year IS NOT NULL").
		Update("school_year", gorm.Expr("school_year + 1"))
	return res.RowsAffected, res.Error
}
