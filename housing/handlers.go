package housing

import (
	"bytes"
	"context"
	"mime/multipart"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/hidenkeys/aloes/apperr"
	"github.com/hidenkeys/aloes/lock"
	"github.com/hidenkeys/aloes/web"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Files stores the uploaded map images.
type Files interface {
	SaveImage(fh *multipart.FileHeader, folder string) (string, error)
	Remove(rel string) error
}

const mapsFolder = "maps"

const (
	tenantLocked  = "Impossible de modifier le locataire : il est en cours de modification"
	roomLocked    = "Impossible de modifier la chambre : elle est en cours de modification"
	leasingLocked = "Impossible de modifier le dossier : il est en cours de modification"
)

type Handler struct {
	store *Store
	occ   *Occupancy
	edit  *web.Editor
	files Files
	log   *zap.Logger

	Schools     *CatalogHandler[School, *School]
	Rents       *CatalogHandler[Rent, *Rent]
	Renovations *CatalogHandler[Renovation, *Renovation]
	Maps        *CatalogHandler[Map, *Map]
}

func NewHandler(db *gorm.DB, edit *web.Editor, files Files, log *zap.Logger) *Handler {
	h := &Handler{
		store: NewStore(db),
		occ:   NewOccupancy(db),
		edit:  edit,
		files: files,
		log:   log,
	}
	h.Schools = &CatalogHandler[School, *School]{
		cat: NewSchools(db), edit: edit, kind: "school", path: "/api/v1/schools",
		locked:  "Impossible de modifier l'école : elle est en cours de modification",
		created: "L'école a bien été créée", saved: "L'école a bien été modifiée", deleted: "L'école a bien été supprimée",
	}
	h.Rents = &CatalogHandler[Rent, *Rent]{
		cat: NewRents(db), edit: edit, kind: "rent", path: "/api/v1/rents",
		locked:  "Impossible de modifier le loyer : il est en cours de modification",
		created: "Le loyer a bien été créé", saved: "Le loyer a bien été modifié", deleted: "Le loyer a bien été supprimé",
	}
	h.Renovations = &CatalogHandler[Renovation, *Renovation]{
		cat: NewRenovations(db), edit: edit, kind: "renovation", path: "/api/v1/renovations",
		locked:  "Impossible de modifier le niveau de rénovation : il est en cours de modification",
		created: "Le niveau de rénovation a bien été créé", saved: "Le niveau de rénovation a bien été modifié",
		deleted: "Le niveau de rénovation a bien été supprimé",
		prepare: func(r *Renovation) {
			if r.Color == "" {
				r.Color = DefaultRenovationColor
			}
		},
	}
	h.Maps = &CatalogHandler[Map, *Map]{
		cat: NewMaps(db), edit: edit, kind: "map", path: "/api/v1/maps",
		locked:  "Impossible de modifier le plan : il est en cours de modification",
		created: "Le plan a bien été créé", saved: "Le plan a bien été modifié", deleted: "Le plan a bien été supprimé",
	}
	return h
}

func (h *Handler) Store() *Store         { return h.store }
func (h *Handler) Occupancy() *Occupancy { return h.occ }

// Tenants

type tenantProfile struct {
	Tenant    *Tenant   `json:"tenant"`
	Completed bool      `json:"completed"`
	Previous  []Leasing `json:"previousLeasings"`
}

func (h *Handler) TenantProfile(c fiber.Ctx) error {
	id, err := web.ParseID(c, "id")
	if err != nil {
		return err
	}
	t, err := h.store.Tenant(c.UserContext(), id)
	if err != nil {
		return err
	}
	previous, err := h.occ.PreviousLeasingsOfTenant(c.UserContext(), t)
	if err != nil {
		return err
	}
	return web.Data(c, tenantProfile{Tenant: t, Completed: t.Completed(), Previous: previous})
}

func (h *Handler) CreateTenant(c fiber.Ctx) error {
	var t Tenant
	if err := web.BindJSON(c, &t); err != nil {
		return err
	}
	t.ID, t.CurrentLeasingID, t.NextLeasingID, t.DepartureDate = 0, nil, nil, nil
	if t.SchoolYear == nil {
		year := uint(1)
		t.SchoolYear = &year
	}
	if err := h.store.CreateTenant(c.UserContext(), &t); err != nil {
		return err
	}
	return web.Created(c, "Le locataire a bien été créé", TenantPath(t.ID), t)
}

func (h *Handler) EditTenant(c fiber.Ctx) error {
	id, err := web.ParseID(c, "id")
	if err != nil {
		return err
	}
	t, err := h.store.Tenant(c.UserContext(), id)
	if err != nil {
		return err
	}
	if err := h.edit.Begin(c, lock.For("tenant", id), tenantLocked); err != nil {
		return err
	}
	return web.Data(c, t)
}

func (h *Handler) UpdateTenant(c fiber.Ctx) error {
	id, err := web.ParseID(c, "id")
	if err != nil {
		return err
	}
	var t Tenant
	err = h.edit.Save(c, lock.For("tenant", id), tenantLocked, func() error {
		current, err := h.store.Tenant(c.UserContext(), id)
		if err != nil {
			return err
		}
		t = *current
		t.School, t.CurrentLeasing, t.NextLeasing = nil, nil, nil
		if err := web.BindJSON(c, &t); err != nil {
			return err
		}
		t.ID = id
		return h.store.SaveTenant(c.UserContext(), &t)
	})
	if err != nil {
		return err
	}
	return web.Success(c, "Le locataire a bien été modifié", TenantPath(id), t)
}

func (h *Handler) CancelTenantEdit(c fiber.Ctx) error {
	id, err := web.ParseID(c, "id")
	if err != nil {
		return err
	}
	return h.edit.Cancel(c, lock.For("tenant", id), TenantPath(id))
}

func (h *Handler) ImportTenant(c fiber.Ctx) error {
	t, err := h.store.ImportTenant(c.UserContext(), bytes.TrimSpace(c.Body()))
	if err != nil {
		return err
	}
	return web.Created(c, ImportedMessage, TenantPath(t.ID), t)
}

func (h *Handler) HomelessTenants(c fiber.Ctx) error {
	tenants, err := h.store.HomelessTenants(c.UserContext())
	if err != nil {
		return err
	}
	return web.Data(c, tenants)
}

func (h *Handler) AddOneYear(c fiber.Ctx) error {
	n, err := h.store.AddOneYear(c.UserContext())
	if err != nil {
		return err
	}
	h.log.Info("school year incremented", zap.Int64("tenants", n))
	return web.Success(c, "Une année a bien été ajoutée à tous les locataires", "", fiber.Map{"tenants": n})
}

// Rooms

type roomProfile struct {
	Room     *Room      `json:"room"`
	Status   RoomStatus `json:"status"`
	Previous []Leasing  `json:"previousLeasings"`
}

func (h *Handler) RoomProfile(c fiber.Ctx) error {
	id, err := web.ParseID(c, "id")
	if err != nil {
		return err
	}
	r, err := h.store.Room(c.UserContext(), id)
	if err != nil {
		return err
	}
	previous, err := h.occ.PreviousLeasingsOfRoom(c.UserContext(), r)
	if err != nil {
		return err
	}
	return web.Data(c, roomProfile{Room: r, Status: r.Status(), Previous: previous})
}

type roomInput struct {
	Lot          uint   `json:"lot" validate:"required,gt=0"`
	Code         string `json:"room" validate:"required,max=6"`
	RentID       uint   `json:"rentId" validate:"required"`
	RenovationID *uint  `json:"renovationId"`
	Observations string `json:"observations"`
	IsActive     *bool  `json:"isActive"`
}

func (in roomInput) apply(r *Room) {
	r.Lot = in.Lot
	r.Code = in.Code
	r.RentID = in.RentID
	r.RenovationID = in.RenovationID
	r.Observations = in.Observations
}

func (h *Handler) CreateRoom(c fiber.Ctx) error {
	var in roomInput
	if err := web.BindJSON(c, &in); err != nil {
		return err
	}
	r := Room{IsActive: true}
	in.apply(&r)
	if in.IsActive != nil {
		r.IsActive = *in.IsActive
	}
	if err := h.store.CreateRoom(c.UserContext(), &r); err != nil {
		return err
	}
	return web.Created(c, "La chambre a bien été créée", RoomPath(r.ID), r)
}

func (h *Handler) EditRoom(c fiber.Ctx) error {
	id, err := web.ParseID(c, "id")
	if err != nil {
		return err
	}
	r, err := h.store.Room(c.UserContext(), id)
	if err != nil {
		return err
	}
	if err := h.edit.Begin(c, lock.For("room", id), roomLocked); err != nil {
		return err
	}
	return web.Data(c, r)
}

func (h *Handler) UpdateRoom(c fiber.Ctx) error {
	id, err := web.ParseID(c, "id")
	if err != nil {
		return err
	}
	var r *Room
	err = h.edit.Save(c, lock.For("room", id), roomLocked, func() error {
		var in roomInput
		if err := web.BindJSON(c, &in); err != nil {
			return err
		}
		if r, err = h.store.Room(c.UserContext(), id); err != nil {
			return err
		}
		in.apply(r)
		r.Rent, r.Renovation, r.CurrentLeasing, r.NextLeasing = nil, nil, nil, nil
		return h.store.SaveRoom(c.UserContext(), r)
	})
	if err != nil {
		return err
	}
	return web.Success(c, "La chambre a bien été modifiée", RoomPath(id), r)
}

func (h *Handler) CancelRoomEdit(c fiber.Ctx) error {
	id, err := web.ParseID(c, "id")
	if err != nil {
		return err
	}
	return h.edit.Cancel(c, lock.For("room", id), RoomPath(id))
}

// ChangeRoomMap replaces the floor plan of a room with the uploaded image.
func (h *Handler) ChangeRoomMap(c fiber.Ctx) error {
	id, err := web.ParseID(c, "id")
	if err != nil {
		return err
	}
	r, err := h.store.Room(c.UserContext(), id)
	if err != nil {
		return err
	}
	fh, err := c.FormFile("map")
	if err != nil {
		return apperr.Validation("Aucun plan envoyé", map[string]string{"map": "required"})
	}
	path, err := h.files.SaveImage(fh, mapsFolder)
	if err != nil {
		return apperr.Validation("Le plan n'est pas une image valide", map[string]string{"map": "image"})
	}
	if err := h.store.SetRoomMap(c.UserContext(), id, path); err != nil {
		_ = h.files.Remove(path)
		return err
	}
	if err := h.files.Remove(r.Map); err != nil {
		h.log.Warn("old room map not removed", zap.String("path", r.Map), zap.Error(err))
	}
	return web.Success(c, "Le plan a bien été modifié", RoomPath(id), fiber.Map{"map": path})
}

func (h *Handler) ToggleRoomActive(c fiber.Ctx) error {
	id, err := web.ParseID(c, "id")
	if err != nil {
		return err
	}
	active, err := h.store.ToggleActive(c.UserContext(), id)
	if err != nil {
		return err
	}
	message := "La chambre a bien été désactivée"
	if active {
		message = "La chambre a bien été activée"
	}
	return web.Success(c, message, RoomPath(id), fiber.Map{"isActive": active})
}

func (h *Handler) InactiveRooms(c fiber.Ctx) error {
	rooms, err := h.store.InactiveRooms(c.UserContext())
	if err != nil {
		return err
	}
	return web.Data(c, rooms)
}

type searchRow struct {
	Room   *Room      `json:"room"`
	Status RoomStatus `json:"status"`
}

func (h *Handler) Search(c fiber.Ctx) error {
	var f SearchFilter
	if err := c.Bind().Query(&f); err != nil {
		return apperr.Validation("filtre invalide", nil)
	}
	rooms, err := h.store.Search(c.UserContext(), f)
	if err != nil {
		return err
	}
	rows := make([]searchRow, len(rooms))
	for i := range rooms {
		rows[i] = searchRow{Room: &rooms[i], Status: rooms[i].Status()}
	}
	return web.Data(c, rows)
}

// Leasings

func (h *Handler) LeasingProfile(c fiber.Ctx) error {
	id, err := web.ParseID(c, "id")
	if err != nil {
		return err
	}
	l, err := h.store.Leasing(c.UserContext(), id)
	if err != nil {
		return err
	}
	return web.Data(c, l)
}

type historyQuery struct {
	Tenant uint `query:"tenant"`
	Room   uint `query:"room"`
}

func (h *Handler) History(c fiber.Ctx) error {
	var q historyQuery
	if err := c.Bind().Query(&q); err != nil {
		return apperr.Validation("filtre invalide", nil)
	}
	var f HistoryFilter
	if q.Tenant != 0 {
		f.TenantID = &q.Tenant
	}
	if q.Room != 0 {
		f.RoomID = &q.Room
	}
	leasings, err := h.occ.History(c.UserContext(), f)
	if err != nil {
		return err
	}
	return web.Data(c, leasings)
}

func (h *Handler) EditLeasing(c fiber.Ctx) error {
	id, err := web.ParseID(c, "id")
	if err != nil {
		return err
	}
	l, err := h.store.Leasing(c.UserContext(), id)
	if err != nil {
		return err
	}
	if err := h.edit.Begin(c, lock.For("leasing", id), leasingLocked); err != nil {
		return err
	}
	return web.Data(c, l)
}

func (h *Handler) UpdateLeasing(c fiber.Ctx) error {
	id, err := web.ParseID(c, "id")
	if err != nil {
		return err
	}
	var l Leasing
	err = h.edit.Save(c, lock.For("leasing", id), leasingLocked, func() error {
		current, err := h.store.Leasing(c.UserContext(), id)
		if err != nil {
			return err
		}
		l = *current
		l.Tenant, l.Room = nil, nil
		if err := web.BindJSON(c, &l); err != nil {
			return err
		}
		l.ID = id
		return h.store.SaveLeasing(c.UserContext(), &l)
	})
	if err != nil {
		return err
	}
	return web.Success(c, "Le dossier a bien été modifié", LeasingPath(id), l)
}

func (h *Handler) CancelLeasingEdit(c fiber.Ctx) error {
	id, err := web.ParseID(c, "id")
	if err != nil {
		return err
	}
	return h.edit.Cancel(c, lock.For("leasing", id), LeasingPath(id))
}

// Occupancy

type dateInput struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}

func (in dateInput) time() time.Time {
	t, _ := time.Parse("2006-01-02", in.Date)
	return t
}

type reserveInput struct {
	ID uint `json:"id" validate:"required"`
}

type moveInDirectInput struct {
	ID   uint   `json:"id" validate:"required"`
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}

func sideParam(c fiber.Ctx) (Side, error) {
	switch s := c.Params("side"); s {
	case "tenant", "room":
		return ParseSide(s), nil
	default:
		return 0, apperr.NotFound("Page introuvable")
	}
}

func outcome(c fiber.Ctx, o *Outcome) error {
	return web.Success(c, o.Message, o.Redirect, o.Leasing)
}

// Reserve books a room for a tenant. From the tenant side the body names the
// room, from the room side it names the tenant.
func (h *Handler) Reserve(c fiber.Ctx) error {
	side, err := sideParam(c)
	if err != nil {
		return err
	}
	id, err := web.ParseID(c, "id")
	if err != nil {
		return err
	}
	var in reserveInput
	if err := web.BindJSON(c, &in); err != nil {
		return err
	}
	tenantID, roomID := pair(side, id, in.ID)
	o, err := h.occ.Reserve(c.UserContext(), side, tenantID, roomID)
	if err != nil {
		return err
	}
	return outcome(c, o)
}

func (h *Handler) MoveInDirect(c fiber.Ctx) error {
	side, err := sideParam(c)
	if err != nil {
		return err
	}
	id, err := web.ParseID(c, "id")
	if err != nil {
		return err
	}
	var in moveInDirectInput
	if err := web.BindJSON(c, &in); err != nil {
		return err
	}
	tenantID, roomID := pair(side, id, in.ID)
	o, err := h.occ.MoveInDirect(c.UserContext(), side, tenantID, roomID, dateInput{Date: in.Date}.time())
	if err != nil {
		return err
	}
	return outcome(c, o)
}

func (h *Handler) MoveIn(c fiber.Ctx) error {
	return h.dated(c, h.occ.MoveIn)
}

func (h *Handler) MoveOut(c fiber.Ctx) error {
	return h.dated(c, h.occ.MoveOut)
}

func (h *Handler) CancelReservation(c fiber.Ctx) error {
	side, err := sideParam(c)
	if err != nil {
		return err
	}
	id, err := web.ParseID(c, "id")
	if err != nil {
		return err
	}
	o, err := h.occ.CancelReservation(c.UserContext(), side, id)
	if err != nil {
		return err
	}
	return outcome(c, o)
}

func (h *Handler) Leave(c fiber.Ctx) error {
	id, err := web.ParseID(c, "id")
	if err != nil {
		return err
	}
	var in dateInput
	if err := web.BindJSON(c, &in); err != nil {
		return err
	}
	o, err := h.occ.Leave(c.UserContext(), id, in.time())
	if err != nil {
		return err
	}
	return outcome(c, o)
}

func (h *Handler) dated(c fiber.Ctx, op func(ctx context.Context, side Side, id uint, at time.Time) (*Outcome, error)) error {
	side, err := sideParam(c)
	if err != nil {
		return err
	}
	id, err := web.ParseID(c, "id")
	if err != nil {
		return err
	}
	var in dateInput
	if err := web.BindJSON(c, &in); err != nil {
		return err
	}
	o, err := op(c.UserContext(), side, id, in.time())
	if err != nil {
		return err
	}
	return outcome(c, o)
}

// pair orders the route id and the body id as (tenant, room).
func pair(side Side, routeID, bodyID uint) (uint, uint) {
	switch side {
	case TenantSide:
		return routeID, bodyID
	case RoomSide:
		return bodyID, routeID
	default:
		panic("housing: unknown side")
	}
}

// Lists

// Autocomplete serves one of the Store choice lists, filtered by the q parameter.
func Autocomplete(list func(ctx context.Context, q string) ([]Choice, error)) fiber.Handler {
	return func(c fiber.Ctx) error {
		choices, err := list(c.UserContext(), c.Query("q"))
		if err != nil {
			return err
		}
		return web.Data(c, choices)
	}
}

func (h *Handler) MailLists(c fiber.Ctx) error {
	lists, err := h.store.MailLists(c.UserContext())
	if err != nil {
		return err
	}
	return web.Data(c, lists)
}

func (h *Handler) CheckConsistency(c fiber.Ctx) error {
	found, err := h.occ.CheckConsistency(c.UserContext())
	if err != nil {
		return err
	}
	return web.Data(c, found)
}

func (h *Handler) ExportCSV(c fiber.Ctx) error {
	rows, err := h.store.ExportRows(c.UserContext())
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="export.csv"`)
	return c.Send(buf.Bytes())
}

func (h *Handler) ExportXLSX(c fiber.Ctx) error {
	rows, err := h.store.ExportRows(c.UserContext())
	if err != nil {
		return err
	}
	data, err := XLSX(rows)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="export.xlsx"`)
	return c.Send(data)
}
