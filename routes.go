package main

import (
	"github.com/gofiber/fiber/v3"
	"github.com/hidenkeys/aloes/acl"
	"github.com/hidenkeys/aloes/backup"
	"github.com/hidenkeys/aloes/docgen"
	"github.com/hidenkeys/aloes/documents"
	"github.com/hidenkeys/aloes/housing"
	"github.com/hidenkeys/aloes/user"
)

type handlers struct {
	housing   *housing.Handler
	documents *documents.Handler
	docs      *docgen.Handler
	users     *user.Handler
	backup    *backup.Handler
}

func registerRoutes(app *fiber.App, h handlers) {
	app.Get("/", h.documents.Home)

	api := app.Group("/api/v1")
	authRoutes(api, h.users)

	// Guards are always group middleware: fiber runs route-level
	// middleware after the handler, which never calls Next.
	staff := acl.Require(acl.Staff)
	tenantRoutes(api.Group("/tenants", staff), h.housing)
	roomRoutes(api.Group("/rooms", staff), h.housing)
	leasingRoutes(api.Group("/leasings", staff), h.housing)
	occupancyRoutes(api.Group("/occupancy", staff), h.housing)
	autocompleteRoutes(api.Group("/autocomplete", staff), h.housing)
	catalogRoutes(api, staff, h.housing)
	documentRoutes(api.Group("/documents", staff), h.documents)
	docgenRoutes(api.Group("/docs", staff), h.docs)

	export := api.Group("/export", staff)
	export.Get("/csv", h.housing.ExportCSV)
	export.Get("/xlsx", h.housing.ExportXLSX)
	api.Group("/mail-lists", staff).Get("", h.housing.MailLists)
	api.Group("/check", staff).Get("", h.housing.CheckConsistency)
	api.Group("/backup", staff).Post("", h.backup.Backup)

	accountRoutes(api.Group("/accounts", acl.Require(acl.Superuser)), h.users)
}

func authRoutes(r fiber.Router, h *user.Handler) {
	r.Post("/login", h.Login)
	signedIn := acl.Require(acl.Authenticated)
	r.Group("/logout", signedIn).Post("", h.Logout)

	profile := r.Group("/profile", signedIn)
	profile.Get("", h.Profile)
	profile.Put("/password", h.ChangePassword)
}

func tenantRoutes(r fiber.Router, h *housing.Handler) {
	r.Post("", h.CreateTenant)
	r.Post("/import", h.ImportTenant)
	r.Get("/homeless", h.HomelessTenants)
	r.Post("/add-one-year", h.AddOneYear)
	r.Get("/:id", h.TenantProfile)
	r.Get("/:id/edit", h.EditTenant)
	r.Put("/:id", h.UpdateTenant)
	r.Post("/:id/edit/cancel", h.CancelTenantEdit)
	r.Post("/:id/leave", h.Leave)
}

func roomRoutes(r fiber.Router, h *housing.Handler) {
	r.Get("", h.Search)
	r.Post("", h.CreateRoom)
	r.Get("/inactive", h.InactiveRooms)
	r.Get("/:id", h.RoomProfile)
	r.Get("/:id/edit", h.EditRoom)
	r.Put("/:id", h.UpdateRoom)
	r.Post("/:id/edit/cancel", h.CancelRoomEdit)
	r.Put("/:id/map", h.ChangeRoomMap)
	r.Post("/:id/toggle-active", h.ToggleRoomActive)
}

func leasingRoutes(r fiber.Router, h *housing.Handler) {
	r.Get("", h.History)
	r.Get("/:id", h.LeasingProfile)
	r.Get("/:id/edit", h.EditLeasing)
	r.Put("/:id", h.UpdateLeasing)
	r.Post("/:id/edit/cancel", h.CancelLeasingEdit)
}

// occupancyRoutes take the side the operation is started from, tenant or room.
func occupancyRoutes(r fiber.Router, h *housing.Handler) {
	r.Post("/:side/:id/reserve", h.Reserve)
	r.Post("/:side/:id/move-in-direct", h.MoveInDirect)
	r.Post("/:side/:id/move-in", h.MoveIn)
	r.Post("/:side/:id/move-out", h.MoveOut)
	r.Post("/:side/:id/cancel", h.CancelReservation)
}

func autocompleteRoutes(r fiber.Router, h *housing.Handler) {
	store := h.Store()
	r.Get("/empty-rooms", housing.Autocomplete(store.EmptyRooms))
	r.Get("/unreserved-rooms", housing.Autocomplete(store.UnreservedRooms))
	r.Get("/tenants-without-reservation", housing.Autocomplete(store.TenantsWithoutReservation))
	r.Get("/tenants-without-room", housing.Autocomplete(store.TenantsWithoutRoom))
}

type crud interface {
	List(fiber.Ctx) error
	Get(fiber.Ctx) error
	Create(fiber.Ctx) error
	Edit(fiber.Ctx) error
	Update(fiber.Ctx) error
	CancelEdit(fiber.Ctx) error
	Delete(fiber.Ctx) error
}

func crudRoutes(r fiber.Router, h crud) {
	r.Get("", h.List)
	r.Post("", h.Create)
	r.Get("/:id", h.Get)
	r.Get("/:id/edit", h.Edit)
	r.Put("/:id", h.Update)
	r.Post("/:id/edit/cancel", h.CancelEdit)
	r.Delete("/:id", h.Delete)
}

func catalogRoutes(r fiber.Router, guard fiber.Handler, h *housing.Handler) {
	crudRoutes(r.Group("/schools", guard), h.Schools)
	crudRoutes(r.Group("/rents", guard), h.Rents)
	crudRoutes(r.Group("/renovations", guard), h.Renovations)

	maps := r.Group("/maps", guard)
	maps.Get("", h.Maps.List)
	maps.Post("", h.CreateMap)
	maps.Get("/:id", h.Maps.Get)
	maps.Get("/:id/edit", h.Maps.Edit)
	maps.Put("/:id", h.UpdateMap)
	maps.Post("/:id/edit/cancel", h.Maps.CancelEdit)
	maps.Delete("/:id", h.DeleteMap)
}

func documentRoutes(r fiber.Router, h *documents.Handler) {
	r.Get("", h.List)
	r.Post("", h.Create)
	r.Get("/home-text/edit", h.EditHomeText)
	r.Put("/home-text", h.UpdateHomeText)
	r.Post("/home-text/edit/cancel", h.CancelHomeTextEdit)
	r.Get("/:id/edit", h.Edit)
	r.Put("/:id", h.Update)
	r.Post("/:id/edit/cancel", h.CancelEdit)
	r.Delete("/:id", h.Delete)
	r.Post("/:id/toggle-active", h.ToggleActive)
}

func docgenRoutes(r fiber.Router, h *docgen.Handler) {
	r.Post("/mailing-labels", h.MailingLabels)
	r.Get("/:kind/:id", h.Generate)
}

func accountRoutes(r fiber.Router, h *user.Handler) {
	r.Get("", h.ListAccounts)
	r.Post("", h.CreateAccount)
	r.Put("/:id", h.UpdateAccount)
	r.Delete("/:id", h.DeleteAccount)
	r.Post("/:id/reset-password", h.ResetPassword)
	r.Post("/:id/superuser", h.GrantSuperuser)
}
