package backup

import (
	"path/filepath"

	"github.com/gofiber/fiber/v3"
	"github.com/hidenkeys/aloes/web"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Backup runs a backup on demand.
func (h *Handler) Backup(c fiber.Ctx) error {
	path, err := h.svc.Run(c.UserContext())
	if err != nil {
		return err
	}
	return web.Success(c, "La base de données a bien été sauvegardée.", c.Get(fiber.HeaderReferer, "/"),
		fiber.Map{"file": filepath.Base(path)})
}
