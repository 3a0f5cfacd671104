package housing

import (
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/hidenkeys/aloes/apperr"
	"github.com/hidenkeys/aloes/lock"
	"github.com/hidenkeys/aloes/web"
	"go.uber.org/zap"
)

type entity[T any] interface {
	*T
	GetID() uint
	SetID(uint)
}

// CatalogHandler serves the lock-protected CRUD of one catalog.
type CatalogHandler[T any, P entity[T]] struct {
	cat     *Catalog[T]
	edit    *web.Editor
	kind    string
	path    string
	locked  string
	created string
	saved   string
	deleted string
	prepare func(*T)
}

func (h *CatalogHandler[T, P]) key(id uint) lock.Key { return lock.For(h.kind, id) }

func (h *CatalogHandler[T, P]) item(id uint) string { return fmt.Sprintf("%s/%d", h.path, id) }

func (h *CatalogHandler[T, P]) List(c fiber.Ctx) error {
	rows, err := h.cat.List(c.UserContext())
	if err != nil {
		return err
	}
	return web.Data(c, rows)
}

func (h *CatalogHandler[T, P]) Get(c fiber.Ctx) error {
	id, err := web.ParseID(c, "id")
	if err != nil {
		return err
	}
	row, err := h.cat.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return web.Data(c, row)
}

func (h *CatalogHandler[T, P]) Create(c fiber.Ctx) error {
	var row T
	if err := web.BindJSON(c, &row); err != nil {
		return err
	}
	if h.prepare != nil {
		h.prepare(&row)
	}
	P(&row).SetID(0)
	if err := h.cat.Create(c.UserContext(), &row); err != nil {
		return err
	}
	return web.Created(c, h.created, h.path, row)
}

func (h *CatalogHandler[T, P]) Edit(c fiber.Ctx) error {
	id, err := web.ParseID(c, "id")
	if err != nil {
		return err
	}
	row, err := h.cat.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	if err := h.edit.Begin(c, h.key(id), h.locked); err != nil {
		return err
	}
	return web.Data(c, row)
}

func (h *CatalogHandler[T, P]) Update(c fiber.Ctx) error {
	id, err := web.ParseID(c, "id")
	if err != nil {
		return err
	}
	var row *T
	err = h.edit.Save(c, h.key(id), h.locked, func() error {
		if row, err = h.cat.Get(c.UserContext(), id); err != nil {
			return err
		}
		if err := web.BindJSON(c, row); err != nil {
			return err
		}
		P(row).SetID(id)
		return h.cat.Save(c.UserContext(), row)
	})
	if err != nil {
		return err
	}
	return web.Success(c, h.saved, h.path, row)
}

func (h *CatalogHandler[T, P]) CancelEdit(c fiber.Ctx) error {
	id, err := web.ParseID(c, "id")
	if err != nil {
		return err
	}
	return h.edit.Cancel(c, h.key(id), h.item(id))
}

func (h *CatalogHandler[T, P]) Delete(c fiber.Ctx) error {
	id, err := web.ParseID(c, "id")
	if err != nil {
		return err
	}
	if _, err := h.cat.Delete(c.UserContext(), id); err != nil {
		return err
	}
	return web.Success(c, h.deleted, h.path, nil)
}

// Maps carry an image, so they are created and saved from multipart forms.

func (h *Handler) CreateMap(c fiber.Ctx) error {
	m := Map{Name: c.FormValue("name")}
	if err := web.Validate(&m); err != nil {
		return err
	}
	fh, err := c.FormFile("map")
	if err != nil {
		return apperr.Validation("Aucun plan envoyé", map[string]string{"map": "required"})
	}
	if m.Image, err = h.files.SaveImage(fh, mapsFolder); err != nil {
		return apperr.Validation("Le plan n'est pas une image valide", map[string]string{"map": "image"})
	}
	if err := h.Maps.cat.Create(c.UserContext(), &m); err != nil {
		_ = h.files.Remove(m.Image)
		return err
	}
	return web.Created(c, h.Maps.created, h.Maps.path, m)
}

// UpdateMap renames a map and, when a new image is sent, replaces the old file.
func (h *Handler) UpdateMap(c fiber.Ctx) error {
	id, err := web.ParseID(c, "id")
	if err != nil {
		return err
	}
	var m *Map
	err = h.edit.Save(c, h.Maps.key(id), h.Maps.locked, func() error {
		if m, err = h.Maps.cat.Get(c.UserContext(), id); err != nil {
			return err
		}
		m.Name = c.FormValue("name")
		if err := web.Validate(m); err != nil {
			return err
		}

		old := ""
		if fh, err := c.FormFile("map"); err == nil {
			path, err := h.files.SaveImage(fh, mapsFolder)
			if err != nil {
				return apperr.Validation("Le plan n'est pas une image valide", map[string]string{"map": "image"})
			}
			old, m.Image = m.Image, path
		}
		if err := h.Maps.cat.Save(c.UserContext(), m); err != nil {
			return err
		}
		if err := h.files.Remove(old); err != nil {
			h.log.Warn("old map not removed", zap.String("path", old), zap.Error(err))
		}
		return nil
	})
	if err != nil {
		return err
	}
	return web.Success(c, h.Maps.saved, h.Maps.path, m)
}

func (h *Handler) DeleteMap(c fiber.Ctx) error {
	id, err := web.ParseID(c, "id")
	if err != nil {
		return err
	}
	m, err := h.Maps.cat.Delete(c.UserContext(), id)
	if err != nil {
		return err
	}
	if err := h.files.Remove(m.Image); err != nil {
		h.log.Warn("map file not removed", zap.String("path", m.Image), zap.Error(err))
	}
	return web.Success(c, h.Maps.deleted, h.Maps.path, nil)
}
