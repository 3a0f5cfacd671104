package documents

import (
	"mime/multipart"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/hidenkeys/aloes/apperr"
	"github.com/hidenkeys/aloes/lock"
	"github.com/hidenkeys/aloes/web"
	"go.uber.org/zap"
)

const (
	indexPath   = "/api/v1/documents"
	folder      = "documents"
	docLocked   = "Impossible de modifier le document : il est en cours de modification"
	textLocked  = "Impossible de modifier le texte : il est en modification."
	kindDoc     = "document"
	kindHome    = "preferences"
	invalidFile = "Fichier invalide"
)

// Files stores uploaded documents relative to the media directory.
type Files interface {
	SaveFile(fh *multipart.FileHeader, folder string) (string, error)
	Remove(rel string) error
}

type Handler struct {
	store *Store
	edit  *web.Editor
	files Files
	log   *zap.Logger
}

func NewHandler(store *Store, edit *web.Editor, files Files, log *zap.Logger) *Handler {
	return &Handler{store: store, edit: edit, files: files, log: log}
}

type homePage struct {
	HomeText        string     `json:"homeText"`
	EnglishHomeText string     `json:"englishHomeText"`
	Documents       []Document `json:"documents"`
}

// Home is the public landing page: the home texts and the published documents.
func (h *Handler) Home(c fiber.Ctx) error {
	prefs, err := h.store.Preferences(c.UserContext())
	if err != nil {
		return err
	}
	docs, err := h.store.Published(c.UserContext())
	if err != nil {
		return err
	}
	return web.Data(c, homePage{
		HomeText:        prefs.HomeText,
		EnglishHomeText: prefs.EnglishHomeText,
		Documents:       docs,
	})
}

func (h *Handler) List(c fiber.Ctx) error {
	docs, err := h.store.List(c.UserContext())
	if err != nil {
		return err
	}
	return web.Data(c, docs)
}

func (h *Handler) remove(rel string) {
	if err := h.files.Remove(rel); err != nil {
		h.log.Warn("document file not removed", zap.String("path", rel), zap.Error(err))
	}
}

// fill copies the text fields of the multipart form onto d.
func fill(c fiber.Ctx, d *Document) error {
	d.Name = c.FormValue("name")
	d.EnglishName = c.FormValue("englishName")
	d.Description = c.FormValue("description")
	d.EnglishDescription = c.FormValue("englishDescription")
	if raw := c.FormValue("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return apperr.Validation("données invalides", map[string]string{"active": "boolean"})
		}
		d.Active = active
	}
	return web.Validate(d)
}

// upload saves the file sent under field, if any, and returns its path.
func (h *Handler) upload(c fiber.Ctx, field string) (string, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return "", nil
	}
	path, err := h.files.SaveFile(fh, folder)
	if err != nil {
		return "", apperr.Validation(invalidFile, map[string]string{field: "file"})
	}
	return path, nil
}

func (h *Handler) Create(c fiber.Ctx) error {
	d := &Document{Active: true}
	if err := fill(c, d); err != nil {
		return err
	}

	file, err := h.upload(c, "document")
	if err != nil {
		return err
	}
	if file == "" {
		return apperr.Validation("Aucun fichier envoyé", map[string]string{"document": "required"})
	}
	english, err := h.upload(c, "englishDocument")
	if err != nil {
		h.remove(file)
		return err
	}
	d.File, d.EnglishFile = file, english

	if err := h.store.Create(c.UserContext(), d); err != nil {
		h.remove(file)
		h.remove(english)
		return err
	}
	return web.Created(c, "Le document a bien été créé", indexPath, d)
}

func (h *Handler) Edit(c fiber.Ctx) error {
	id, err := web.ParseID(c, "id")
	if err != nil {
		return err
	}
	d, err := h.store.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	if err := h.edit.Begin(c, lock.For(kindDoc, id), docLocked); err != nil {
		return err
	}
	return web.Data(c, d)
}

// Update saves the form; a newly sent file replaces the previous one on disk.
func (h *Handler) Update(c fiber.Ctx) error {
	id, err := web.ParseID(c, "id")
	if err != nil {
		return err
	}
	var d *Document
	err = h.edit.Save(c, lock.For(kindDoc, id), docLocked, func() error {
		if d, err = h.store.Get(c.UserContext(), id); err != nil {
			return err
		}
		if err := fill(c, d); err != nil {
			return err
		}

		var replaced []string
		for _, f := range []struct {
			field string
			dst   *string
		}{{"document", &d.File}, {"englishDocument", &d.EnglishFile}} {
			path, err := h.upload(c, f.field)
			if err != nil {
				return err
			}
			if path != "" {
				replaced = append(replaced, *f.dst)
				*f.dst = path
			}
		}

		if err := h.store.Save(c.UserContext(), d); err != nil {
			return err
		}
		for _, old := range replaced {
			h.remove(old)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return web.Success(c, "Le document a bien été modifié", indexPath, d)
}

func (h *Handler) CancelEdit(c fiber.Ctx) error {
	id, err := web.ParseID(c, "id")
	if err != nil {
		return err
	}
	return h.edit.Cancel(c, lock.For(kindDoc, id), indexPath)
}

func (h *Handler) Delete(c fiber.Ctx) error {
	id, err := web.ParseID(c, "id")
	if err != nil {
		return err
	}
	d, err := h.store.Delete(c.UserContext(), id)
	if err != nil {
		return err
	}
	h.remove(d.File)
	h.remove(d.EnglishFile)
	return web.Success(c, "Le document a bien été supprimé", indexPath, nil)
}

func (h *Handler) ToggleActive(c fiber.Ctx) error {
	id, err := web.ParseID(c, "id")
	if err != nil {
		return err
	}
	active, err := h.store.ToggleActive(c.UserContext(), id)
	if err != nil {
		return err
	}
	return web.Success(c, "", indexPath, fiber.Map{"active": active})
}

// Home text

func (h *Handler) EditHomeText(c fiber.Ctx) error {
	prefs, err := h.store.Preferences(c.UserContext())
	if err != nil {
		return err
	}
	if err := h.edit.Begin(c, lock.For(kindHome, prefs.ID), textLocked); err != nil {
		return err
	}
	return web.Data(c, prefs)
}

type homeTextRequest struct {
	HomeText        string `json:"homeText"`
	EnglishHomeText string `json:"englishHomeText"`
}

func (h *Handler) UpdateHomeText(c fiber.Ctx) error {
	prefs, err := h.store.Preferences(c.UserContext())
	if err != nil {
		return err
	}
	err = h.edit.Save(c, lock.For(kindHome, prefs.ID), textLocked, func() error {
		var req homeTextRequest
		if err := web.BindJSON(c, &req); err != nil {
			return err
		}
		prefs.HomeText, prefs.EnglishHomeText = req.HomeText, req.EnglishHomeText
		return h.store.SavePreferences(c.UserContext(), prefs)
	})
	if err != nil {
		return err
	}
	return web.Success(c, "Le texte d'accueil a bien été modifié", indexPath, prefs)
}

func (h *Handler) CancelHomeTextEdit(c fiber.Ctx) error {
	prefs, err := h.store.Preferences(c.UserContext())
	if err != nil {
		return err
	}
	return h.edit.Cancel(c, lock.For(kindHome, prefs.ID), indexPath)
}
