package docgen

import (
	"bytes"
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/hidenkeys/aloes/acl"
	"github.com/hidenkeys/aloes/apperr"
	"github.com/hidenkeys/aloes/user"
	"github.com/hidenkeys/aloes/web"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Handler struct {
	svc *Service
	db  *gorm.DB
	log *zap.Logger
}

func NewHandler(svc *Service, db *gorm.DB, log *zap.Logger) *Handler {
	return &Handler{svc: svc, db: db, log: log}
}

func (h *Handler) author(c fiber.Ctx) (*user.User, error) {
	p := acl.FromCtx(c)
	if p == nil {
		return nil, apperr.Permission("connexion requise")
	}
	var u user.User
	err := h.db.WithContext(c.UserContext()).First(&u, p.UserID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// the token outlived the account; sign with what the token carries
		return &user.User{ID: p.UserID, Username: p.Username}, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (h *Handler) send(c fiber.Ctx, doc *Document) error {
	var buf bytes.Buffer
	if err := h.svc.Render(&buf, doc); err != nil {
		return err
	}
	h.log.Info("document generated", zap.String("template", doc.Template), zap.String("file", doc.Filename))
	c.Set(fiber.HeaderContentType, ContentType)
	c.Set(fiber.HeaderContentDisposition, "inline; filename="+doc.Filename)
	return c.Send(buf.Bytes())
}

// Generate answers GET /docs/:kind/:id with the rendered document.
func (h *Handler) Generate(c fiber.Ctx) error {
	kind, err := ParseKind(c.Params("kind"))
	if err != nil {
		return err
	}
	id, err := web.ParseID(c, "id")
	if err != nil {
		return err
	}
	author, err := h.author(c)
	if err != nil {
		return err
	}
	doc, err := h.svc.Build(c.UserContext(), kind, id, author)
	if err != nil {
		return err
	}
	return h.send(c, doc)
}

// MailingLabels renders the label sheet of the uploaded CSV file.
func (h *Handler) MailingLabels(c fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return apperr.Validation("Aucun fichier envoyé", map[string]string{"file": "required"})
	}
	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()

	doc, err := MailingLabels(f)
	if err != nil {
		return err
	}
	return h.send(c, doc)
}
