package docgen

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/hidenkeys/aloes/acl"
	"github.com/hidenkeys/aloes/housing"
	"github.com/hidenkeys/aloes/storage"
	"github.com/hidenkeys/aloes/user"
	"github.com/hidenkeys/aloes/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newDocsApp(t *testing.T) (*fiber.App, *housing.Tenant) {
	t.Helper()
	db, err := storage.OpenMemory(append(housing.Models(), &user.User{})...)
	require.NoError(t, err)
	require.NoError(t, db.Create(&user.User{Username: "gestion", FirstName: "Léa", IsStaff: true, IsActive: true}).Error)

	ctx := context.Background()
	store := housing.NewStore(db)
	rent := &housing.Rent{Type: "Standard", Rent: 350, Surface: 18}
	require.NoError(t, db.Create(rent).Error)
	room := &housing.Room{Code: "A101", Lot: 1, RentID: rent.ID, IsActive: true}
	require.NoError(t, store.CreateRoom(ctx, room))
	tn := &housing.Tenant{FirstName: "Jean", Name: "Dupont", Gender: housing.GenderMale}
	require.NoError(t, store.CreateTenant(ctx, tn))
	_, err = housing.NewOccupancy(db).MoveInDirect(ctx, housing.TenantSide, tn.ID, room.ID, time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	dir := t.TempDir()
	writeTemplate(t, dir, "lease_attestation.odt",
		`<text:p>{{.user.FirstName}} atteste que {{.gender}} {{xml .tenant.FirstName}} {{xml .tenant.Name}} occupe {{.leasing.Room.Code}} depuis le {{format_date .leasing.EntryDate}}</text:p>`)
	writeTemplate(t, dir, mailingLabelsModel,
		`{{range .tenantDoubles}}[{{index .First 0}}|{{if .Second}}{{index .Second 0}}{{end}}]{{end}}`)

	h := NewHandler(NewService(store, NewODT(dir)), db, zap.NewNop())
	app := fiber.New(fiber.Config{ErrorHandler: web.ErrorHandler(zap.NewNop())})
	app.Use(func(c fiber.Ctx) error {
		acl.SetPrincipal(c, &acl.Principal{UserID: 1, Username: "gestion", SessionID: "s1", IsStaff: true})
		return c.Next()
	})
	app.Get("/api/v1/docs/:kind/:id", h.Generate)
	app.Post("/api/v1/docs/mailing-labels", h.MailingLabels)
	return app, tn
}

func TestGenerate(t *testing.T) {
	app, tn := newDocsApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/docs/lease-attestation/%d", tn.ID), nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, ContentType, resp.Header.Get(fiber.HeaderContentType))
	assert.Equal(t, "inline; filename=attesationResidenceJeanDupont.odt", resp.Header.Get(fiber.HeaderContentDisposition))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_, entries := readEntries(t, body)
	assert.Equal(t, "<text:p>Léa atteste que M. Jean Dupont occupe A101 depuis le 01/09/2024</text:p>", entries["content.xml"])
}

func TestGenerate_Errors(t *testing.T) {
	app, tn := newDocsApp(t)

	for path, status := range map[string]int{
		fmt.Sprintf("/api/v1/docs/reservation-attestation/%d", tn.ID): http.StatusConflict,
		"/api/v1/docs/passport/1":           http.StatusNotFound,
		"/api/v1/docs/lease-attestation/99": http.StatusNotFound,
		"/api/v1/docs/apl-infos/abc":        http.StatusBadRequest,
	} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err)
		assert.Equal(t, status, resp.StatusCode, path)
	}
}

func TestMailingLabelsHandler(t *testing.T) {
	app, _ := newDocsApp(t)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "locataires.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("Jean Dupont,A101\nClaire Martin,B201\nPaul Durand,G001\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/docs/mailing-labels", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get(fiber.HeaderContentDisposition), MailingLabelsFile)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_, entries := readEntries(t, data)
	assert.Equal(t, "[Jean Dupont|Claire Martin][Paul Durand|]", entries["content.xml"])
}
