package documents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/hidenkeys/aloes/acl"
	"github.com/hidenkeys/aloes/lock"
	"github.com/hidenkeys/aloes/storage"
	"github.com/hidenkeys/aloes/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memFiles struct {
	saved   []string
	removed []string
}

func (m *memFiles) SaveFile(fh *multipart.FileHeader, folder string) (string, error) {
	path := folder + "/" + fh.Filename
	m.saved = append(m.saved, path)
	return path, nil
}

func (m *memFiles) Remove(rel string) error {
	if rel != "" {
		m.removed = append(m.removed, rel)
	}
	return nil
}

const sessionHeader = "X-Test-Session"

type api struct {
	store *Store
	app   *fiber.App
	files *memFiles
}

func newAPI(t *testing.T) *api {
	t.Helper()
	models := append([]any{&lock.EditLock{}}, Models...)
	db, err := storage.OpenMemory(models...)
	require.NoError(t, err)

	store := NewStore(db)
	files := &memFiles{}
	h := NewHandler(store, web.NewEditor(lock.NewDBManager(db, time.Hour)), files, zap.NewNop())

	app := fiber.New(fiber.Config{ErrorHandler: web.ErrorHandler(zap.NewNop())})
	app.Use(func(c fiber.Ctx) error {
		if s := c.Get(sessionHeader); s != "" {
			acl.SetPrincipal(c, &acl.Principal{UserID: 1, Username: "admin", SessionID: s, IsStaff: true})
		}
		return c.Next()
	})
	app.Get("/", h.Home)

	r := app.Group("/api/v1/documents", acl.Require(acl.Staff))
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

	return &api{store: store, app: app, files: files}
}

type form struct {
	values map[string]string
	files  map[string]string
}

func (a *api) send(t *testing.T, method, path, session string, f *form, body any) (*http.Response, web.Flash) {
	t.Helper()
	var req *http.Request
	switch {
	case f != nil:
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		for k, v := range f.values {
			require.NoError(t, w.WriteField(k, v))
		}
		for field, name := range f.files {
			part, err := w.CreateFormFile(field, name)
			require.NoError(t, err)
			_, err = part.Write([]byte("%PDF"))
			require.NoError(t, err)
		}
		require.NoError(t, w.Close())
		req = httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", w.FormDataContentType())
	case body != nil:
		data, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, bytes.NewReader(data))
		req.Header.Set("Content-Type", "application/json")
	default:
		req = httptest.NewRequest(method, path, nil)
	}
	if session != "" {
		req.Header.Set(sessionHeader, session)
	}

	resp, err := a.app.Test(req)
	require.NoError(t, err)
	var flash web.Flash
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&flash))
	}
	return resp, flash
}

func (a *api) create(t *testing.T, name string) *Document {
	t.Helper()
	resp, _ := a.send(t, http.MethodPost, "/api/v1/documents", "s1", &form{
		values: map[string]string{"name": name},
		files:  map[string]string{"document": name + ".pdf"},
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	docs, err := a.store.List(context.Background())
	require.NoError(t, err)
	for i := range docs {
		if docs[i].Name == name {
			return &docs[i]
		}
	}
	t.Fatalf("document %s not created", name)
	return nil
}

func TestCreate(t *testing.T) {
	a := newAPI(t)
	d := a.create(t, "Reglement")

	assert.True(t, d.Active)
	assert.Equal(t, "documents/Reglement.pdf", d.File)
	assert.Empty(t, d.EnglishFile)

	resp, flash := a.send(t, http.MethodPost, "/api/v1/documents", "s1", &form{
		values: map[string]string{"name": "Sans fichier"},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, map[string]string{"document": "required"}, flash.Fields)

	resp, flash = a.send(t, http.MethodPost, "/api/v1/documents", "s1", &form{
		files: map[string]string{"document": "x.pdf"},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, map[string]string{"name": "required"}, flash.Fields)
}

func TestUpdate_ReplacesFileUnderLock(t *testing.T) {
	a := newAPI(t)
	d := a.create(t, "Reglement")
	path := fmt.Sprintf("/api/v1/documents/%d", d.ID)
	update := &form{
		values: map[string]string{"name": "Règlement intérieur", "englishName": "Internal rules"},
		files:  map[string]string{"document": "v2.pdf"},
	}

	resp, _ := a.send(t, http.MethodPut, path, "s1", update, nil)
	assert.Equal(t, http.StatusLocked, resp.StatusCode)

	resp, _ = a.send(t, http.MethodGet, path+"/edit", "s1", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, flash := a.send(t, http.MethodGet, path+"/edit", "s2", nil, nil)
	assert.Equal(t, http.StatusLocked, resp.StatusCode)
	assert.Equal(t, docLocked, flash.Message)

	resp, _ = a.send(t, http.MethodPut, path, "s1", update, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got, err := a.store.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, "Règlement intérieur", got.Name)
	assert.Equal(t, "documents/v2.pdf", got.File)
	assert.Equal(t, []string{"documents/Reglement.pdf"}, a.files.removed)

	resp, _ = a.send(t, http.MethodGet, path+"/edit", "s2", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestToggleActiveAndHome(t *testing.T) {
	a := newAPI(t)
	d := a.create(t, "Reglement")
	a.create(t, "Tarifs")

	resp, flash := a.send(t, http.MethodPost, fmt.Sprintf("/api/v1/documents/%d/toggle-active", d.ID), "s1", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"active": false}, flash.Data)

	resp, flash = a.send(t, http.MethodGet, "/", "", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	home := flash.Data.(map[string]any)
	docs := home["documents"].([]any)
	require.Len(t, docs, 1)
	assert.Equal(t, "Tarifs", docs[0].(map[string]any)["name"])
}

func TestDelete_RemovesFiles(t *testing.T) {
	a := newAPI(t)
	d := a.create(t, "Reglement")

	resp, _ := a.send(t, http.MethodDelete, fmt.Sprintf("/api/v1/documents/%d", d.ID), "s1", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"documents/Reglement.pdf"}, a.files.removed)

	resp, _ = a.send(t, http.MethodDelete, fmt.Sprintf("/api/v1/documents/%d", d.ID), "s1", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHomeText(t *testing.T) {
	a := newAPI(t)
	req := homeTextRequest{HomeText: "Bienvenue aux Aloès", EnglishHomeText: "Welcome"}

	resp, _ := a.send(t, http.MethodGet, "/api/v1/documents/home-text/edit", "s1", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, flash := a.send(t, http.MethodPut, "/api/v1/documents/home-text", "s2", nil, req)
	assert.Equal(t, http.StatusLocked, resp.StatusCode)
	assert.Equal(t, textLocked, flash.Message)

	resp, flash = a.send(t, http.MethodPut, "/api/v1/documents/home-text", "s1", nil, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Le texte d'accueil a bien été modifié", flash.Message)

	prefs, err := a.store.Preferences(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bienvenue aux Aloès", prefs.HomeText)

	_, flash = a.send(t, http.MethodGet, "/", "", nil, nil)
	assert.Equal(t, "Welcome", flash.Data.(map[string]any)["englishHomeText"])
}
