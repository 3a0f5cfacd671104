package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/hidenkeys/aloes/acl"
	"github.com/hidenkeys/aloes/apperr"
	"github.com/hidenkeys/aloes/lock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func decode(t *testing.T, resp *http.Response) Flash {
	t.Helper()
	var f Flash
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&f))
	return f
}

func TestStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperr.NotFound("x"), http.StatusNotFound},
		{fmt.Errorf("load: %w", gorm.ErrRecordNotFound), http.StatusNotFound},
		{apperr.AlreadyLocked("x"), http.StatusLocked},
		{apperr.Conflict("x"), http.StatusConflict},
		{apperr.Validation("x", nil), http.StatusBadRequest},
		{apperr.Permission("x"), http.StatusForbidden},
		{fiber.ErrMethodNotAllowed, http.StatusMethodNotAllowed},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Status(tt.err), tt.err.Error())
	}
}

type createRoom struct {
	Lot  uint   `json:"lot" validate:"required,gt=0"`
	Room string `json:"room" validate:"required,max=6"`
}

func newTestApp() *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.NewNop())})
	app.Use(RequestLogger(zap.NewNop()))
	app.Post("/rooms", func(c fiber.Ctx) error {
		req := new(createRoom)
		if err := BindJSON(c, req); err != nil {
			return err
		}
		return Created(c, "La chambre a bien été créée", "/rooms/1", req)
	})
	app.Get("/rooms/:id", func(c fiber.Ctx) error {
		id, err := ParseID(c, "id")
		if err != nil {
			return err
		}
		if id == 500 {
			return errors.New("secret failure")
		}
		return apperr.NotFound("chambre %d introuvable", id)
	})
	return app
}

func TestErrorHandler_Envelope(t *testing.T) {
	app := newTestApp()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/rooms/3", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderXRequestID))
	f := decode(t, resp)
	assert.Equal(t, LevelError, f.Level)
	assert.Equal(t, "chambre 3 introuvable", f.Message)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/rooms/500", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.NotContains(t, decode(t, resp).Message, "secret")

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/rooms/abc", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBindJSON_ReportsFields(t *testing.T) {
	app := newTestApp()

	req := httptest.NewRequest(http.MethodPost, "/rooms", strings.NewReader(`{"lot":0,"room":"A1234567"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	f := decode(t, resp)
	assert.Equal(t, map[string]string{"lot": "required", "room": "max"}, f.Fields)

	req = httptest.NewRequest(http.MethodPost, "/rooms", strings.NewReader(`{"lot":101,"room":"A101"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	f = decode(t, resp)
	assert.Equal(t, "/rooms/1", f.Redirect)
}

// memLocks is a single-process lock.Manager for exercising the edit flow.
type memLocks map[string]string

func (m memLocks) Acquire(_ context.Context, key lock.Key, holder string) error {
	if h, ok := m[key.String()]; ok && h != holder {
		return apperr.AlreadyLocked("locked")
	}
	// header values are only valid during the request
	m[key.String()] = strings.Clone(holder)
	return nil
}

func (m memLocks) Release(_ context.Context, key lock.Key, holder string) error {
	if m[key.String()] == holder {
		delete(m, key.String())
	}
	return nil
}

func (m memLocks) IsHeldBy(_ context.Context, key lock.Key, holder string) (bool, error) {
	return m[key.String()] == holder, nil
}

func TestEditor_Flow(t *testing.T) {
	locks := memLocks{}
	editor := NewEditor(locks)
	key := lock.For("school", 1)

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.NewNop())})
	app.Use(func(c fiber.Ctx) error {
		acl.SetPrincipal(c, &acl.Principal{UserID: 1, IsStaff: true, SessionID: c.Get("X-Session")})
		return c.Next()
	})
	app.Get("/schools/1/edit", func(c fiber.Ctx) error {
		if err := editor.Begin(c, key, "Impossible de modifier l'école : elle est en cours de modification"); err != nil {
			return err
		}
		return Data(c, nil)
	})
	app.Put("/schools/1", func(c fiber.Ctx) error {
		err := editor.Save(c, key, "Impossible de modifier l'école : elle est en cours de modification", func() error {
			return nil
		})
		if err != nil {
			return err
		}
		return Success(c, "L'école a bien été modifiée", "/schools", nil)
	})
	app.Post("/schools/1/edit/cancel", func(c fiber.Ctx) error {
		return editor.Cancel(c, key, "/schools")
	})

	do := func(method, path, session string) *http.Response {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("X-Session", session)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp
	}

	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/schools/1/edit", "a").StatusCode)

	resp := do(http.MethodGet, "/schools/1/edit", "b")
	assert.Equal(t, http.StatusLocked, resp.StatusCode)
	assert.Contains(t, decode(t, resp).Message, "en cours de modification")

	assert.Equal(t, http.StatusLocked, do(http.MethodPut, "/schools/1", "b").StatusCode)
	assert.Equal(t, http.StatusOK, do(http.MethodPut, "/schools/1", "a").StatusCode)
	assert.Empty(t, locks)

	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/schools/1/edit", "b").StatusCode)
	assert.Equal(t, http.StatusOK, do(http.MethodPost, "/schools/1/edit/cancel", "b").StatusCode)
	assert.Empty(t, locks)
}

func TestEditor_SaveFailure(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		keepLock bool
	}{
		{"validation keeps the lock", apperr.Validation("Nom requis", map[string]string{"name": "required"}), http.StatusBadRequest, true},
		{"database error releases it", errors.New("disk I/O error"), http.StatusInternalServerError, false},
		{"missing row releases it", apperr.NotFound("École introuvable"), http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			locks := memLocks{}
			editor := NewEditor(locks)
			key := lock.For("school", 1)
			require.NoError(t, locks.Acquire(context.Background(), key, "a"))

			app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.NewNop())})
			app.Use(func(c fiber.Ctx) error {
				acl.SetPrincipal(c, &acl.Principal{UserID: 1, IsStaff: true, SessionID: "a"})
				return c.Next()
			})
			app.Put("/schools/1", func(c fiber.Ctx) error {
				return editor.Save(c, key, "verrou", func() error { return tt.err })
			})

			resp, err := app.Test(httptest.NewRequest(http.MethodPut, "/schools/1", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			_, held := locks[key.String()]
			assert.Equal(t, tt.keepLock, held)
		})
	}
}
