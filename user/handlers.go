package user

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/hidenkeys/aloes/acl"
	"github.com/hidenkeys/aloes/apperr"
	"github.com/hidenkeys/aloes/jwtware"
	"github.com/hidenkeys/aloes/web"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	accountsPath = "/api/v1/accounts"
	homePath     = "/"
)

var errBadCredentials = apperr.Validation("Nom d'utilisateur et/ou mot de passe incorrect", nil)

// Sessions issues the signed session token of a signed-in user.
type Sessions interface {
	Issue(p acl.Principal) (string, time.Time, error)
}

type Handler struct {
	db       *gorm.DB
	sessions Sessions
	log      *zap.Logger
}

func NewHandler(db *gorm.DB, sessions Sessions, log *zap.Logger) *Handler {
	return &Handler{db: db, sessions: sessions, log: log}
}

// Authenticate returns the active user matching the credentials.
func Authenticate(ctx context.Context, db *gorm.DB, username, password string) (*User, error) {
	var u User
	err := db.WithContext(ctx).Where("username = ? AND is_active = ?", username, true).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errBadCredentials
	}
	if err != nil {
		return nil, err
	}
	if !u.CheckPassword(password) {
		return nil, errBadCredentials
	}
	return &u, nil
}

// CreateSuperuser adds an administrator account, used by the createsuperuser command.
func CreateSuperuser(ctx context.Context, db *gorm.DB, username, email, password string) (*User, error) {
	u := &User{Username: username, Email: email, Password: password, IsStaff: true, IsSuperuser: true, IsActive: true}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

func setPassword(ctx context.Context, db *gorm.DB, id uint, password string) error {
	hashed, err := generateHashPassword(password)
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Update("password", hashed).Error
}

func (h *Handler) load(ctx context.Context, id uint) (*User, error) {
	var u User
	if err := h.db.WithContext(ctx).First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Compte introuvable")
		}
		return nil, err
	}
	return &u, nil
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      *User     `json:"user"`
}

func (h *Handler) Login(c fiber.Ctx) error {
	var req loginRequest
	if err := web.BindJSON(c, &req); err != nil {
		return err
	}

	u, err := Authenticate(c.UserContext(), h.db, req.Username, req.Password)
	if err != nil {
		return err
	}

	token, exp, err := h.sessions.Issue(u.Principal(""))
	if err != nil {
		return err
	}
	now := time.Now()
	if err := h.db.WithContext(c.UserContext()).Model(u).Update("last_login", now).Error; err != nil {
		return err
	}
	u.LastLogin = &now

	jwtware.SetCookie(c, token, exp)
	h.log.Info("user logged in", zap.String("username", u.Username))
	return web.Success(c, "Bienvenue "+u.Username, c.Query("next", homePath), loginResponse{
		Token:     token,
		ExpiresAt: exp,
		User:      u,
	})
}

func (h *Handler) Logout(c fiber.Ctx) error {
	jwtware.ClearCookie(c)
	return web.Success(c, "Vous avez bien été déconnecté", homePath, nil)
}

func (h *Handler) Profile(c fiber.Ctx) error {
	u, err := h.load(c.UserContext(), acl.FromCtx(c).UserID)
	if err != nil {
		return err
	}
	return web.Data(c, u)
}

type changePasswordRequest struct {
	CurrentPassword    string `json:"currentPassword" validate:"required"`
	NextPassword       string `json:"nextPassword" validate:"required"`
	NextPasswordRepeat string `json:"nextPasswordRepeat" validate:"required"`
}

// ChangePassword sets a new password for the signed-in user, then signs them out.
func (h *Handler) ChangePassword(c fiber.Ctx) error {
	var req changePasswordRequest
	if err := web.BindJSON(c, &req); err != nil {
		return err
	}
	if req.NextPassword != req.NextPasswordRepeat {
		return apperr.Validation("Les mots de passes ne correspondent pas",
			map[string]string{"nextPasswordRepeat": "eqfield"})
	}

	u, err := h.load(c.UserContext(), acl.FromCtx(c).UserID)
	if err != nil {
		return err
	}
	if !u.CheckPassword(req.CurrentPassword) {
		return apperr.Validation("Le mot de passe actuel est incorrect",
			map[string]string{"currentPassword": "password"})
	}
	if err := setPassword(c.UserContext(), h.db, u.ID, req.NextPassword); err != nil {
		return err
	}

	jwtware.ClearCookie(c)
	return web.Success(c,
		"Le mot de passe a bien été changé. Vous pouvez dès à present vous reconnecter avec votre nouveau mot de passe",
		homePath, nil)
}

// Accounts

func (h *Handler) ListAccounts(c fiber.Ctx) error {
	var users []User
	if err := h.db.WithContext(c.UserContext()).Order("username").Find(&users).Error; err != nil {
		return err
	}
	return web.Data(c, users)
}

type accountRequest struct {
	Username  string `json:"username" validate:"required,max=150"`
	FirstName string `json:"firstName" validate:"max=150"`
	LastName  string `json:"lastName" validate:"max=150"`
	Email     string `json:"email" validate:"omitempty,email"`
}

func (h *Handler) usernameTaken(ctx context.Context, username string, except uint) error {
	var count int64
	err := h.db.WithContext(ctx).Model(&User{}).
		Where("username = ? AND id <> ?", username, except).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return apperr.Validation("Ce nom d'utilisateur est déjà pris", map[string]string{"username": "unique"})
	}
	return nil
}

// CreateAccount adds a staff account whose password is its username.
func (h *Handler) CreateAccount(c fiber.Ctx) error {
	var req accountRequest
	if err := web.BindJSON(c, &req); err != nil {
		return err
	}
	if err := h.usernameTaken(c.UserContext(), req.Username, 0); err != nil {
		return err
	}

	u := &User{
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		IsStaff:   true,
		IsActive:  true,
	}
	if err := h.db.WithContext(c.UserContext()).Create(u).Error; err != nil {
		return err
	}
	return web.Created(c,
		"Le compte a bien été créé. Par défaut le mot de passe est le nom d'utilisateur.",
		accountsPath, u)
}

func (h *Handler) UpdateAccount(c fiber.Ctx) error {
	id, err := web.ParseID(c, "id")
	if err != nil {
		return err
	}
	var req accountRequest
	if err := web.BindJSON(c, &req); err != nil {
		return err
	}
	u, err := h.load(c.UserContext(), id)
	if err != nil {
		return err
	}
	if err := h.usernameTaken(c.UserContext(), req.Username, id); err != nil {
		return err
	}

	u.Username, u.FirstName, u.LastName, u.Email = req.Username, req.FirstName, req.LastName, req.Email
	err = h.db.WithContext(c.UserContext()).Model(u).
		Select("username", "first_name", "last_name", "email").
		Updates(u).Error
	if err != nil {
		return err
	}
	return web.Success(c, "Le compte a bien été modifié", accountsPath, u)
}

func (h *Handler) DeleteAccount(c fiber.Ctx) error {
	id, err := web.ParseID(c, "id")
	if err != nil {
		return err
	}
	if id == acl.FromCtx(c).UserID {
		return apperr.Conflict("Impossible de supprimer son propre compte")
	}
	res := h.db.WithContext(c.UserContext()).Delete(&User{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("Compte introuvable")
	}
	return web.Success(c, "Le compte a bien été supprimé", accountsPath, nil)
}

// ResetPassword sets the password back to the username.
func (h *Handler) ResetPassword(c fiber.Ctx) error {
	id, err := web.ParseID(c, "id")
	if err != nil {
		return err
	}
	u, err := h.load(c.UserContext(), id)
	if err != nil {
		return err
	}
	if err := setPassword(c.UserContext(), h.db, u.ID, u.Username); err != nil {
		return err
	}
	return web.Success(c,
		"Le mot de passe a bien été réinitialisé. Il est identique au nom d'utilisateur",
		accountsPath, nil)
}

func (h *Handler) GrantSuperuser(c fiber.Ctx) error {
	id, err := web.ParseID(c, "id")
	if err != nil {
		return err
	}
	u, err := h.load(c.UserContext(), id)
	if err != nil {
		return err
	}
	if err := h.db.WithContext(c.UserContext()).Model(u).Update("is_superuser", true).Error; err != nil {
		return err
	}
	return web.Success(c, "L'utilisateur vient de récuperer les droits administrateurs", accountsPath, nil)
}
