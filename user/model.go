package user

import (
	"time"

	"github.com/hidenkeys/aloes/acl"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type User struct {
	ID          uint       `json:"id" gorm:"primarykey"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	Username    string     `json:"username" gorm:"size:150;uniqueIndex;not null" validate:"required,max=150"`
	FirstName   string     `json:"firstName" gorm:"size:150" validate:"max=150"`
	LastName    string     `json:"lastName" gorm:"size:150" validate:"max=150"`
	Email       string     `json:"email" gorm:"size:254" validate:"omitempty,email"`
	Password    string     `json:"-" gorm:"size:128;not null"`
	IsStaff     bool       `json:"isStaff" gorm:"not null"`
	IsSuperuser bool       `json:"isSuperuser" gorm:"not null"`
	IsActive    bool       `json:"isActive" gorm:"not null"`
	LastLogin   *time.Time `json:"lastLogin"`
}

// BeforeCreate hashes the password; an account created without one gets its
// username as password.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.Password == "" {
		u.Password = u.Username
	}
	u.Password, err = generateHashPassword(u.Password)
	return
}

func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) == nil
}

func (u *User) Principal(sessionID string) acl.Principal {
	return acl.Principal{
		UserID:      u.ID,
		Username:    u.Username,
		SessionID:   sessionID,
		IsStaff:     u.IsStaff,
		IsSuperuser: u.IsSuperuser,
	}
}

func generateHashPassword(password string) (string, error) {
	hashedPasswordBytes, err := bcrypt.GenerateFromPassword([]byte(password), 10)
	if err != nil {
		return "", err
	}
	return string(hashedPasswordBytes), nil
}
