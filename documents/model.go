// Package documents holds the downloadable documents shown on the home page
// and the home text itself.
package documents

import "time"

type Document struct {
	ID                 uint      `json:"id" gorm:"primarykey"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
	Name               string    `json:"name" gorm:"size:255;not null" validate:"required,max=255"`
	EnglishName        string    `json:"englishName" gorm:"size:255" validate:"max=255"`
	File               string    `json:"document" gorm:"column:document;size:255;not null"`
	EnglishFile        string    `json:"englishDocument" gorm:"column:english_document;size:255"`
	Description        string    `json:"description"`
	EnglishDescription string    `json:"englishDescription"`
	Active             bool      `json:"active" gorm:"not null"`
}

// ToggleActive flips the published state.
func (d *Document) ToggleActive() {
	d.Active = !d.Active
}

// GeneralPreferences is a single row holding the texts of the home page.
type GeneralPreferences struct {
	ID              uint      `json:"id" gorm:"primarykey"`
	UpdatedAt       time.Time `json:"updatedAt"`
	HomeText        string    `json:"homeText"`
	EnglishHomeText string    `json:"englishHomeText"`
}

var Models = []any{&Document{}, &GeneralPreferences{}}
