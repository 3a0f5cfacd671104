package documents

import (
	"context"
	"errors"

	"github.com/hidenkeys/aloes/apperr"
	"gorm.io/gorm"
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) List(ctx context.Context) ([]Document, error) {
	var docs []Document
	err := s.db.WithContext(ctx).Order("name").Find(&docs).Error
	return docs, err
}

func (s *Store) Published(ctx context.Context) ([]Document, error) {
	var docs []Document
	err := s.db.WithContext(ctx).Where("active = ?", true).Order("name").Find(&docs).Error
	return docs, err
}

func (s *Store) Get(ctx context.Context, id uint) (*Document, error) {
	var d Document
	if err := s.db.WithContext(ctx).First(&d, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Document introuvable")
		}
		return nil, err
	}
	return &d, nil
}

func (s *Store) Create(ctx context.Context, d *Document) error {
	return s.db.WithContext(ctx).Create(d).Error
}

func (s *Store) Save(ctx context.Context, d *Document) error {
	return s.db.WithContext(ctx).Model(d).Select("*").Omit("created_at").Updates(d).Error
}

func (s *Store) Delete(ctx context.Context, id uint) (*Document, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Delete(d).Error; err != nil {
		return nil, err
	}
	return d, nil
}

// ToggleActive flips the active flag and returns the new value.
func (s *Store) ToggleActive(ctx context.Context, id uint) (bool, error) {
	var active bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var d Document
		if err := tx.First(&d, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("Document introuvable")
			}
			return err
		}
		d.ToggleActive()
		active = d.Active
		return tx.Model(&d).Update("active", d.Active).Error
	})
	return active, err
}

// Preferences returns the home texts, creating the row on first use.
func (s *Store) Preferences(ctx context.Context) (*GeneralPreferences, error) {
	var p GeneralPreferences
	err := s.db.WithContext(ctx).Order("id").FirstOrCreate(&p).Error
	return &p, err
}

func (s *Store) SavePreferences(ctx context.Context, p *GeneralPreferences) error {
	return s.db.WithContext(ctx).Model(p).
		Select("home_text", "english_home_text").
		Updates(p).Error
}
