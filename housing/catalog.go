package housing

import (
	"context"

	"github.com/hidenkeys/aloes/apperr"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Catalog is the plain CRUD used for schools, rents, renovations and maps.
type Catalog[T any] struct {
	db       *gorm.DB
	order    string
	notFound string
	// inUse reports why a row cannot be deleted, or "" when it can.
	inUse func(tx *gorm.DB, id uint) (string, error)
}

func (c *Catalog[T]) List(ctx context.Context) ([]T, error) {
	var rows []T
	err := c.db.WithContext(ctx).Order(c.order).Find(&rows).Error
	return rows, err
}

func (c *Catalog[T]) Get(ctx context.Context, id uint) (*T, error) {
	var row T
	if err := c.db.WithContext(ctx).First(&row, id).Error; err != nil {
		return nil, notFound(err, c.notFound)
	}
	return &row, nil
}

func (c *Catalog[T]) Create(ctx context.Context, row *T) error {
	return c.db.WithContext(ctx).Omit(clause.Associations).Create(row).Error
}

func (c *Catalog[T]) Save(ctx context.Context, row *T) error {
	return c.db.WithContext(ctx).Model(row).
		Select("*").
		Omit(clause.Associations, "created_at").
		Updates(row).Error
}

// Delete removes the row unless something still references it.
func (c *Catalog[T]) Delete(ctx context.Context, id uint) (*T, error) {
	var row T
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&row, id).Error; err != nil {
			return notFound(err, c.notFound)
		}
		if c.inUse != nil {
			reason, err := c.inUse(tx, id)
			if err != nil {
				return err
			}
			if reason != "" {
				return apperr.Conflict("%s", reason)
			}
		}
		return tx.Delete(&row).Error
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func referencedBy(model any, column, message string) func(tx *gorm.DB, id uint) (string, error) {
	return func(tx *gorm.DB, id uint) (string, error) {
		var count int64
		if err := tx.Model(model).Where(column+" = ?", id).Count(&count).Error; err != nil {
			return "", err
		}
		if count > 0 {
			return message, nil
		}
		return "", nil
	}
}

func NewSchools(db *gorm.DB) *Catalog[School] {
	return &Catalog[School]{
		db:       db,
		order:    "name",
		notFound: "École introuvable",
		inUse:    referencedBy(&Tenant{}, "school_id", "Impossible de supprimer l'école : des locataires y sont inscrits"),
	}
}

func NewRents(db *gorm.DB) *Catalog[Rent] {
	return &Catalog[Rent]{
		db:       db,
		order:    "type",
		notFound: "Loyer introuvable",
		inUse:    referencedBy(&Room{}, "rent_id", "Impossible de supprimer le loyer : des chambres l'utilisent"),
	}
}

func NewRenovations(db *gorm.DB) *Catalog[Renovation] {
	return &Catalog[Renovation]{
		db:       db,
		order:    "name",
		notFound: "Niveau de rénovation introuvable",
		inUse:    referencedBy(&Room{}, "renovation_id", "Impossible de supprimer le niveau de rénovation : des chambres l'utilisent"),
	}
}

func NewMaps(db *gorm.DB) *Catalog[Map] {
	return &Catalog[Map]{db: db, order: "name", notFound: "Plan introuvable"}
}
