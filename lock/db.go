package lock

import (
	"context"
	"time"

	"github.com/hidenkeys/aloes/apperr"
	"gorm.io/gorm"
)

// EditLock is the table-backed lock record used when no redis is configured.
type EditLock struct {
	ID        uint      `gorm:"primarykey"`
	Entity    string    `gorm:"size:64;uniqueIndex;not null"`
	Holder    string    `gorm:"size:64;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
}

type DBManager struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

func NewDBManager(db *gorm.DB, ttl time.Duration) *DBManager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &DBManager{db: db, ttl: ttl, now: time.Now}
}

func (m *DBManager) Acquire(ctx context.Context, key Key, holder string) error {
	now := m.now()
	entity := key.String()
	db := m.db.WithContext(ctx)

	// refresh our own lock or take over an expired one
	res := db.Model(&EditLock{}).
		Where("entity = ? AND (holder = ? OR expires_at <= ?)", entity, holder, now).
		Updates(map[string]any{"holder": holder, "expires_at": now.Add(m.ttl)})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	err := db.Create(&EditLock{Entity: entity, Holder: holder, ExpiresAt: now.Add(m.ttl)}).Error
	if err == nil {
		return nil
	}

	// lost the insert race, or the row is held by someone else
	var existing EditLock
	if res := db.Where("entity = ?", entity).Limit(1).Find(&existing); res.Error == nil && res.RowsAffected == 1 {
		if existing.Holder != holder {
			return apperr.AlreadyLocked("%s est en cours de modification", key)
		}
		return nil
	}
	return err
}

func (m *DBManager) Release(ctx context.Context, key Key, holder string) error {
	return m.db.WithContext(ctx).
		Where("entity = ? AND holder = ?", key.String(), holder).
		Delete(&EditLock{}).Error
}

func (m *DBManager) IsHeldBy(ctx context.Context, key Key, holder string) (bool, error) {
	var count int64
	err := m.db.WithContext(ctx).Model(&EditLock{}).
		Where("entity = ? AND holder = ? AND expires_at > ?", key.String(), holder, m.now()).
		Count(&count).Error
	return count > 0, err
}

// Purge removes expired rows.
func (m *DBManager) Purge(ctx context.Context) (int64, error) {
	res := m.db.WithContext(ctx).Where("expires_at <= ?", m.now()).Delete(&EditLock{})
	return res.RowsAffected, res.Error
}
