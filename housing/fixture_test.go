package housing

import (
	"context"
	"testing"
	"time"

	"github.com/hidenkeys/aloes/lock"
	"github.com/hidenkeys/aloes/storage"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	occ   *Occupancy
	store *Store
	rent  *Rent
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := storage.OpenMemory(append(Models(), &lock.EditLock{})...)
	require.NoError(t, err)

	rent := &Rent{Type: "Standard", Rent: 350, Service: 20, Charges: 30, ApplicationFee: 100, Surface: 18}
	require.NoError(t, db.Create(rent).Error)

	return &fixture{db: db, occ: NewOccupancy(db), store: NewStore(db), rent: rent}
}

func (f *fixture) room(t *testing.T, code string, lot uint) *Room {
	t.Helper()
	r := &Room{Code: code, Lot: lot, RentID: f.rent.ID, IsActive: true}
	require.NoError(t, f.store.CreateRoom(ctx(), r))
	return r
}

func (f *fixture) tenant(t *testing.T, first, last string) *Tenant {
	t.Helper()
	tn := &Tenant{FirstName: first, Name: last, Gender: GenderMale, Email: first + "." + last + "@mail.fr"}
	require.NoError(t, f.store.CreateTenant(ctx(), tn))
	return tn
}

func (f *fixture) reloadTenant(t *testing.T, id uint) *Tenant {
	t.Helper()
	var tn Tenant
	require.NoError(t, f.db.First(&tn, id).Error)
	return &tn
}

func (f *fixture) reloadRoom(t *testing.T, id uint) *Room {
	t.Helper()
	var r Room
	require.NoError(t, f.db.First(&r, id).Error)
	return &r
}

func (f *fixture) leasings(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&Leasing{}).Count(&n).Error)
	return n
}

// consistent fails the test when any tenant or room pointer disagrees with its leasing.
func (f *fixture) consistent(t *testing.T) {
	t.Helper()
	found, err := f.occ.CheckConsistency(ctx())
	require.NoError(t, err)
	require.Empty(t, found)
}

// beforeFirstUpdate runs change once, inside the caller's transaction, right
// before the first UPDATE on table. It stands for a concurrent writer.
func (f *fixture) beforeFirstUpdate(t *testing.T, table string, change func(tx *gorm.DB) error) {
	t.Helper()
	done := false
	err := f.db.Callback().Update().Before("gorm:update").Register("test:before_"+table, func(db *gorm.DB) {
		if done || db.Statement.Table != table {
			return
		}
		done = true
		if err := change(db.Session(&gorm.Session{NewDB: true})); err != nil {
			db.AddError(err)
		}
	})
	require.NoError(t, err)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ymd(d *datatypes.Date) string {
	if d == nil {
		return ""
	}
	return time.Time(*d).Format("2006-01-02")
}

func ctx() context.Context { return context.Background() }
