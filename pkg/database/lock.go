package database

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MigrationLocker serializes schema migration between server replicas
// sharing one database.
type MigrationLocker interface {
	// WithLock runs fn while holding the lock. fn receives the handle the
	// migration must run on.
	WithLock(ctx context.Context, fn func(conn *gorm.DB) error) error
}

// migrationLockKey is the advisory lock key shared by every replica.
var migrationLockKey = int64(crc32.ChecksumIEEE([]byte("herbtrace-migration")))

// NewMigrationLocker picks the lock for db's dialect: a session advisory lock
// on PostgreSQL, a lock row elsewhere.
func NewMigrationLocker(db *gorm.DB) MigrationLocker {
	if db == nil {
		return noopLock{}
	}
	if db.Dialector.Name() == TypePostgres {
		return &advisoryLock{db: db, key: migrationLockKey}
	}
	return &rowLock{
		db:       db,
		attempts: 30,
		interval: time.Second,
		ttl:      5 * time.Minute,
	}
}

type noopLock struct{}

func (noopLock) WithLock(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

// advisoryLock pins one pooled connection for the whole critical section.
// Advisory locks belong to the session that took them, so lock, migration
// and unlock all run on that connection.
type advisoryLock struct {
	db  *gorm.DB
	key int64
}

func (l *advisoryLock) WithLock(ctx context.Context, fn func(*gorm.DB) error) error {
	return l.db.WithContext(ctx).Connection(func(conn *gorm.DB) (err error) {
		if err := conn.Exec("SELECT pg_advisory_lock(?)", l.key).Error; err != nil {
			return fmt.Errorf("acquire advisory lock %d: %w", l.key, err)
		}
		defer func() {
			var released bool
			if uerr := conn.Raw("SELECT pg_advisory_unlock(?)", l.key).Scan(&released).Error; uerr != nil {
				err = errors.Join(err, fmt.Errorf("release advisory lock %d: %w", l.key, uerr))
			} else if !released {
				err = errors.Join(err, fmt.Errorf("release advisory lock %d: not held by this session", l.key))
			}
		}()
		return fn(conn)
	})
}

// migrationLease is the single row a rowLock holder owns.
type migrationLease struct {
	Name       string    `gorm:"primaryKey;column:name;size:64"`
	Holder     string    `gorm:"column:holder;size:255"`
	AcquiredAt time.Time `gorm:"column:acquired_at"`
}

func (migrationLease) TableName() string { return "herbtrace_migration_lease" }

const leaseName = "schema"

// rowLock owns the lease row while fn runs. A row older than ttl is taken
// over; its holder is assumed dead.
type rowLock struct {
	db       *gorm.DB
	attempts int
	interval time.Duration
	ttl      time.Duration
	now      func() time.Time
}

func (l *rowLock) clock() time.Time {
	if l.now != nil {
		return l.now()
	}
	return time.Now()
}

func (l *rowLock) WithLock(ctx context.Context, fn func(*gorm.DB) error) (err error) {
	db := l.db.WithContext(ctx)
	if err := db.AutoMigrate(&migrationLease{}); err != nil {
		return fmt.Errorf("create migration lease table: %w", err)
	}

	holder, _ := os.Hostname()
	holder = fmt.Sprintf("%s/%d", holder, os.Getpid())

	for attempt := 1; ; attempt++ {
		ok, err := l.tryAcquire(db, holder)
		if err != nil {
			return err
		}
		if ok {
			break
		}
		if attempt >= l.attempts {
			return fmt.Errorf("migration lease held by another replica after %d attempts", attempt)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.interval):
		}
	}

	defer func() {
		res := l.db.Where("name = ? AND holder = ?", leaseName, holder).Delete(&migrationLease{})
		if res.Error != nil {
			err = errors.Join(err, fmt.Errorf("release migration lease: %w", res.Error))
		}
	}()
	return fn(db)
}

// tryAcquire clears an expired lease and inserts ours. It reports false when
// a live lease exists.
func (l *rowLock) tryAcquire(db *gorm.DB, holder string) (bool, error) {
	now := l.clock()
	if err := db.Where("name = ? AND acquired_at < ?", leaseName, now.Add(-l.ttl)).
		Delete(&migrationLease{}).Error; err != nil {
		return false, fmt.Errorf("expire migration lease: %w", err)
	}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&migrationLease{Name: leaseName, Holder: holder, AcquiredAt: now})
	if res.Error != nil {
		return false, fmt.Errorf("acquire migration lease: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}
