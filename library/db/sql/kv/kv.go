// Package kv is a small expiring key-value table kept in the primary database.
package kv

import (
	"context"
	"regexp"
	"time"

	errors "github.com/Laisky/errors/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxTTL = 30 * 24 * time.Hour

var (
	regexpKey = regexp.MustCompile(`^[a-zA-Z0-9_:/.-]{1,128}$`)

	// ErrKeyNotFound is returned when a key is missing or expired.
	ErrKeyNotFound = errors.New("key not found")
)

// Item is one stored entry.
type Item struct {
	Key       string    `gorm:"primaryKey;size:128" json:"key"`
	Value     string    `gorm:"type:text;not null" json:"value"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	ExpireAt  time.Time `gorm:"not null;index" json:"expire_at"`
}

// TableName implements gorm's tabler.
func (Item) TableName() string {
	return "docspace_kv"
}

// Kv is a key-value store backed by gorm.
type Kv struct {
	db    *gorm.DB
	clock func() time.Time
}

// Option configures a Kv.
type Option func(*Kv)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(kv *Kv) {
		if clock != nil {
			kv.clock = clock
		}
	}
}

// NewKv creates the table when needed and returns a store.
func NewKv(ctx context.Context, db *gorm.DB, opts ...Option) (*Kv, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}

	kv := &Kv{db: db, clock: time.Now}
	for _, opt := range opts {
		opt(kv)
	}

	if err := db.WithContext(ctx).AutoMigrate(&Item{}); err != nil {
		return nil, errors.Wrap(err, "migrate kv table")
	}
	return kv, nil
}

// Set upserts key with value, expiring after ttl.
func (kv *Kv) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if !regexpKey.MatchString(key) {
		return errors.Errorf("invalid key: %q", key)
	}
	if ttl <= 0 {
		return errors.Errorf("ttl must be greater than 0: %s", ttl)
	}
	if ttl > maxTTL {
		return errors.Errorf("ttl is too far in the future: %s", ttl)
	}

	now := kv.clock().UTC()
	item := Item{
		Key:       key,
		Value:     value,
		CreatedAt: now,
		ExpireAt:  now.Add(ttl),
	}
	err := kv.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expire_at"}),
		}).
		Create(&item).Error
	return errors.Wrap(err, "upsert kv item")
}

// Get returns the live entry for key. Expired entries are removed and
// reported as ErrKeyNotFound.
func (kv *Kv) Get(ctx context.Context, key string) (*Item, error) {
	var item Item
	err := kv.db.WithContext(ctx).Where("key = ?", key).Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(ErrKeyNotFound, "key %s", key)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get kv item")
	}

	if kv.clock().After(item.ExpireAt) {
		if err := kv.Del(ctx, key); err != nil {
			return nil, errors.WithStack(err)
		}
		return nil, errors.Wrapf(ErrKeyNotFound, "key %s expired", key)
	}
	return &item, nil
}

// Del removes key.
func (kv *Kv) Del(ctx context.Context, key string) error {
	err := kv.db.WithContext(ctx).Where("key = ?", key).Delete(&Item{}).Error
	return errors.Wrap(err, "delete kv item")
}
