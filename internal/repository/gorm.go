package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/otcheredev/ris-modality-workflow/internal/models"
	"gorm.io/gorm"
)

// GormCollection handles one entity table through gorm
type GormCollection[T any, P Entity[T]] struct {
	db   *gorm.DB
	name string
}

// NewGormCollection creates a gorm-backed collection
func NewGormCollection[T any, P Entity[T]](db *gorm.DB, name string) *GormCollection[T, P] {
	return &GormCollection[T, P]{db: db, name: name}
}

// Create inserts a new entry and reads it back
func (c *GormCollection[T, P]) Create(ctx context.Context, entity *T) (*T, error) {
	key := prepareCreate[T, P](entity)

	if err := c.db.WithContext(ctx).Create(entity).Error; err != nil {
		return nil, wrap("create", c.name, err)
	}

	created, err := c.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, wrap("create", c.name, ErrNoEntity)
	}
	return created, nil
}

// Get retrieves an entry by key
func (c *GormCollection[T, P]) Get(ctx context.Context, key string) (*T, error) {
	var entity T
	err := c.db.WithContext(ctx).Where("id = ?", key).First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get", c.name, err)
	}
	return &entity, nil
}

// List retrieves all entries
func (c *GormCollection[T, P]) List(ctx context.Context) ([]*T, error) {
	var entities []T
	if err := c.db.WithContext(ctx).Order("created_at ASC").Find(&entities).Error; err != nil {
		return nil, wrap("list", c.name, err)
	}

	result := make([]*T, 0, len(entities))
	for i := range entities {
		result = append(result, &entities[i])
	}
	return result, nil
}

// Update replaces the content of an existing entry
func (c *GormCollection[T, P]) Update(ctx context.Context, key string, entity *T) (*T, error) {
	prev, err := c.Get(ctx, key)
	if err != nil || prev == nil {
		return nil, err
	}

	prepareUpdate[T, P](key, entity, prev)
	if err := c.db.WithContext(ctx).Save(entity).Error; err != nil {
		return nil, wrap("update", c.name, err)
	}
	return c.Get(ctx, key)
}

// Delete removes an entry and returns what was removed
func (c *GormCollection[T, P]) Delete(ctx context.Context, key string) (*T, error) {
	prev, err := c.Get(ctx, key)
	if err != nil || prev == nil {
		return nil, err
	}

	if err := c.db.WithContext(ctx).Where("id = ?", key).Delete(new(T)).Error; err != nil {
		return nil, wrap("delete", c.name, err)
	}
	return prev, nil
}

// DeleteWhere removes every entry matching the predicate
func (c *GormCollection[T, P]) DeleteWhere(ctx context.Context, match func(*T) bool) (DeleteResult[T], error) {
	return DeleteEach[T, P](ctx, c, match)
}

type gormBackend struct {
	db *gorm.DB
}

func (b *gormBackend) Name() string { return "postgres" }

func (b *gormBackend) Ping(ctx context.Context) error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (b *gormBackend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// NewGormStore builds a Store on an already migrated gorm connection
func NewGormStore(db *gorm.DB) *Store {
	return &Store{
		Worklists:    NewGormCollection[models.WorklistEntry](db, "worklist"),
		Mpps:         NewGormCollection[models.MppsEntry](db, "mpps"),
		Destinations: NewGormCollection[models.MimEntry](db, "mim"),
		Patients:     NewGormCollection[models.PatientStudyEntry](db, "patient"),
		HL7Settings:  NewGormCollection[models.Hl7SettingEntry](db, "hl7_setting"),
		HL7Messages:  NewGormCollection[models.Hl7MessageSetting](db, "hl7_message_setting"),
		Audit:        NewGormCollection[models.AuditLog](db, "audit"),
		backend:      &gormBackend{db: db},
	}
}
