package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"accession/internal/config"
	"accession/internal/services"
)

const stage = "repository"

// Store persists repository records.
type Store struct {
	db *gorm.DB
}

// Open connects to the configured repository database and migrates it.
func Open(cfg config.Repository) (*Store, error) {
	return OpenURL(cfg.DatabaseURL, cfg.MaxOpenConns)
}

// OpenURL connects to databaseURL, a sqlite:// or postgres:// URL.
func OpenURL(databaseURL string, maxOpenConns int) (*Store, error) {
	databaseURL = strings.TrimSpace(databaseURL)
	var (
		dialector gorm.Dialector
		isSQLite  bool
	)
	switch {
	case strings.HasPrefix(databaseURL, "sqlite://"):
		path := strings.TrimPrefix(databaseURL, "sqlite://")
		if path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("create repository directory: %w", err)
			}
		}
		dialector = sqlite.Open(path)
		isSQLite = true
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		dialector = postgres.Open(databaseURL)
	default:
		return nil, fmt.Errorf("%w: unsupported repository database url %q", services.ErrConfiguration, databaseURL)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect repository database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("repository database handle: %w", err)
	}
	if isSQLite {
		// A single connection keeps :memory: databases shared and writes serialized.
		sqlDB.SetMaxOpenConns(1)
	} else {
		if maxOpenConns <= 0 {
			maxOpenConns = 10
		}
		sqlDB.SetMaxOpenConns(maxOpenConns)
		sqlDB.SetMaxIdleConns(maxOpenConns / 2)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate() error {
	if err := s.db.AutoMigrate(&Object{}, &Transcript{}); err != nil {
		return fmt.Errorf("migrate repository schema: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// CollectionByURI returns the collection created for a descriptive-metadata
// URI, or nil when none exists.
func (s *Store) CollectionByURI(ctx context.Context, uri string) (*Object, error) {
	var obj Object
	err := s.db.WithContext(ctx).
		Where("uri = ? AND object_type = ?", uri, TypeCollection).
		First(&obj).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, stage, "collection by uri", uri, err)
	}
	return &obj, nil
}

// ObjectByUUID returns the record with uuid, or nil when none exists.
func (s *Store) ObjectByUUID(ctx context.Context, id string) (*Object, error) {
	var obj Object
	err := s.db.WithContext(ctx).First(&obj, "uuid = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, stage, "object by uuid", id, err)
	}
	return &obj, nil
}

// SaveObject inserts a new record. Records are created once; a duplicate
// UUID is a persistence failure.
func (s *Store) SaveObject(ctx context.Context, obj *Object) error {
	if obj == nil {
		return services.Wrap(services.ErrPersistence, stage, "save object", "nil record", nil)
	}
	if err := s.db.WithContext(ctx).Create(obj).Error; err != nil {
		return services.Wrap(services.ErrPersistence, stage, "save object", obj.UUID, err)
	}
	return nil
}

// MembersOf lists the objects belonging to a collection, oldest first.
func (s *Store) MembersOf(ctx context.Context, collectionUUID string) ([]Object, error) {
	var objects []Object
	err := s.db.WithContext(ctx).
		Where("is_member_of_collection = ?", collectionUUID).
		Order("created_at ASC").
		Find(&objects).Error
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, stage, "members of", collectionUUID, err)
	}
	return objects, nil
}

// TranscriptFor returns the transcript for a call number, or nil when none exists.
func (s *Store) TranscriptFor(ctx context.Context, callNumber string) (*Transcript, error) {
	callNumber = strings.TrimSpace(callNumber)
	if callNumber == "" {
		return nil, nil
	}
	var transcript Transcript
	err := s.db.WithContext(ctx).Where("call_number = ?", callNumber).First(&transcript).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, stage, "transcript", callNumber, err)
	}
	return &transcript, nil
}

// SaveTranscript creates or replaces the transcript for its call number.
func (s *Store) SaveTranscript(ctx context.Context, transcript *Transcript) error {
	existing, err := s.TranscriptFor(ctx, transcript.CallNumber)
	if err != nil {
		return err
	}
	if existing != nil {
		transcript.ID = existing.ID
		transcript.CreatedAt = existing.CreatedAt
	}
	if err := s.db.WithContext(ctx).Save(transcript).Error; err != nil {
		return services.Wrap(services.ErrPersistence, stage, "save transcript", transcript.CallNumber, err)
	}
	return nil
}

// Counts returns the number of records per object type.
func (s *Store) Counts(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		ObjectType string
		Total      int64
	}
	err := s.db.WithContext(ctx).
		Model(&Object{}).
		Select("object_type, COUNT(*) AS total").
		Group("object_type").
		Scan(&rows).Error
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, stage, "counts", "", err)
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.ObjectType] = row.Total
	}
	return counts, nil
}
