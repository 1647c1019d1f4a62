package bookmark

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/lessonshelf/lectern/tts"
)

// ErrNotFound is returned when no bookmark or preference is stored.
var ErrNotFound = errors.New("bookmark not found")

// Preference holds per-user playback settings.
type Preference struct {
	UserID    string `gorm:"primaryKey"`
	Rate      float64
	UpdatedAt time.Time
}

// Store persists bookmarks, preferences and lesson progress in sqlite.
type Store struct {
	db     *gorm.DB
	logger *log.Logger
}

// Open opens or creates the sqlite database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create bookmark directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open bookmark database: %w", err)
	}
	if err := db.AutoMigrate(&Bookmark{}, &Preference{}, &Progress{}); err != nil {
		return nil, fmt.Errorf("failed to migrate bookmark database: %w", err)
	}

	return &Store{db: db, logger: log.WithPrefix("bookmark")}, nil
}

// Save creates or overwrites the user's bookmark for b.LessonID and returns
// its ID. The original creation time is kept on overwrite.
func (s *Store) Save(ctx context.Context, b Bookmark) (string, error) {
	if b.LessonID == "" {
		return "", errors.New("bookmark needs a lesson")
	}
	if err := ValidateUserID(b.UserID); err != nil {
		return "", err
	}
	b.ID = ID(b.UserID, b.LessonID)
	b.Position = Clamp(b.Position)

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"course_id",
			"course_name",
			"lesson_title",
			"position",
			"updated_at",
		}),
	}).Create(&b).Error
	if err != nil {
		return "", fmt.Errorf("failed to save bookmark: %w", err)
	}

	s.logger.Debug("Saved bookmark", "id", b.ID, "position", b.Position)
	return b.ID, nil
}

// Get returns the user's bookmark for lessonID, or ErrNotFound.
func (s *Store) Get(ctx context.Context, userID, lessonID string) (*Bookmark, error) {
	var b Bookmark
	err := s.db.WithContext(ctx).First(&b, "id = ?", ID(userID, lessonID)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load bookmark: %w", err)
	}
	return &b, nil
}

// List returns the user's bookmarks, most recently updated first.
func (s *Store) List(ctx context.Context, userID string) ([]Bookmark, error) {
	var bookmarks []Bookmark
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&bookmarks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list bookmarks: %w", err)
	}
	return bookmarks, nil
}

// Delete removes the bookmark with id. Deleting a missing bookmark is not
// an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&Bookmark{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete bookmark: %w", err)
	}
	return nil
}

// SaveRate stores the user's preferred speaking rate.
func (s *Store) SaveRate(ctx context.Context, userID string, rate float64) error {
	p := Preference{UserID: userID, Rate: tts.ClampRate(rate)}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"rate", "updated_at"}),
	}).Create(&p).Error
	if err != nil {
		return fmt.Errorf("failed to save rate: %w", err)
	}
	return nil
}

// Rate returns the user's preferred speaking rate. It returns ErrNotFound
// when none was saved.
func (s *Store) Rate(ctx context.Context, userID string) (float64, error) {
	var p Preference
	err := s.db.WithContext(ctx).First(&p, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load rate: %w", err)
	}
	return p.Rate, nil
}

// Close releases the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
