package bookmark

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Progress records that a user finished a lesson within a course. Lessons
// played outside a course have an empty CourseID.
type Progress struct {
	UserID      string `gorm:"primaryKey"`
	CourseID    string `gorm:"primaryKey"`
	LessonID    string `gorm:"primaryKey"`
	Completed   bool
	CompletedAt time.Time
	UpdatedAt   time.Time
}

// MarkComplete records that the user finished lessonID. Finishing it again
// moves CompletedAt forward.
func (s *Store) MarkComplete(ctx context.Context, userID, courseID, lessonID string) error {
	if lessonID == "" {
		return errors.New("progress needs a lesson")
	}
	if err := ValidateUserID(userID); err != nil {
		return err
	}

	p := Progress{
		UserID:      userID,
		CourseID:    courseID,
		LessonID:    lessonID,
		Completed:   true,
		CompletedAt: time.Now(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "course_id"}, {Name: "lesson_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"completed",
			"completed_at",
			"updated_at",
		}),
	}).Create(&p).Error
	if err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}

	s.logger.Debug("Lesson completed", "user", userID, "course", courseID, "lesson", lessonID)
	return nil
}

// Completion returns the most recent completion of lessonID in any course,
// or ErrNotFound when the user never finished it.
func (s *Store) Completion(ctx context.Context, userID, lessonID string) (*Progress, error) {
	var p Progress
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND lesson_id = ? AND completed = ?", userID, lessonID, true).
		Order("completed_at DESC").
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load progress: %w", err)
	}
	return &p, nil
}
