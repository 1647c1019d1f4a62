// Package bookmark maps lesson scroll offsets to normalized positions and
// persists them per user and lesson.
package bookmark

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// idSeparator joins the user and lesson in a bookmark ID. User IDs may not
// contain it, so every ID splits back into exactly one user and lesson.
const idSeparator = ":"

// ErrInvalidUser is returned for a user ID that cannot key a bookmark.
var ErrInvalidUser = errors.New("invalid user ID")

// Bookmark is a saved reading position. Position is a fraction of the
// lesson's scrollable height in [0,1].
type Bookmark struct {
	ID          string `gorm:"primaryKey"`
	UserID      string `gorm:"index;not null"`
	LessonID    string `gorm:"not null"`
	CourseID    string
	CourseName  string
	LessonTitle string
	Position    float64
	CreatedAt   time.Time
	UpdatedAt   time.Time `gorm:"index"`
}

// ID returns the bookmark ID for a user's lesson. A user has at most one
// bookmark per lesson.
func ID(userID, lessonID string) string {
	return userID + idSeparator + lessonID
}

// ValidateUserID reports whether userID can own bookmarks.
func ValidateUserID(userID string) error {
	switch {
	case strings.TrimSpace(userID) == "":
		return fmt.Errorf("%w: empty", ErrInvalidUser)
	case strings.Contains(userID, idSeparator):
		return fmt.Errorf("%w: %q contains %q", ErrInvalidUser, userID, idSeparator)
	}
	return nil
}

// Normalize converts a scroll offset into a position in [0,1]. Content that
// does not scroll is always at position 0.
func Normalize(offset, scrollable int) float64 {
	if scrollable <= 0 {
		return 0
	}
	return Clamp(float64(offset) / float64(scrollable))
}

// Restore converts a saved position back into a scroll offset for content
// with the given scrollable height.
func Restore(position float64, scrollable int) int {
	if scrollable <= 0 {
		return 0
	}
	return int(math.Round(Clamp(position) * float64(scrollable)))
}

// Clamp limits p to [0,1]. NaN becomes 0.
func Clamp(p float64) float64 {
	switch {
	case math.IsNaN(p), p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}
