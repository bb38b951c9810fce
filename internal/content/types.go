package content

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Category tags a record with one of the fixed content themes.
type Category string

const (
	CategoryMotivation Category = "motivation"
	CategoryWisdom     Category = "wisdom"
	CategoryGrindset   Category = "grindset"
	CategoryReflection Category = "reflection"
	CategoryDiscipline Category = "discipline"
)

// Categories lists every category in canonical order. Callers must not modify it.
var Categories = []Category{
	CategoryMotivation,
	CategoryWisdom,
	CategoryGrindset,
	CategoryReflection,
	CategoryDiscipline,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory normalizes and validates a category name.
func ParseCategory(raw string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", raw)
	}
	return c, nil
}

// DateLayout is the calendar-date natural key format.
const DateLayout = "2006-01-02"

// Date truncates t to a calendar date in t's location and returns it at UTC midnight,
// so equal calendar days compare equal regardless of zone.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a calendar date.
func ParseDate(raw string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", raw)
	}
	return d, nil
}

// Record is one day's generated content.
type Record struct {
	ID                   string    `json:"id"`
	Content              string    `json:"content"`
	Category             Category  `json:"category"`
	DateCreated          time.Time `json:"-"`
	AudioURL             *string   `json:"audioUrl"`
	AudioDurationSeconds *float64  `json:"audioDurationSeconds"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// DateKey renders the record's natural key.
func (r Record) DateKey() string {
	return r.DateCreated.Format(DateLayout)
}

// HasAudio reports whether narration was attached.
func (r Record) HasAudio() bool {
	return r.AudioURL != nil && *r.AudioURL != ""
}

// Draft is the input for creating the record of a date.
type Draft struct {
	Content  string
	Category Category
	Date     time.Time
	// Overwrite replaces an existing record for the same date in place, clearing audio.
	Overwrite bool
}

var (
	ErrNotFound      = errors.New("content record not found")
	ErrDuplicateDate = errors.New("content record already exists for date")
)

// Store persists content records keyed by calendar date.
type Store interface {
	// GetByDate returns ErrNotFound when no record exists for the date.
	GetByDate(ctx context.Context, date time.Time) (Record, error)
	// ListBetween returns records with from <= date <= to, newest first.
	ListBetween(ctx context.Context, from, to time.Time) ([]Record, error)
	// Create returns ErrDuplicateDate if the date is taken and the draft does not overwrite.
	Create(ctx context.Context, draft Draft) (Record, error)
	// UpdateAudio sets the audio fields of an existing record.
	UpdateAudio(ctx context.Context, id, audioURL string, durationSeconds float64) (Record, error)
	Close() error
}
