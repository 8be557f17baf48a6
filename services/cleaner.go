package services

import (
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode"

	"infortic-scraper/models"
	"infortic-scraper/utils"
)

// indonesianMonths maps the first three letters of an Indonesian (or
// English) month name to its number.
var indonesianMonths = map[string]time.Month{
	"jan": time.January,
	"feb": time.February,
	"peb": time.February,
	"mar": time.March,
	"apr": time.April,
	"mei": time.May,
	"may": time.May,
	"jun": time.June,
	"jul": time.July,
	"agt": time.August,
	"agu": time.August,
	"aug": time.August,
	"sep": time.September,
	"okt": time.October,
	"oct": time.October,
	"nov": time.November,
	"nop": time.November,
	"des": time.December,
	"dec": time.December,
}

// Cleaner normalises scraped records before they are stored.
type Cleaner struct {
	logger *slog.Logger
}

// NewCleaner creates a Cleaner with the given logger.
func NewCleaner(logger *slog.Logger) *Cleaner {
	if logger == nil {
		logger = utils.NopLogger()
	}
	return &Cleaner{logger: logger}
}

// Clean returns a copy of batch where every string field is trimmed and
// has its internal whitespace collapsed. Fields left empty become nil.
// Records are never dropped; keyless records are rejected by the store.
func (c *Cleaner) Clean(batch models.Batch) models.Batch {
	out := make(models.Batch, 0, len(batch))
	emptied := 0

	for _, r := range batch {
		clean := r.Clone()
		for k, v := range clean {
			s, ok := v.(string)
			if !ok {
				continue
			}
			if norm := normaliseText(s); norm != "" {
				clean[k] = norm
			} else {
				clean[k] = nil
				emptied++
			}
		}
		out = append(out, clean)
	}

	c.logger.Debug("records normalised", slog.Int("records", len(out)), slog.Int("emptied_fields", emptied))
	return out
}

// ParseDeadline turns an Indonesian date such as "Deadline: 01 Agt 2025"
// or "31 Desember 2024" into "2025-08-01". For ranges like
// "1 - 15 Jan 2025" the last date wins. ok is false when no valid date
// can be read.
func ParseDeadline(text string) (string, bool) {
	text = strings.ToLower(normaliseText(text))
	text = strings.TrimSpace(strings.TrimPrefix(text, "deadline:"))
	fields := strings.Fields(text)
	if len(fields) < 3 {
		return "", false
	}
	fields = fields[len(fields)-3:]

	day, err := strconv.Atoi(fields[0])
	if err != nil {
		return "", false
	}
	monthName := fields[1]
	if len(monthName) < 3 {
		return "", false
	}
	month, ok := indonesianMonths[monthName[:3]]
	if !ok {
		return "", false
	}
	year, err := strconv.Atoi(fields[2])
	if err != nil {
		return "", false
	}

	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	// Rejects overflow such as 31 Feb.
	if t.Day() != day || t.Month() != month {
		return "", false
	}
	return t.Format("2006-01-02"), true
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	s = strings.TrimSpace(s)
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.Join(fields, " ")
}
