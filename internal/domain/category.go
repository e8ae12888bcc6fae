package domain

import (
	"strings"

	"github.com/uptrace/bun"
)

// Category is read-only reference data. Availability categories describe
// provider blocks rather than client appointments.
type Category struct {
	bun.BaseModel `bun:"table:categories"`

	ID             int64  `bun:"id,pk" json:"id"`
	Name           string `bun:"name,notnull" json:"name"`
	IsAvailability bool   `bun:"is_availability,notnull" json:"is_availability"`
}

// BlockingKeywords mark availability categories that prevent new bookings.
var BlockingKeywords = []string{
	"out",
	"vacation",
	"meeting",
	"lunch",
	"break",
	"unavailable",
	"holiday",
	"away",
}

// Blocks reports whether the category name contains a blocking keyword,
// case-insensitively.
func (c Category) Blocks() bool {
	return NameBlocks(c.Name)
}

func NameBlocks(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range BlockingKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
