package persistence

import (
	"strings"

	"github.com/saas/backend/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// sortColumns maps the order_by values a listing accepts onto table columns.
// Anything else falls back to created_at, so request input never reaches the
// ORDER BY clause verbatim.
type sortColumns map[string]string

const defaultSortColumn = "created_at"

var (
	tenantSortColumns = sortColumns{
		"created_at":    "created_at",
		"updated_at":    "updated_at",
		"name":          "name",
		"subdomain":     "subdomain",
		"status":        "status",
		"trial_ends_at": "trial_ends_at",
	}
	subscriptionSortColumns = sortColumns{
		"created_at": "created_at",
		"updated_at": "updated_at",
		"starts_at":  "starts_at",
		"ends_at":    "ends_at",
		"status":     "status",
		"amount":     "amount",
	}
	paymentSortColumns = sortColumns{
		"created_at":   "created_at",
		"updated_at":   "updated_at",
		"completed_at": "completed_at",
		"status":       "status",
		"amount":       "amount",
	}
	invoiceSortColumns = sortColumns{
		"created_at":     "created_at",
		"updated_at":     "updated_at",
		"issue_date":     "issue_date",
		"due_date":       "due_date",
		"number":         "invoice_number",
		"invoice_number": "invoice_number",
		"status":         "status",
		"total":          "total",
	}
	deadLetterSortColumns = sortColumns{
		"created_at":       "created_at",
		"updated_at":       "updated_at",
		"dead_lettered_at": "created_at",
		"event_type":       "event_type",
		"attempts":         "attempts",
	}
)

// column resolves an order_by value, case-insensitively
func (s sortColumns) column(orderBy string) string {
	if col, ok := s[strings.ToLower(strings.TrimSpace(orderBy))]; ok {
		return col
	}
	return defaultSortColumn
}

// descending reports the direction; only an explicit "asc" sorts ascending
func descending(orderDir string) bool {
	return !strings.EqualFold(strings.TrimSpace(orderDir), "asc")
}

// pageScope orders by a whitelisted column and applies paging. The id
// tiebreaker keeps pages stable when many rows share the sort value.
func pageScope(filter shared.Filter, columns sortColumns) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		desc := descending(filter.OrderDir)
		return db.
			Order(clause.OrderByColumn{Column: clause.Column{Name: columns.column(filter.OrderBy)}, Desc: desc}).
			Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: desc}).
			Offset(filter.Offset()).
			Limit(filter.Limit())
	}
}
