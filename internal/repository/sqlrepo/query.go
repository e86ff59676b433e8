package sqlrepo

import (
	"fmt"
	"strings"

	"github.com/watercoop/waterbill/internal/types"
)

// orderDirection returns a safe ORDER BY direction for the filter
func orderDirection(f types.BaseFilter) string {
	if strings.EqualFold(f.GetOrder(), types.OrderAsc) {
		return "ASC"
	}
	return "DESC"
}

// paginate appends LIMIT and OFFSET for the filter
func paginate(query string, f types.BaseFilter, driver string) string {
	if f.IsUnlimited() {
		switch {
		case f.GetOffset() == 0:
			return query
		case driver == "sqlite":
			// sqlite needs a LIMIT before OFFSET
			return fmt.Sprintf("%s LIMIT -1 OFFSET %d", query, f.GetOffset())
		default:
			return fmt.Sprintf("%s OFFSET %d", query, f.GetOffset())
		}
	}
	return fmt.Sprintf("%s LIMIT %d OFFSET %d", query, f.GetLimit(), f.GetOffset())
}

// inPlaceholders returns "?, ?, ?" for n values
func inPlaceholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
