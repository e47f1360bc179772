package reconstruct

import "github.com/ginjaninja78/guest-invoice-chunker/internal/types"

// IsComplete reports whether rec may be emitted: every required field is
// populated, there is at least one service line and the total is positive.
// The pseudo-field "total_line" also requires an explicit total line.
//
// This is the only gate used both when a new guest header arrives mid-page
// and at the end of every page.
func IsComplete(rec *types.GuestRecord, required []string) bool {
	if rec == nil {
		return false
	}
	for _, field := range required {
		if field == types.FieldTotalLine {
			if !rec.IsComplete {
				return false
			}
			continue
		}
		if rec.Field(field) == "" {
			return false
		}
	}
	return len(rec.Services) > 0 && rec.TotalAmount > 0
}
