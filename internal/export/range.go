package export

import (
	"time"

	"appointo/internal/apperr"
)

// MaxRangeDays is the longest export range accepted.
const MaxRangeDays = 366

// ParseRange parses an inclusive YYYY-MM-DD range and returns it as [from, to+1d) in UTC.
func ParseRange(fromStr, toStr string) (from, to time.Time, err error) {
	if fromStr == "" || toStr == "" {
		return time.Time{}, time.Time{}, apperr.BadRequest("from and to are required")
	}
	from, err = time.Parse("2006-01-02", fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, apperr.BadRequest("invalid from format; expected YYYY-MM-DD")
	}
	to, err = time.Parse("2006-01-02", toStr)
	if err != nil {
		return time.Time{}, time.Time{}, apperr.BadRequest("invalid to format; expected YYYY-MM-DD")
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, apperr.BadRequest("from must be before or equal to to")
	}
	if int(to.Sub(from).Hours()/24) > MaxRangeDays {
		return time.Time{}, time.Time{}, apperr.BadRequest("date range exceeds maximum of %d days", MaxRangeDays)
	}
	return from, to.AddDate(0, 0, 1), nil
}
