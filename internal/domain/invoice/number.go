package invoice

import (
	"time"

	"github.com/stackbill/stackbill/internal/types"
)

// NumberFormat describes one invoice numbering sequence: a display template
// plus the configured starting value and increment. Service codes run the
// same machinery through their own format type.
type NumberFormat struct {
	Format    string
	Start     int64
	Increment int64
}

// ResolveFormat substitutes the date placeholders for the given time,
// leaving {num} in place.
func ResolveFormat(format string, now time.Time) string {
	return types.ResolveNumberFormat(format, now)
}

// DisplayNumber renders the invoice's display identifier from its stored
// format and numeric value.
func (i *Invoice) DisplayNumber() string {
	return types.RenderNumber(i.NumberFormat, i.Number)
}
