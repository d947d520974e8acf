package types

import (
	"fmt"
	"strings"
	"time"
)

// Placeholders recognized inside document numbering templates. Sequences are
// scoped per company and per resolved template, so a template carrying a
// date placeholder naturally resets its numbering when the date component
// rolls over.
const (
	PlaceholderNum   = "{num}"
	PlaceholderYear  = "{year}"
	PlaceholderMonth = "{month}"
	PlaceholderDay   = "{day}"
)

// ResolveNumberFormat substitutes the date placeholders for the given time,
// leaving {num} in place. The resolved string both keys the sequence scope
// and renders the display value.
func ResolveNumberFormat(format string, now time.Time) string {
	replacer := strings.NewReplacer(
		PlaceholderYear, now.Format("2006"),
		PlaceholderMonth, now.Format("01"),
		PlaceholderDay, now.Format("02"),
	)
	return replacer.Replace(format)
}

// RenderNumber substitutes the sequential value into a resolved format. A
// format without a {num} placeholder displays the bare value.
func RenderNumber(resolvedFormat string, value int64) string {
	if !strings.Contains(resolvedFormat, PlaceholderNum) {
		return fmt.Sprintf("%d", value)
	}
	return strings.ReplaceAll(resolvedFormat, PlaceholderNum, fmt.Sprintf("%d", value))
}
