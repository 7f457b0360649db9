package consult

import "fmt"

// FormatDuration renders elapsed seconds as "M分S秒" for the report footer.
// Fractional seconds are truncated.
func FormatDuration(seconds float64) string {
	total := int(seconds)
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("%d分%d秒", total/60, total%60)
}
