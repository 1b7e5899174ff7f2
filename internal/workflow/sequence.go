package workflow

import (
	"fmt"
	"strings"
)

// MaxSequence is the largest counter value a (location, year) scope may hand out.
const MaxSequence int64 = 1<<31 - 1

// FormatDisplayNumber renders <LOC>-<YEAR>-NNNN.
func FormatDisplayNumber(location string, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%04d", strings.ToUpper(location), year, seq)
}
