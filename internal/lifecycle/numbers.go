package lifecycle

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

const numberAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// AgreementNumber returns a new human-facing contract number: AGR-<millis>-<random>.
func AgreementNumber(now time.Time) string {
	return fmt.Sprintf("AGR-%d-%s", now.UnixMilli(), randomSuffix(6))
}

// JobNumber returns a new human-facing job number: JOB-<millis>-<random>.
func JobNumber(now time.Time) string {
	return fmt.Sprintf("JOB-%d-%s", now.UnixMilli(), randomSuffix(4))
}

func randomSuffix(n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(numberAlphabet[rand.IntN(len(numberAlphabet))])
	}
	return b.String()
}
