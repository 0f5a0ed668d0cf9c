// Package ticketno computes date-scoped sequential ticket numbers in the
// form YYYYMMDDNNNNN: an 8-digit calendar date followed by a 5-digit
// zero-padded sequence, no separators. The sequence restarts at 1 each day.
package ticketno

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	prefixLen = 8
	suffixLen = 5

	// Length is the exact length of a well-formed ticket number.
	Length = prefixLen + suffixLen

	// MaxSequence is the largest sequence representable in the 5-digit
	// suffix. Exceeding it in a single day is a hard error, not a wrap.
	MaxSequence = 99999
)

// DatePrefix formats the calendar date of t as YYYYMMDD. Callers pass the
// submission's local time; the prefix reflects the submitter's calendar
// date, not the store's.
func DatePrefix(t time.Time) string {
	return t.Format("20060102")
}

// Format builds a full ticket number from a date prefix and a sequence.
func Format(prefix string, seq int) string {
	return prefix + fmt.Sprintf("%0*d", suffixLen, seq)
}

// Sequence parses the numeric suffix of a well-formed ticket number.
func Sequence(number string) (int, bool) {
	if !Valid(number) {
		return 0, false
	}
	n, err := strconv.Atoi(number[prefixLen:])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Valid reports whether number is exactly 13 digits.
func Valid(number string) bool {
	if len(number) != Length {
		return false
	}
	for i := 0; i < Length; i++ {
		if number[i] < '0' || number[i] > '9' {
			return false
		}
	}
	return true
}

// NextSequence returns the smallest unused positive sequence for the given
// date prefix: one past the maximum suffix already present among numbers.
// Counting entries instead of taking the max undercounts as soon as a
// ticket is deleted or a cache is stale, so the max is parsed explicitly.
// Malformed numbers and numbers under other prefixes are ignored.
func NextSequence(numbers []string, prefix string) int {
	max := 0
	for _, n := range numbers {
		if !strings.HasPrefix(n, prefix) {
			continue
		}
		if seq, ok := Sequence(n); ok && seq > max {
			max = seq
		}
	}
	return max + 1
}

// Next computes the full next ticket number for a submission on day,
// given the ticket numbers seen so far. The caller owns collision
// handling: two concurrent submissions can compute the same result, and
// the store's uniqueness constraint decides which one wins; the loser
// recomputes from fresh state and retries.
func Next(numbers []string, day time.Time) (string, error) {
	prefix := DatePrefix(day)
	seq := NextSequence(numbers, prefix)
	if seq > MaxSequence {
		return "", fmt.Errorf("ticketno: day %s exhausted all %d sequence numbers", prefix, MaxSequence)
	}
	return Format(prefix, seq), nil
}
