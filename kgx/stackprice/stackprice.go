// Package stackprice converts between item counts and the stack notation
// used for prices in chat: a "st" is one stack of 64 items and an "lc" is
// one large chest of 3456 items. Prices may be given as a sum of terms,
// e.g. "2lc + 3.5st + 12".
package stackprice

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	// Stack is the item count of one stack.
	Stack = 64
	// LargeChest is the item count of one full large chest (54 stacks).
	LargeChest = 3456
)

var (
	priceRe = regexp.MustCompile(`^\d+((\.\d+)?(st|lc))?(\+\d+((\.\d+)?(st|lc))?)*$`)
	spaceRe = regexp.MustCompile(`\s`)
)

// Parse converts a stack-notation price into an item count. A fractional
// term must carry a unit ("3.5st", never a bare "3.5"); the final count is
// truncated to a whole number.
func Parse(value string) (int64, error) {
	v := spaceRe.ReplaceAllString(strings.ToLower(value), "")
	if v == "" || !priceRe.MatchString(v) {
		return 0, fmt.Errorf("invalid price %q", value)
	}

	var total float64
	for _, term := range strings.Split(v, "+") {
		mult := 1.0
		switch {
		case strings.HasSuffix(term, "lc"):
			mult = LargeChest
			term = strings.TrimSuffix(term, "lc")
		case strings.HasSuffix(term, "st"):
			mult = Stack
			term = strings.TrimSuffix(term, "st")
		}
		f, err := strconv.ParseFloat(term, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid price term %q", term)
		}
		total += f * mult
	}
	return int64(total), nil
}

// Format renders an item count in stack notation. Counts below one stack
// are returned as a plain number.
func Format(n int64) string {
	if n < Stack {
		return strconv.FormatInt(n, 10)
	}

	lc := n / LargeChest
	rem := n % LargeChest
	st := rem / Stack
	items := rem % Stack

	var parts []string
	if lc > 0 {
		parts = append(parts, fmt.Sprintf("%dlc", lc))
	}
	if st > 0 {
		parts = append(parts, fmt.Sprintf("%dst", st))
	}
	if items > 0 {
		parts = append(parts, strconv.FormatInt(items, 10))
	}
	return strings.Join(parts, " ")
}

// FormatWithCount renders a count in stack notation, appending the raw
// count in parentheses once the price reaches a full stack.
func FormatWithCount(n int64) string {
	if n < Stack {
		return strconv.FormatInt(n, 10)
	}
	return fmt.Sprintf("%s (%d)", Format(n), n)
}
