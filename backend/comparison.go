package backend

import (
	"strings"

	"github.com/pkg/errors"
)

// Comparison is the relation tested by [Backend.Compare] between a value and a threshold.
type Comparison int

const (
	GE Comparison = iota // value >= threshold
	GT                   // value > threshold
	LE                   // value <= threshold
	LT                   // value < threshold
	EQ                   // value == threshold
	NE                   // value != threshold
)

var comparisonNames = [...]string{"GE", "GT", "LE", "LT", "EQ", "NE"}

func (c Comparison) String() string {
	if c < 0 || int(c) >= len(comparisonNames) {
		return "Comparison(?)"
	}
	return comparisonNames[c]
}

// ParseComparison parses the name of a comparison, case insensitive.
func ParseComparison(s string) (Comparison, error) {
	for i, name := range comparisonNames {
		if strings.EqualFold(s, name) {
			return Comparison(i), nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidArgument, "unknown comparison %q", s)
}

// Validate returns [ErrInvalidArgument] if c is none of the defined comparisons.
func (c Comparison) Validate() error {
	if c < 0 || int(c) >= len(comparisonNames) {
		return errors.Wrapf(ErrInvalidArgument, "unknown comparison %d", int(c))
	}
	return nil
}

// Holds reports whether the comparison holds for a value whose order with
// respect to the threshold is order: negative if value < threshold, zero if
// equal, positive otherwise.
func (c Comparison) Holds(order int) bool {
	switch c {
	case GE:
		return order >= 0
	case GT:
		return order > 0
	case LE:
		return order <= 0
	case LT:
		return order < 0
	case EQ:
		return order == 0
	case NE:
		return order != 0
	}
	return false
}

// Order returns the sign of value - threshold.
func Order(value uint64, threshold int64) int {
	switch {
	case threshold < 0:
		return 1
	case value < uint64(threshold):
		return -1
	case value > uint64(threshold):
		return 1
	}
	return 0
}
