package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// TimeUnit names the unit a CSV timestamp column is expressed in.
type TimeUnit string

const (
	UnitSeconds TimeUnit = "seconds"
	UnitMillis  TimeUnit = "millis"
)

// ParseOffset converts a raw timestamp field into seconds. Power and host
// captures record seconds; packet captures record epoch milliseconds.
func ParseOffset(raw string, unit TimeUnit) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("empty time value")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse time %q: %w", raw, err)
	}
	if unit == UnitMillis {
		v /= 1000.0
	}
	return v, nil
}
