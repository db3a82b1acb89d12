// Package types provides the value conversion handlers applied to statement
// parameters and the runtime value types they understand.
package types

import (
	"database/sql/driver"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// DateTime represents a timestamp
type DateTime = time.Time

// Json represents a JSON value
type Json = interface{}

// Decimal represents a decimal number kept in its exact textual form.
type Decimal struct {
	value string
}

// NewDecimal creates a new decimal from string
func NewDecimal(value string) Decimal {
	return Decimal{value: strings.TrimSpace(value)}
}

// String returns the string representation
func (d Decimal) String() string {
	return d.value
}

// IsZero reports whether d holds no value.
func (d Decimal) IsZero() bool { return d.value == "" }

// Round formats d with exactly scale digits after the point.
func (d Decimal) Round(scale int) (Decimal, error) {
	r, ok := new(big.Rat).SetString(d.value)
	if !ok {
		return Decimal{}, fmt.Errorf("invalid decimal %q", d.value)
	}
	return Decimal{value: r.FloatString(scale)}, nil
}

// Value implements driver.Valuer.
func (d Decimal) Value() (driver.Value, error) {
	if d.value == "" {
		return nil, nil
	}
	return d.value, nil
}

// Scan implements sql.Scanner.
func (d *Decimal) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		d.value = ""
	case string:
		d.value = v
	case []byte:
		d.value = string(v)
	case int64:
		d.value = fmt.Sprint(v)
	case float64:
		d.value = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Errorf("cannot scan %T into Decimal", src)
	}
	return nil
}
