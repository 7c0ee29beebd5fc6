package param

import (
	"errors"
	"fmt"
)

var (
	// ErrZipMismatch reports a zipped group whose members do not line up.
	ErrZipMismatch = errors.New("zipped parameter group mismatch")
	// ErrInvalidBundle reports a bundle value that cannot be expanded.
	ErrInvalidBundle = errors.New("invalid parameter bundle")
)

// ZipPrefix marks a bundle key whose value is a zipped group.
const ZipPrefix = "zparams"

// Bundle is an ordered set of fields describing a family of records.
type Bundle struct {
	Fields []Field
}

// Field is one entry of a Bundle. Value is one of:
//
//   - a scalar (float64, string, bool), copied into every record
//   - []any of scalars, one Cartesian axis
//   - *Bundle, a sub-record expanded on its own and flattened into each record
//   - []*Bundle, an axis whose elements are sub-records
//   - *Zip, members that vary together index-wise
type Field struct {
	Key   string
	Value any
}

// Zip is a group of equal-length columns. The i-th combination takes the
// i-th element of every column.
type Zip struct {
	Keys    []string
	Columns [][]any
}

// NewBundle builds a bundle from fields in declaration order.
func NewBundle(fields ...Field) *Bundle {
	return &Bundle{Fields: fields}
}

// F is shorthand for a Field literal.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// ZipRows builds a zipped group from row records. Every row must carry the
// same keys; columns are ordered by key.
func ZipRows(rows ...Record) (*Zip, error) {
	if len(rows) == 0 {
		return &Zip{}, nil
	}
	keys := rows[0].Keys()
	z := &Zip{Keys: keys, Columns: make([][]any, len(keys))}
	for i, row := range rows {
		if len(row) != len(keys) {
			return nil, fmt.Errorf("%w: row %d has %d fields, want %d", ErrZipMismatch, i, len(row), len(keys))
		}
		for c, k := range keys {
			v, ok := row[k]
			if !ok {
				return nil, fmt.Errorf("%w: row %d is missing %q", ErrZipMismatch, i, k)
			}
			z.Columns[c] = append(z.Columns[c], NormalizeValue(v))
		}
	}
	return z, nil
}

// Len returns the number of combinations the group contributes, or an error
// when the columns disagree in length.
func (z *Zip) Len() (int, error) {
	if len(z.Keys) != len(z.Columns) {
		return 0, fmt.Errorf("%w: %d keys for %d columns", ErrZipMismatch, len(z.Keys), len(z.Columns))
	}
	if len(z.Columns) == 0 {
		return 0, nil
	}
	n := len(z.Columns[0])
	for i, col := range z.Columns[1:] {
		if len(col) != n {
			return 0, fmt.Errorf("%w: %q has %d values, %q has %d",
				ErrZipMismatch, z.Keys[0], n, z.Keys[i+1], len(col))
		}
	}
	return n, nil
}

// Validate checks every zipped group in b, recursively, without expanding.
func (b *Bundle) Validate() error {
	for _, f := range b.Fields {
		switch v := f.Value.(type) {
		case *Zip:
			if _, err := v.Len(); err != nil {
				return fmt.Errorf("field %q: %w", f.Key, err)
			}
		case *Bundle:
			if err := v.Validate(); err != nil {
				return fmt.Errorf("field %q: %w", f.Key, err)
			}
		case []*Bundle:
			for i, sub := range v {
				if err := sub.Validate(); err != nil {
					return fmt.Errorf("field %q[%d]: %w", f.Key, i, err)
				}
			}
		}
	}
	return nil
}
