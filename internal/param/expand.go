package param

import "fmt"

// Expand unbundles b into concrete records. The first declared axis varies
// slowest, zipped groups advance all their members together, and nested
// bundles are expanded independently and flattened into each record. The
// result is a pure function of b.
func Expand(b *Bundle) ([]Record, error) {
	if b == nil {
		return nil, fmt.Errorf("%w: nil bundle", ErrInvalidBundle)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	records := []Record{{}}
	for _, f := range b.Fields {
		options, err := fieldOptions(f)
		if err != nil {
			return nil, err
		}
		next := make([]Record, 0, len(records)*len(options))
		for _, r := range records {
			for _, opt := range options {
				next = append(next, Merge(r, opt))
			}
		}
		records = next
	}
	return records, nil
}

// Count returns the number of records Expand would produce.
func Count(b *Bundle) (int, error) {
	if b == nil {
		return 0, fmt.Errorf("%w: nil bundle", ErrInvalidBundle)
	}
	if err := b.Validate(); err != nil {
		return 0, err
	}
	total := 1
	for _, f := range b.Fields {
		n, err := fieldCount(f)
		if err != nil {
			return 0, err
		}
		total *= n
	}
	return total, nil
}

func fieldCount(f Field) (int, error) {
	switch v := f.Value.(type) {
	case []any:
		return len(v), nil
	case *Bundle:
		return Count(v)
	case []*Bundle:
		total := 0
		for _, sub := range v {
			n, err := Count(sub)
			if err != nil {
				return 0, err
			}
			total += n
		}
		return total, nil
	case *Zip:
		return v.Len()
	default:
		return 1, nil
	}
}

// fieldOptions lists the partial records one field contributes to the product.
func fieldOptions(f Field) ([]Record, error) {
	switch v := f.Value.(type) {
	case []any:
		out := make([]Record, len(v))
		for i, x := range v {
			if !isScalar(x) {
				return nil, fmt.Errorf("%w: %q[%d] is %T, want a scalar", ErrInvalidBundle, f.Key, i, x)
			}
			out[i] = Record{f.Key: NormalizeValue(x)}
		}
		return out, nil
	case *Bundle:
		return Expand(v)
	case []*Bundle:
		var out []Record
		for _, sub := range v {
			recs, err := Expand(sub)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f.Key, err)
			}
			out = append(out, recs...)
		}
		return out, nil
	case *Zip:
		n, err := v.Len()
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Key, err)
		}
		out := make([]Record, n)
		for i := 0; i < n; i++ {
			r := make(Record, len(v.Keys))
			for c, k := range v.Keys {
				r[k] = NormalizeValue(v.Columns[c][i])
			}
			out[i] = r
		}
		return out, nil
	default:
		if !isScalar(v) {
			return nil, fmt.Errorf("%w: %q is %T", ErrInvalidBundle, f.Key, v)
		}
		return []Record{{f.Key: NormalizeValue(v)}}, nil
	}
}

func isScalar(v any) bool {
	switch NormalizeValue(v).(type) {
	case float64, string, bool:
		return true
	}
	return false
}

// Split divides records into contiguous, balanced slices, one per node, in
// expansion order. The node count is clamped to the number of records.
func Split(records []Record, nodes int) [][]Record {
	n := len(records)
	if n == 0 {
		return nil
	}
	if nodes < 1 {
		nodes = 1
	}
	if nodes > n {
		nodes = n
	}
	out := make([][]Record, nodes)
	for i := 0; i < nodes; i++ {
		out[i] = records[i*n/nodes : (i+1)*n/nodes]
	}
	return out
}
