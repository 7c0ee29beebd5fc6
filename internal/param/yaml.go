package param

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseBundleYAML decodes a YAML (or JSON) mapping into a Bundle, keeping the
// declaration order of its keys.
func ParseBundleYAML(data []byte) (*Bundle, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing bundle: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidBundle)
	}
	return ParseBundle(doc.Content[0])
}

// ParseBundle converts a YAML mapping node into a Bundle.
//
// Keys prefixed with "zparams" hold zipped groups, written either as a list
// of rows or as a mapping of equal-length columns. Nested mappings become
// sub-bundles and lists of mappings become axes of sub-bundles.
func ParseBundle(node *yaml.Node) (*Bundle, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: line %d: expected a mapping", ErrInvalidBundle, node.Line)
	}
	b := &Bundle{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		val := node.Content[i+1]
		var (
			v   any
			err error
		)
		if strings.HasPrefix(key, ZipPrefix) {
			v, err = parseZip(key, val)
		} else {
			v, err = parseValue(key, val)
		}
		if err != nil {
			return nil, err
		}
		b.Fields = append(b.Fields, Field{Key: key, Value: v})
	}
	return b, nil
}

func parseValue(key string, node *yaml.Node) (any, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		return parseScalar(key, node)
	case yaml.MappingNode:
		return ParseBundle(node)
	case yaml.SequenceNode:
		if len(node.Content) > 0 && node.Content[0].Kind == yaml.MappingNode {
			subs := make([]*Bundle, 0, len(node.Content))
			for _, item := range node.Content {
				sub, err := ParseBundle(item)
				if err != nil {
					return nil, fmt.Errorf("field %q: %w", key, err)
				}
				subs = append(subs, sub)
			}
			return subs, nil
		}
		values := make([]any, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("%w: line %d: %q mixes lists and scalars", ErrInvalidBundle, item.Line, key)
			}
			s, err := parseScalar(key, item)
			if err != nil {
				return nil, err
			}
			values = append(values, s)
		}
		return values, nil
	case yaml.AliasNode:
		return parseValue(key, node.Alias)
	default:
		return nil, fmt.Errorf("%w: line %d: unsupported value for %q", ErrInvalidBundle, node.Line, key)
	}
}

func parseScalar(key string, node *yaml.Node) (any, error) {
	var v any
	if err := node.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: line %d: %q: %v", ErrInvalidBundle, node.Line, key, err)
	}
	v = NormalizeValue(v)
	if !isScalar(v) {
		return nil, fmt.Errorf("%w: line %d: %q must not be null", ErrInvalidBundle, node.Line, key)
	}
	return v, nil
}

func parseZip(key string, node *yaml.Node) (*Zip, error) {
	switch node.Kind {
	case yaml.SequenceNode:
		z := &Zip{}
		for row, item := range node.Content {
			if item.Kind != yaml.MappingNode {
				return nil, fmt.Errorf("%w: line %d: %q rows must be mappings", ErrInvalidBundle, item.Line, key)
			}
			if row == 0 {
				for i := 0; i+1 < len(item.Content); i += 2 {
					z.Keys = append(z.Keys, item.Content[i].Value)
				}
				z.Columns = make([][]any, len(z.Keys))
			}
			if len(item.Content)/2 != len(z.Keys) {
				return nil, fmt.Errorf("%w: %q row %d has %d fields, want %d",
					ErrZipMismatch, key, row, len(item.Content)/2, len(z.Keys))
			}
			for i := 0; i+1 < len(item.Content); i += 2 {
				k := item.Content[i].Value
				col := indexOf(z.Keys, k)
				if col < 0 {
					return nil, fmt.Errorf("%w: %q row %d has unexpected field %q", ErrZipMismatch, key, row, k)
				}
				if item.Content[i+1].Kind != yaml.ScalarNode {
					return nil, fmt.Errorf("%w: line %d: %q.%s must be a scalar", ErrInvalidBundle, item.Line, key, k)
				}
				v, err := parseScalar(k, item.Content[i+1])
				if err != nil {
					return nil, err
				}
				z.Columns[col] = append(z.Columns[col], v)
			}
		}
		if _, err := z.Len(); err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		return z, nil
	case yaml.MappingNode:
		z := &Zip{}
		for i := 0; i+1 < len(node.Content); i += 2 {
			k := node.Content[i].Value
			v, err := parseValue(k, node.Content[i+1])
			if err != nil {
				return nil, err
			}
			col, ok := v.([]any)
			if !ok {
				return nil, fmt.Errorf("%w: %q.%s must be a list of scalars", ErrInvalidBundle, key, k)
			}
			z.Keys = append(z.Keys, k)
			z.Columns = append(z.Columns, col)
		}
		if _, err := z.Len(); err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		return z, nil
	default:
		return nil, fmt.Errorf("%w: line %d: %q must be a list or mapping", ErrInvalidBundle, node.Line, key)
	}
}

func indexOf(keys []string, k string) int {
	for i, key := range keys {
		if key == k {
			return i
		}
	}
	return -1
}
