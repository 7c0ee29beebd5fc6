// Package checkpoint describes the parameter transitions a run undergoes
// between checkpoint stages. Callbacks are plain data so they can travel to a
// child process inside an argument file.
package checkpoint

import (
	"errors"
	"fmt"

	"github.com/eliotheinrich/pysims/internal/param"
)

// ErrInvalidCallback reports a callback that cannot be applied.
var ErrInvalidCallback = errors.New("invalid checkpoint callback")

// Op names a callback operation.
type Op string

const (
	// OpSet overwrites (or adds) every key in Values.
	OpSet Op = "set"
	// OpUnset removes every key in Keys. Missing keys are an error.
	OpUnset Op = "unset"
	// OpScale multiplies the numeric value at Key by Factor.
	OpScale Op = "scale"
	// OpNoop leaves the record unchanged.
	OpNoop Op = "noop"
)

// Callback is one transition applied to a parameter record at a checkpoint
// boundary, e.g. switching a run from equilibration to sampling.
type Callback struct {
	Op     Op           `json:"op" yaml:"op"`
	Values param.Record `json:"values,omitempty" yaml:"values,omitempty"`
	Keys   []string     `json:"keys,omitempty" yaml:"keys,omitempty"`
	Key    string       `json:"key,omitempty" yaml:"key,omitempty"`
	Factor float64      `json:"factor,omitempty" yaml:"factor,omitempty"`
}

// Set returns a callback overwriting values.
func Set(values param.Record) Callback {
	return Callback{Op: OpSet, Values: values}
}

// Unset returns a callback removing keys.
func Unset(keys ...string) Callback {
	return Callback{Op: OpUnset, Keys: keys}
}

// Scale returns a callback multiplying key by factor.
func Scale(key string, factor float64) Callback {
	return Callback{Op: OpScale, Key: key, Factor: factor}
}

// Noop returns a callback that changes nothing.
func Noop() Callback {
	return Callback{Op: OpNoop}
}

// Apply mutates r in place.
func (c Callback) Apply(r param.Record) error {
	switch c.Op {
	case OpNoop, "":
		return nil
	case OpSet:
		if len(c.Values) == 0 {
			return fmt.Errorf("%w: set without values", ErrInvalidCallback)
		}
		for k, v := range c.Values.Clone() {
			r[k] = param.NormalizeValue(v)
		}
		return nil
	case OpUnset:
		if len(c.Keys) == 0 {
			return fmt.Errorf("%w: unset without keys", ErrInvalidCallback)
		}
		for _, k := range c.Keys {
			if _, ok := r[k]; !ok {
				return fmt.Errorf("%w: unset %q: no such parameter", ErrInvalidCallback, k)
			}
			delete(r, k)
		}
		return nil
	case OpScale:
		if c.Key == "" {
			return fmt.Errorf("%w: scale without key", ErrInvalidCallback)
		}
		f, ok := r.Float(c.Key)
		if !ok {
			return fmt.Errorf("%w: scale %q: not a number", ErrInvalidCallback, c.Key)
		}
		r[c.Key] = f * c.Factor
		return nil
	default:
		return fmt.Errorf("%w: unknown op %q", ErrInvalidCallback, c.Op)
	}
}

func (c Callback) String() string {
	switch c.Op {
	case OpSet:
		return "set " + param.Canonical(c.Values)
	case OpUnset:
		return fmt.Sprintf("unset %v", c.Keys)
	case OpScale:
		return fmt.Sprintf("scale %s by %g", c.Key, c.Factor)
	default:
		return "noop"
	}
}

// Chain is the ordered list of callbacks, one per checkpoint stage.
type Chain []Callback

// Stages returns the number of stages a job with this chain runs, the base
// stage included.
func (c Chain) Stages() int {
	return len(c) + 1
}

// Verify applies every callback to a fresh copy of every record. Each stage
// rebuilds its configurations from the original records, so callbacks never
// see each other's changes. The first failure is returned wrapped in
// ErrInvalidCallback, so a bad chain is rejected before any work is submitted.
func Verify(records []param.Record, callbacks ...Callback) error {
	for i, r := range records {
		for j, cb := range callbacks {
			cp := r.Clone()
			if cp == nil {
				cp = param.Record{}
			}
			if err := cb.Apply(cp); err != nil {
				if !errors.Is(err, ErrInvalidCallback) {
					err = fmt.Errorf("%w: %v", ErrInvalidCallback, err)
				}
				return fmt.Errorf("record %d, callback %d (%s): %w", i, j, cb, err)
			}
		}
	}
	return nil
}
