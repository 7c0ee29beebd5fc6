package frame

import (
	"bytes"
	"fmt"
	"math"
	"sort"

	"github.com/eliotheinrich/pysims/internal/param"
)

// Combine merges two frames. Slides with equal parameter records pool their
// samples; other slides are kept side by side. The result is normalized
// (slides and samples in canonical order, shared parameters factored out), so
// Combine is associative and commutative bit for bit. Neither input is
// modified.
func Combine(a, b *Frame) (*Frame, error) {
	var (
		order  []string
		merged = map[string]*Slide{}
	)
	add := func(f *Frame) error {
		if f == nil {
			return nil
		}
		for i, s := range f.Slides {
			full := f.SlideParams(i)
			key := param.Canonical(full)
			cur, ok := merged[key]
			if !ok {
				c := s.Clone()
				c.Params = full
				merged[key] = c
				order = append(order, key)
				continue
			}
			if err := cur.pool(s); err != nil {
				return fmt.Errorf("slide %s: %w", key, err)
			}
		}
		return nil
	}
	if err := add(a); err != nil {
		return nil, err
	}
	if err := add(b); err != nil {
		return nil, err
	}

	sort.Strings(order)
	slides := make([]*Slide, len(order))
	for i, key := range order {
		slides[i] = merged[key]
		slides[i].sortSamples()
	}

	out := &Frame{Slides: slides}
	switch {
	case a == nil && b == nil:
	case a == nil:
		out.Metadata = b.Metadata
	case b == nil:
		out.Metadata = a.Metadata
	default:
		out.Metadata = a.Metadata.Merge(b.Metadata)
	}
	out.factor()
	return out, nil
}

// pool appends o's samples to s. Both slides must report the same
// observables with the same widths.
func (s *Slide) pool(o *Slide) error {
	if len(s.Data) != len(o.Data) {
		return fmt.Errorf("%w: %d observables vs %d", ErrIncompatible, len(s.Data), len(o.Data))
	}
	for k, samples := range o.Data {
		cur, ok := s.Data[k]
		if !ok {
			return fmt.Errorf("%w: observable %q missing", ErrIncompatible, k)
		}
		if w := width(cur); w >= 0 {
			for _, sm := range samples {
				if len(sm.Mean) != w {
					return fmt.Errorf("%w: observable %q has width %d, want %d", ErrIncompatible, k, len(sm.Mean), w)
				}
			}
		}
		for _, sm := range samples {
			cur = append(cur, sm.clone())
		}
		s.Data[k] = cur
	}
	if bytes.Compare(o.State, s.State) > 0 {
		s.State = append([]byte(nil), o.State...)
	}
	return nil
}

func width(samples []Sample) int {
	if len(samples) == 0 {
		return -1
	}
	return len(samples[0].Mean)
}

func (s *Slide) sortSamples() {
	for _, samples := range s.Data {
		sort.SliceStable(samples, func(i, j int) bool {
			return lessSample(samples[i], samples[j])
		})
	}
}

func lessSample(a, b Sample) bool {
	if a.N != b.N {
		return a.N < b.N
	}
	if c := compareFloats(a.Mean, b.Mean); c != 0 {
		return c < 0
	}
	return compareFloats(a.M2, b.M2) < 0
}

// compareFloats orders element-wise, with -0 before +0 and NaN after every
// number.
func compareFloats(a, b []float64) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		an, bn := math.IsNaN(a[i]), math.IsNaN(b[i])
		switch {
		case an && bn:
			continue
		case an:
			return 1
		case bn:
			return -1
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		case math.Signbit(a[i]) != math.Signbit(b[i]):
			if math.Signbit(a[i]) {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

// factor moves parameters shared by every slide into f.Params. Slide params
// must hold complete records on entry.
func (f *Frame) factor() {
	f.Params = param.Record{}
	if len(f.Slides) == 0 {
		return
	}
	first := f.Slides[0].Params
	for _, k := range first.Keys() {
		want := param.Canonical(param.Record{k: first[k]})
		shared := true
		for _, s := range f.Slides[1:] {
			v, ok := s.Params[k]
			if !ok || param.Canonical(param.Record{k: v}) != want {
				shared = false
				break
			}
		}
		if shared {
			f.Params[k] = first[k]
		}
	}
	for _, s := range f.Slides {
		own := param.Record{}
		for k, v := range s.Params {
			if _, ok := f.Params[k]; !ok {
				own[k] = v
			}
		}
		s.Params = own
	}
}

// Reduce collapses the samples of every observable into a single summary
// with the pairwise mean/variance update. Samples are folded in canonical
// order, so the result depends only on the set of samples.
func (f *Frame) Reduce() error {
	for _, s := range f.Slides {
		if err := s.Reduce(); err != nil {
			return err
		}
	}
	return nil
}

// Reduce collapses the samples of every observable of s.
func (s *Slide) Reduce() error {
	s.sortSamples()
	for k, samples := range s.Data {
		if len(samples) < 2 {
			continue
		}
		acc := samples[0].clone()
		for _, sm := range samples[1:] {
			next, err := mergeSample(acc, sm)
			if err != nil {
				return fmt.Errorf("observable %q: %w", k, err)
			}
			acc = next
		}
		s.Data[k] = []Sample{acc}
	}
	return nil
}

func mergeSample(a, b Sample) (Sample, error) {
	if len(a.Mean) != len(b.Mean) {
		return Sample{}, fmt.Errorf("%w: width %d vs %d", ErrIncompatible, len(a.Mean), len(b.Mean))
	}
	n := a.N + b.N
	out := Sample{N: n, Mean: make([]float64, len(a.Mean)), M2: make([]float64, len(a.Mean))}
	na, nb := float64(a.N), float64(b.N)
	for i := range a.Mean {
		delta := b.Mean[i] - a.Mean[i]
		out.Mean[i] = a.Mean[i] + delta*nb/float64(n)
		out.M2[i] = at(a.M2, i) + at(b.M2, i) + delta*delta*na*nb/float64(n)
	}
	return out, nil
}

func at(xs []float64, i int) float64 {
	if xs == nil {
		return 0
	}
	return xs[i]
}

// Extend appends prior's timeseries in front of s's, run by run: after a
// resumed run, s holds the continuation and prior the history. Observables
// present on only one side are kept as they are.
func (s *Slide) Extend(prior *Slide) error {
	for k, old := range prior.Data {
		cur, ok := s.Data[k]
		if !ok {
			cp := make([]Sample, len(old))
			for i, sm := range old {
				cp[i] = sm.clone()
			}
			s.Data[k] = cp
			continue
		}
		if len(cur) != len(old) {
			return fmt.Errorf("%w: observable %q has %d runs, prior has %d", ErrIncompatible, k, len(cur), len(old))
		}
		for i := range cur {
			if cur[i].N != 1 || old[i].N != 1 {
				return fmt.Errorf("%w: observable %q was reduced and cannot be extended", ErrIncompatible, k)
			}
			mean := make([]float64, 0, len(old[i].Mean)+len(cur[i].Mean))
			mean = append(mean, old[i].Mean...)
			mean = append(mean, cur[i].Mean...)
			cur[i] = Sample{N: 1, Mean: mean}
		}
	}
	return nil
}
