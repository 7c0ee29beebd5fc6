// Package frame holds simulation results: a Frame is a set of Slides, one per
// distinct parameter record, each carrying per-run samples of the observables
// a simulator reported. Frames from independent runs merge with Combine, which
// is associative and commutative.
package frame

import (
	"errors"
	"math"

	"github.com/eliotheinrich/pysims/internal/param"
)

// ErrIncompatible reports frames or slides whose shapes cannot be merged.
var ErrIncompatible = errors.New("incompatible result data")

// Frame is a merged result aggregate. Params holds the values shared by every
// slide; each slide's own Params hold the rest.
type Frame struct {
	Params   param.Record `json:"params" msgpack:"params"`
	Metadata Metadata     `json:"metadata" msgpack:"metadata"`
	Slides   []*Slide     `json:"slides" msgpack:"slides"`
}

// Metadata describes how a frame was produced.
type Metadata struct {
	// TotalTime is wall-clock seconds. Parallel parts overlap, so merging
	// takes the maximum rather than the sum.
	TotalTime  float64 `json:"total_time" msgpack:"total_time"`
	NumJobs    int     `json:"num_jobs" msgpack:"num_jobs"`
	NumThreads int     `json:"num_threads" msgpack:"num_threads"`
	NumRuns    int     `json:"num_runs" msgpack:"num_runs"`
}

// Merge combines two metadata blocks.
func (m Metadata) Merge(o Metadata) Metadata {
	return Metadata{
		TotalTime:  math.Max(m.TotalTime, o.TotalTime),
		NumJobs:    m.NumJobs + o.NumJobs,
		NumThreads: m.NumThreads + o.NumThreads,
		NumRuns:    m.NumRuns + o.NumRuns,
	}
}

// Slide is the result of one parameter record.
type Slide struct {
	Params param.Record        `json:"params" msgpack:"params"`
	Data   map[string][]Sample `json:"data" msgpack:"data"`
	// State is the serialized simulator state after the most recent run,
	// used to continue the simulation from a checkpoint.
	State []byte `json:"state,omitempty" msgpack:"state,omitempty"`
}

// Sample summarizes N runs of one observable: element-wise mean and sum of
// squared deviations. A raw run has N == 1 and no M2.
type Sample struct {
	N    int       `json:"n" msgpack:"n"`
	Mean []float64 `json:"mean" msgpack:"mean"`
	M2   []float64 `json:"m2,omitempty" msgpack:"m2,omitempty"`
}

// NewSample wraps the values of a single run.
func NewSample(values ...float64) Sample {
	return Sample{N: 1, Mean: values}
}

// Std returns the element-wise population standard deviation.
func (s Sample) Std() []float64 {
	out := make([]float64, len(s.Mean))
	if s.N < 2 || s.M2 == nil {
		return out
	}
	for i := range out {
		out[i] = math.Sqrt(s.M2[i] / float64(s.N))
	}
	return out
}

// New returns an empty frame.
func New() *Frame {
	return &Frame{Params: param.Record{}}
}

// FromSlides builds a frame from independent slides, merging slides whose
// parameter records are equal.
func FromSlides(meta Metadata, slides ...*Slide) (*Frame, error) {
	f := &Frame{Params: param.Record{}, Metadata: meta}
	for _, s := range slides {
		next, err := Combine(f, &Frame{Params: param.Record{}, Slides: []*Slide{s}})
		if err != nil {
			return nil, err
		}
		next.Metadata = meta
		f = next
	}
	return f, nil
}

// Len returns the number of slides.
func (f *Frame) Len() int {
	return len(f.Slides)
}

// SlideParams returns the complete parameter record of slide i: the frame's
// shared values overlaid with the slide's own.
func (f *Frame) SlideParams(i int) param.Record {
	return param.Merge(f.Params, f.Slides[i].Params)
}

// Runs returns the largest number of runs recorded for any observable.
func (s *Slide) Runs() int {
	runs := 0
	for _, samples := range s.Data {
		n := 0
		for _, sm := range samples {
			n += sm.N
		}
		if n > runs {
			runs = n
		}
	}
	return runs
}

// Clone returns a deep copy of s.
func (s *Slide) Clone() *Slide {
	out := &Slide{
		Params: s.Params.Clone(),
		Data:   make(map[string][]Sample, len(s.Data)),
	}
	if s.State != nil {
		out.State = append([]byte(nil), s.State...)
	}
	for k, samples := range s.Data {
		cp := make([]Sample, len(samples))
		for i, sm := range samples {
			cp[i] = sm.clone()
		}
		out.Data[k] = cp
	}
	return out
}

func (s Sample) clone() Sample {
	out := Sample{N: s.N, Mean: append([]float64(nil), s.Mean...)}
	if s.M2 != nil {
		out.M2 = append([]float64(nil), s.M2...)
	}
	return out
}
