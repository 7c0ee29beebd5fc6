package frame_test

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/eliotheinrich/pysims/internal/frame"
	"github.com/eliotheinrich/pysims/internal/param"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func slide(p param.Record, key string, runs ...[]float64) *frame.Slide {
	s := &frame.Slide{Params: p, Data: map[string][]frame.Sample{}}
	for _, r := range runs {
		s.Data[key] = append(s.Data[key], frame.NewSample(r...))
	}
	return s
}

func single(meta frame.Metadata, slides ...*frame.Slide) *frame.Frame {
	f, err := frame.FromSlides(meta, slides...)
	if err != nil {
		panic(err)
	}
	return f
}

func TestCombineMatchesByParams(t *testing.T) {
	a := single(frame.Metadata{TotalTime: 3, NumJobs: 1, NumThreads: 4, NumRuns: 2},
		slide(param.Record{"L": 16.0, "p": 0.1}, "entropy", []float64{1}),
		slide(param.Record{"L": 16.0, "p": 0.2}, "entropy", []float64{2}),
	)
	b := single(frame.Metadata{TotalTime: 5, NumJobs: 1, NumThreads: 4, NumRuns: 2},
		slide(param.Record{"L": 16.0, "p": 0.2}, "entropy", []float64{3}),
		slide(param.Record{"L": 16.0, "p": 0.3}, "entropy", []float64{4}),
	)

	c, err := frame.Combine(a, b)
	require.NoError(t, err)
	require.Equal(t, 3, c.Len())
	require.Equal(t, param.Record{"L": 16.0}, c.Params)
	require.Equal(t, param.Record{"p": 0.2}, c.Slides[1].Params)
	require.Len(t, c.Slides[1].Data["entropy"], 2)
	require.Equal(t, frame.Metadata{TotalTime: 5, NumJobs: 2, NumThreads: 8, NumRuns: 4}, c.Metadata)

	// inputs untouched
	require.Equal(t, 2, a.Len())
	require.Len(t, a.Slides[1].Data["entropy"], 1)
}

func TestCombineEmptyIsIdentity(t *testing.T) {
	a := single(frame.Metadata{NumJobs: 1},
		slide(param.Record{"p": 0.5}, "x", []float64{1, 2}))
	c, err := frame.Combine(frame.New(), a)
	require.NoError(t, err)
	require.Equal(t, a.Slides, c.Slides)
	require.Equal(t, a.Params, c.Params)
}

func TestCombineIncompatible(t *testing.T) {
	tests := []struct {
		name string
		b    *frame.Frame
	}{
		{"different observables", single(frame.Metadata{},
			slide(param.Record{"p": 1.0}, "y", []float64{1}))},
		{"different widths", single(frame.Metadata{},
			slide(param.Record{"p": 1.0}, "x", []float64{1, 2}))},
	}
	a := single(frame.Metadata{}, slide(param.Record{"p": 1.0}, "x", []float64{1}))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := frame.Combine(a, tt.b)
			if !errors.Is(err, frame.ErrIncompatible) {
				t.Errorf("Combine() error = %v, want ErrIncompatible", err)
			}
		})
	}
}

func TestReduce(t *testing.T) {
	f := single(frame.Metadata{},
		slide(param.Record{"p": 0.1}, "x", []float64{1, 10}, []float64{3, 10}, []float64{5, 10}, []float64{7, 10}))
	require.NoError(t, f.Reduce())

	samples := f.Slides[0].Data["x"]
	require.Len(t, samples, 1)
	require.Equal(t, 4, samples[0].N)
	require.InDelta(t, 4.0, samples[0].Mean[0], 1e-12)
	require.InDelta(t, 10.0, samples[0].Mean[1], 1e-12)
	// population variance of {1,3,5,7} is 5
	require.InDelta(t, math.Sqrt(5), samples[0].Std()[0], 1e-12)
	require.InDelta(t, 0.0, samples[0].Std()[1], 1e-12)
}

func TestReduceThenCombineStaysConsistent(t *testing.T) {
	a := single(frame.Metadata{}, slide(param.Record{"p": 0.1}, "x", []float64{1}, []float64{3}))
	b := single(frame.Metadata{}, slide(param.Record{"p": 0.1}, "x", []float64{5}, []float64{7}))
	require.NoError(t, a.Reduce())
	require.NoError(t, b.Reduce())
	c, err := frame.Combine(a, b)
	require.NoError(t, err)
	require.NoError(t, c.Reduce())

	s := c.Slides[0].Data["x"][0]
	require.Equal(t, 4, s.N)
	require.InDelta(t, 4.0, s.Mean[0], 1e-12)
	require.InDelta(t, 20.0, s.M2[0], 1e-12)
}

func TestExtend(t *testing.T) {
	prior := slide(param.Record{"p": 0.1}, "x", []float64{1, 2}, []float64{5, 6})
	prior.Data["only_prior"] = []frame.Sample{frame.NewSample(9)}
	cur := slide(param.Record{"p": 0.1}, "x", []float64{3}, []float64{7})

	require.NoError(t, cur.Extend(prior))
	require.Equal(t, []float64{1, 2, 3}, cur.Data["x"][0].Mean)
	require.Equal(t, []float64{5, 6, 7}, cur.Data["x"][1].Mean)
	require.Equal(t, []float64{9}, cur.Data["only_prior"][0].Mean)

	short := slide(param.Record{"p": 0.1}, "x", []float64{3})
	err := short.Extend(prior)
	require.True(t, errors.Is(err, frame.ErrIncompatible), "got %v", err)
}

func TestCodecRoundTrip(t *testing.T) {
	dir := t.TempDir()
	f := single(frame.Metadata{TotalTime: 1.5, NumJobs: 1, NumThreads: 2, NumRuns: 3},
		slide(param.Record{"L": 16.0, "p": 0.1, "circuit_type": "blocksim"}, "x", []float64{1, 2}),
		slide(param.Record{"L": 16.0, "p": 0.2, "circuit_type": "blocksim"}, "x", []float64{3, 4}),
	)
	f.Slides[0].State = []byte{0x01, 0x02}

	for _, ext := range []string{frame.ExtJSON, frame.ExtBinary} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(dir, "out."+ext)
			require.NoError(t, f.Write(path))
			got, err := frame.Read(path)
			require.NoError(t, err)
			require.Equal(t, f.Params, got.Params)
			require.Equal(t, f.Metadata, got.Metadata)
			require.Equal(t, f.Slides, got.Slides)
		})
	}

	_, err := frame.Read(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
	require.Error(t, f.Write(filepath.Join(dir, "out.csv")))
}

func TestBinaryEncodingIsDeterministic(t *testing.T) {
	f := single(frame.Metadata{NumJobs: 1},
		slide(param.Record{"a": 1.0, "b": 2.0, "c": "x"}, "k1", []float64{1}),
	)
	f.Slides[0].Data["k2"] = []frame.Sample{frame.NewSample(2)}
	first, err := f.MarshalBinary()
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := f.MarshalBinary()
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func genFrame(t *rapid.T, label string) *frame.Frame {
	n := rapid.IntRange(0, 4).Draw(t, label+"_slides")
	slides := make([]*frame.Slide, 0, n)
	for i := 0; i < n; i++ {
		p := rapid.SampledFrom([]float64{0.1, 0.2, 0.3}).Draw(t, label+"_p")
		runs := rapid.IntRange(1, 3).Draw(t, label+"_runs")
		s := &frame.Slide{Params: param.Record{"L": 8.0, "p": p}, Data: map[string][]frame.Sample{}}
		for r := 0; r < runs; r++ {
			v := rapid.Float64Range(-5, 5).Draw(t, label+"_v")
			s.Data["x"] = append(s.Data["x"], frame.NewSample(v, 2*v))
		}
		slides = append(slides, s)
	}
	meta := frame.Metadata{
		TotalTime: rapid.Float64Range(0, 100).Draw(t, label+"_time"),
		NumJobs:   1,
		NumRuns:   rapid.IntRange(0, 10).Draw(t, label+"_numruns"),
	}
	f, err := frame.FromSlides(meta, slides...)
	if err != nil {
		t.Fatalf("FromSlides: %v", err)
	}
	return f
}

func mustCombine(t *rapid.T, a, b *frame.Frame) *frame.Frame {
	c, err := frame.Combine(a, b)
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	return c
}

func encode(t *rapid.T, f *frame.Frame) string {
	data, err := f.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	return fmt.Sprintf("%x", data)
}

func TestCombineProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := genFrame(t, "a")
		b := genFrame(t, "b")
		c := genFrame(t, "c")

		ab := mustCombine(t, a, b)
		ba := mustCombine(t, b, a)
		if encode(t, ab) != encode(t, ba) {
			t.Fatalf("Combine is not commutative")
		}

		left := mustCombine(t, ab, c)
		right := mustCombine(t, a, mustCombine(t, b, c))
		if encode(t, left) != encode(t, right) {
			t.Fatalf("Combine is not associative")
		}
	})
}

func TestCombineOrdersNaNLast(t *testing.T) {
	nan := math.NaN()
	a := single(frame.Metadata{NumJobs: 1},
		slide(param.Record{"p": 0.1}, "x", []float64{nan}, []float64{1}))
	b := single(frame.Metadata{NumJobs: 1},
		slide(param.Record{"p": 0.1}, "x", []float64{0.5}, []float64{nan}))

	ab, err := frame.Combine(a, b)
	require.NoError(t, err)
	ba, err := frame.Combine(b, a)
	require.NoError(t, err)

	left, err := ab.MarshalBinary()
	require.NoError(t, err)
	right, err := ba.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, left, right)

	samples := ab.Slides[0].Data["x"]
	require.Len(t, samples, 4)
	require.Equal(t, 0.5, samples[0].Mean[0])
	require.Equal(t, 1.0, samples[1].Mean[0])
	require.True(t, math.IsNaN(samples[2].Mean[0]))
	require.True(t, math.IsNaN(samples[3].Mean[0]))
}
