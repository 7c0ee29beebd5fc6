package compute_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/eliotheinrich/pysims/internal/compute"
	"github.com/eliotheinrich/pysims/internal/param"
	"github.com/eliotheinrich/pysims/internal/simulator"
	"github.com/stretchr/testify/require"
)

// linear reports p*run and counts its invocations.
func linear(calls *atomic.Int32) simulator.Factory {
	return simulator.Func("linear", func(_ context.Context, req *simulator.Request) (*simulator.Response, error) {
		calls.Add(1)
		p, _ := req.Params.Float("p")
		return &simulator.Response{
			Data:  map[string][]float64{"y": {p * float64(req.Meta.Run)}},
			State: []byte{byte(req.Meta.Run)},
		}, nil
	})
}

func build(t *testing.T, f simulator.Factory, records ...param.Record) []simulator.Config {
	t.Helper()
	configs := make([]simulator.Config, len(records))
	for i, r := range records {
		cfg, err := f(r)
		require.NoError(t, err)
		configs[i] = cfg
	}
	return configs
}

func TestComputeStrategies(t *testing.T) {
	tests := []struct {
		name string
		meta compute.Meta
	}{
		{"serial", compute.Meta{Threads: 1, Runs: 3}},
		{"threaded", compute.Meta{Threads: 4, Runs: 3, Parallelization: compute.Threaded}},
		{"batched", compute.Meta{Threads: 2, Runs: 3, Parallelization: compute.Threaded, BatchSize: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			configs := build(t, linear(&calls),
				param.Record{"p": 1.0, "L": 8.0},
				param.Record{"p": 2.0, "L": 8.0},
			)
			f, err := compute.NewEngine(nil).Compute(context.Background(), configs, tt.meta)
			require.NoError(t, err)
			require.Equal(t, int32(6), calls.Load())
			require.Equal(t, 2, f.Len())
			require.Equal(t, param.Record{"L": 8.0}, f.Params)

			second := f.Slides[1]
			require.Equal(t, param.Record{"p": 2.0}, second.Params)
			require.Len(t, second.Data["y"], 3)
			require.Equal(t, []float64{0}, second.Data["y"][0].Mean)
			require.Equal(t, []float64{4}, second.Data["y"][2].Mean)
			require.Equal(t, []byte{2}, second.State)

			require.Equal(t, 1, f.Metadata.NumJobs)
			require.Equal(t, 3, f.Metadata.NumRuns)
			require.Equal(t, max(tt.meta.Threads, 1), f.Metadata.NumThreads)
		})
	}
}

func TestComputeRunsFromParams(t *testing.T) {
	var calls atomic.Int32
	configs := build(t, linear(&calls), param.Record{"p": 1.0, "num_runs": 5.0})
	f, err := compute.NewEngine(nil).Compute(context.Background(), configs, compute.Meta{})
	require.NoError(t, err)
	require.Equal(t, int32(5), calls.Load())
	require.Equal(t, 5, f.Metadata.NumRuns)
}

func TestComputeAverage(t *testing.T) {
	var calls atomic.Int32
	configs := build(t, linear(&calls), param.Record{"p": 1.0})
	f, err := compute.NewEngine(nil).Compute(context.Background(), configs, compute.Meta{Runs: 4, Average: true})
	require.NoError(t, err)
	samples := f.Slides[0].Data["y"]
	require.Len(t, samples, 1)
	require.Equal(t, 4, samples[0].N)
	require.InDelta(t, 1.5, samples[0].Mean[0], 1e-12)
}

func TestComputeFailure(t *testing.T) {
	boom := errors.New("boom")
	f := simulator.Func("broken", func(context.Context, *simulator.Request) (*simulator.Response, error) {
		return nil, boom
	})
	configs := build(t, f, param.Record{"p": 1.0})
	_, err := compute.NewEngine(nil).Compute(context.Background(), configs,
		compute.Meta{Threads: 2, Runs: 2, Parallelization: compute.Threaded})
	require.ErrorIs(t, err, boom)
}
