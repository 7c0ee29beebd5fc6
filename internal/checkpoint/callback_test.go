package checkpoint_test

import (
	"errors"
	"testing"

	"github.com/eliotheinrich/pysims/internal/checkpoint"
	"github.com/eliotheinrich/pysims/internal/param"
	"github.com/stretchr/testify/require"
)

func TestApply(t *testing.T) {
	tests := []struct {
		name string
		cb   checkpoint.Callback
		in   param.Record
		want param.Record
	}{
		{"noop", checkpoint.Noop(), param.Record{"a": 1.0}, param.Record{"a": 1.0}},
		{"set", checkpoint.Set(param.Record{"sample": true, "steps": 100}),
			param.Record{"sample": false}, param.Record{"sample": true, "steps": 100.0}},
		{"unset", checkpoint.Unset("equilibration_timesteps"),
			param.Record{"equilibration_timesteps": 50.0, "L": 8.0}, param.Record{"L": 8.0}},
		{"scale", checkpoint.Scale("timesteps", 2), param.Record{"timesteps": 10.0}, param.Record{"timesteps": 20.0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.cb.Apply(tt.in))
			require.Equal(t, tt.want, tt.in)
		})
	}
}

func TestVerify(t *testing.T) {
	records := []param.Record{
		{"timesteps": 10.0, "equilibration_timesteps": 100.0, "label": "a"},
		{"timesteps": 20.0, "equilibration_timesteps": 100.0, "label": "b"},
	}
	chain := checkpoint.Chain{
		checkpoint.Set(param.Record{"equilibration_timesteps": 0}),
		checkpoint.Scale("timesteps", 2),
	}
	require.NoError(t, checkpoint.Verify(records, chain...))
	// records are not modified
	require.Equal(t, 10.0, records[0]["timesteps"])
	require.Equal(t, 3, chain.Stages())

	// every stage starts over from the original record
	require.NoError(t, checkpoint.Verify(records, checkpoint.Unset("timesteps"), checkpoint.Unset("timesteps")))

	tests := []struct {
		name  string
		chain []checkpoint.Callback
	}{
		{"unset missing", []checkpoint.Callback{checkpoint.Unset("sample")}},
		{"scale key set by earlier stage", []checkpoint.Callback{checkpoint.Set(param.Record{"y": 1.0}), checkpoint.Scale("y", 2)}},
		{"scale string", []checkpoint.Callback{checkpoint.Noop(), checkpoint.Scale("label", 2)}},
		{"unknown op", []checkpoint.Callback{{Op: "rotate"}}},
		{"empty set", []checkpoint.Callback{{Op: checkpoint.OpSet}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkpoint.Verify(records, tt.chain...)
			if !errors.Is(err, checkpoint.ErrInvalidCallback) {
				t.Errorf("Verify() error = %v, want ErrInvalidCallback", err)
			}
		})
	}
}
