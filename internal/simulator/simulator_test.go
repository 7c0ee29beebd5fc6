package simulator_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/eliotheinrich/pysims/internal/param"
	"github.com/eliotheinrich/pysims/internal/simulator"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegistryBuild(t *testing.T) {
	r := simulator.NewRegistry()
	r.Register("echo", simulator.Func("echo", func(_ context.Context, req *simulator.Request) (*simulator.Response, error) {
		p, _ := req.Params.Float("p")
		return &simulator.Response{Data: map[string][]float64{"p": {p}}, State: append(req.State, 'x')}, nil
	}))

	p := param.Record{"p": 0.25}
	cfg, err := r.Build("echo", p)
	require.NoError(t, err)
	require.Equal(t, "echo", cfg.Tag())

	// the config holds its own copy
	cfg.Params()["p"] = 0.5
	require.Equal(t, 0.25, p["p"])

	cfg.InjectState([]byte("ab"))
	resp, err := cfg.Run(context.Background(), simulator.RunMeta{})
	require.NoError(t, err)
	require.Equal(t, []float64{0.5}, resp.Data["p"])
	require.Equal(t, []byte("abx"), resp.State)

	_, err = r.Build("ising", p)
	require.True(t, errors.Is(err, simulator.ErrUnknownGenerator), "got %v", err)
	require.Equal(t, []string{"echo"}, r.Tags())
}

func TestLoadRegistry(t *testing.T) {
	tests := []struct {
		name    string
		specs   []simulator.Spec
		want    []string
		wantErr bool
	}{
		{
			name: "optional missing binary skipped",
			specs: []simulator.Spec{
				{Name: "shell", Command: []string{"sh"}},
				{Name: "ldpc", Command: []string{"pysims-no-such-binary"}, Optional: true},
			},
			want: []string{"shell"},
		},
		{
			name:    "required missing binary",
			specs:   []simulator.Spec{{Name: "ldpc", Command: []string{"pysims-no-such-binary"}}},
			wantErr: true,
		},
		{
			name:    "nothing left",
			specs:   []simulator.Spec{{Name: "ldpc", Command: []string{"pysims-no-such-binary"}, Optional: true}},
			wantErr: true,
		},
		{
			name:    "command and image",
			specs:   []simulator.Spec{{Name: "x", Command: []string{"sh"}, Image: "alpine"}},
			wantErr: true,
		},
		{
			name:  "image",
			specs: []simulator.Spec{{Name: "clifford", Image: "alpine:latest"}},
			want:  []string{"clifford"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := simulator.LoadRegistry(tt.specs, zap.NewNop())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, r.Tags())
		})
	}
}

func TestProcessSimulator(t *testing.T) {
	f, err := simulator.NewFactory(simulator.Spec{
		Name:    "shell",
		Command: []string{"sh", "-c", `cat > /dev/null; echo '{"data": {"entropy": [1.5, 2.5]}, "state": "c3RhdGU="}'`},
	})
	require.NoError(t, err)
	cfg, err := f(param.Record{"L": 8.0})
	require.NoError(t, err)
	resp, err := cfg.Run(context.Background(), simulator.RunMeta{Run: 1})
	require.NoError(t, err)
	require.Equal(t, []float64{1.5, 2.5}, resp.Data["entropy"])
	require.Equal(t, []byte("state"), resp.State)
	require.Equal(t, []string{"entropy"}, resp.Keys())
}

func TestProcessSimulatorFailure(t *testing.T) {
	f, err := simulator.NewFactory(simulator.Spec{
		Name:    "broken",
		Command: []string{"sh", "-c", "echo boom >&2; exit 3"},
	})
	require.NoError(t, err)
	cfg, err := f(param.Record{})
	require.NoError(t, err)
	_, err = cfg.Run(context.Background(), simulator.RunMeta{})
	require.ErrorContains(t, err, "boom")
}

func TestContainerSimulator(t *testing.T) {
	if os.Getenv("PYSIMS_DOCKER_TESTS") == "" {
		t.Skip("set PYSIMS_DOCKER_TESTS=1 to run Docker tests")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	res, err := simulator.RunContainer(ctx, &simulator.ContainerOpts{
		Image:   "alpine:latest",
		Command: []string{"sh", "-c", `echo '{"data": {"x": [1]}}' > /io/response.json`},
		IODir:   t.TempDir(),
		Timeout: 30 * time.Second,
	})
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
	require.False(t, res.TimedOut)
}

func TestIsWaitTimeout(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	tests := []struct {
		name   string
		parent context.Context
		err    error
		want   bool
	}{
		{"run deadline", context.Background(), fmt.Errorf("wait: %w", context.DeadlineExceeded), true},
		{"parent cancelled", cancelled, context.Canceled, false},
		{"parent gone during deadline", cancelled, context.DeadlineExceeded, false},
		{"daemon disconnect", context.Background(), errors.New("unexpected EOF"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, simulator.IsWaitTimeout(tt.parent, tt.err))
		})
	}
}
