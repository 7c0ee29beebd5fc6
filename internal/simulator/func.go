package simulator

import (
	"context"

	"github.com/eliotheinrich/pysims/internal/param"
)

// RunFunc computes one run in process.
type RunFunc func(ctx context.Context, req *Request) (*Response, error)

// Func returns a Factory for a simulator implemented in Go.
func Func(tag string, run RunFunc) Factory {
	return func(p param.Record) (Config, error) {
		return &funcConfig{base: base{tag: tag, params: p}, run: run}, nil
	}
}

type funcConfig struct {
	base
	run RunFunc
}

func (c *funcConfig) Run(ctx context.Context, meta RunMeta) (*Response, error) {
	return c.run(ctx, c.request(meta))
}
