// Package randomsource supplies the byte samples that drive credit awards.
package randomsource

import (
	"context"
	"errors"
	"math/rand/v2"
)

var ErrUnavailable = errors.New("random source unavailable")

// Source returns one uniformly distributed byte per call.
type Source interface {
	Sample(ctx context.Context) (byte, error)
}

// Local is the pseudo-random fallback. It never fails.
type Local struct{}

func (Local) Sample(context.Context) (byte, error) {
	return byte(rand.N(256)), nil
}
