package randomsource

import (
	"context"
	"log/slog"
	"time"
)

// Draw is a sample and whether it came from the local fallback.
type Draw struct {
	Value    byte
	Fallback bool
}

// Fallback bounds calls to a primary source and substitutes a local sample
// when the primary fails or times out.
type Fallback struct {
	primary    Source
	local      Source
	timeout    time.Duration
	onFallback func(err error)
}

func NewFallback(primary, local Source, timeout time.Duration) *Fallback {
	if local == nil {
		local = Local{}
	}

	return &Fallback{
		primary: primary,
		local:   local,
		timeout: timeout,
	}
}

// OnFallback registers a hook called with the primary's error every time
// the fallback is used.
func (f *Fallback) OnFallback(fn func(err error)) {
	f.onFallback = fn
}

func (f *Fallback) Draw(ctx context.Context) Draw {
	pctx := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	v, err := f.primary.Sample(pctx)
	if err == nil {
		return Draw{Value: v}
	}

	slog.WarnContext(ctx, "random source unavailable, using local fallback", "error", err)

	if f.onFallback != nil {
		f.onFallback(err)
	}

	// the local source only fails if it is misconfigured; treat that as 0
	lv, lerr := f.local.Sample(context.WithoutCancel(ctx))
	if lerr != nil {
		slog.ErrorContext(ctx, "local random source failed", "error", lerr)
	}

	return Draw{Value: lv, Fallback: true}
}
