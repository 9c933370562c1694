// Package dataflow runs the ordered stage pipeline against each
// successful response and collects the follow-up requests it emits.
package dataflow

import (
	"context"
	"fmt"

	"github.com/skylineware/spidercore/internal/spider"
)

// Context is the ephemeral, per-response value handed to every stage in a
// pipeline run. Stages read Request/Response/Properties and accumulate
// follow-up requests; it carries no shared mutable state across runs.
type Context struct {
	Request  spider.Request
	Response spider.Response

	// Properties lets stages pass extracted data to later stages in the
	// same run without widening the Context struct itself.
	Properties map[string]any

	// FollowRequests accumulates requests stages want admitted after the
	// run completes successfully.
	FollowRequests []spider.Request
}

// AddFollowRequest appends req to the accumulator, defaulting its Depth
// to the originating request's depth plus one if unset by the stage.
func (c *Context) AddFollowRequest(req spider.Request) {
	if req.Depth == 0 {
		req.Depth = c.Request.Depth + 1
	}
	c.FollowRequests = append(c.FollowRequests, req)
}

// Stage is a single step of the data-flow pipeline. Init is called once
// at lifecycle start; Handle runs once per successful response; Dispose
// runs once at lifecycle stop, in registration order.
type Stage interface {
	Name() string
	Init(ctx context.Context) error
	Handle(ctx context.Context, dc *Context) error
	Dispose(ctx context.Context) error
}

// NoopStage does nothing; it is the default stage for dry runs or when
// no storage backend is configured.
type NoopStage struct{}

// Name identifies the stage.
func (NoopStage) Name() string { return "noop" }

// Init is a no-op.
func (NoopStage) Init(context.Context) error { return nil }

// Handle is a no-op.
func (NoopStage) Handle(context.Context, *Context) error { return nil }

// Dispose is a no-op.
func (NoopStage) Dispose(context.Context) error { return nil }

// Pipeline runs an ordered list of Stages.
type Pipeline struct {
	stages []Stage
}

// New constructs a Pipeline over stages in registration order.
func New(stages ...Stage) *Pipeline {
	return &Pipeline{stages: append([]Stage(nil), stages...)}
}

// Init runs each stage's Init in registration order, stopping and
// returning the first error (spec.md's StageInitFailed: fatal at
// start, triggers graceful shutdown by the lifecycle controller).
func (p *Pipeline) Init(ctx context.Context) error {
	for _, s := range p.stages {
		if err := s.Init(ctx); err != nil {
			return fmt.Errorf("%w: stage %q: %v", spider.ErrStageInitFailed, s.Name(), err)
		}
	}
	return nil
}

// Dispose runs each stage's Dispose in registration order, returning the
// first error but not short-circuiting on it so every stage gets a chance
// to release its resources during shutdown. Later errors are dropped.
func (p *Pipeline) Dispose(ctx context.Context) error {
	var first error
	for _, s := range p.stages {
		if err := s.Dispose(ctx); err != nil && first == nil {
			first = fmt.Errorf("stage %q dispose: %w", s.Name(), err)
		}
	}
	return first
}

// Run executes every stage in order against a fresh Context built from
// req/resp. On success it returns the accumulated follow-up requests. On
// a stage failure it returns an error wrapping spider.ErrStageRuntimeFailed
// per spec.md §7 — data written by earlier stages is discarded, and the
// caller (the consumer loop) is responsible for re-admitting the
// original request.
func (p *Pipeline) Run(ctx context.Context, req spider.Request, resp spider.Response) ([]spider.Request, error) {
	dc := &Context{
		Request:    req,
		Response:   resp,
		Properties: make(map[string]any),
	}
	for _, s := range p.stages {
		if err := s.Handle(ctx, dc); err != nil {
			return nil, fmt.Errorf("%w: stage %q: %v", spider.ErrStageRuntimeFailed, s.Name(), err)
		}
	}
	return dc.FollowRequests, nil
}
