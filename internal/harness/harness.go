package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/folio/internal/adapter"
	"github.com/roach88/folio/internal/config"
	"github.com/roach88/folio/internal/document"
	"github.com/roach88/folio/internal/testutil"
)

// Harness runs scenarios on a set of backends.
type Harness struct {
	backends []Backend
	logger   *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithBackends replaces the default backends.
func WithBackends(backends ...Backend) Option {
	return func(h *Harness) {
		h.backends = backends
	}
}

// WithLogger sets the logger handed to every adapter. Defaults to a
// discarding logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// New creates a Harness that runs on DefaultBackends unless configured
// otherwise.
func New(opts ...Option) *Harness {
	h := &Harness{
		backends: DefaultBackends(),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes a scenario on the default backends.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	return New().Run(ctx, scenario)
}

// Run executes scenario on every backend concurrently, each against a fresh
// store. An error is returned when a backend cannot be opened or a setup
// request fails; expectation, assertion and agreement failures are
// reported in the Result.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	if len(h.backends) == 0 {
		return nil, fmt.Errorf("no backends configured")
	}

	runs := make([]*run, len(h.backends))
	g, gctx := errgroup.WithContext(ctx)
	for i, b := range h.backends {
		g.Go(func() error {
			r, err := h.runBackend(gctx, scenario, b)
			if err != nil {
				return fmt.Errorf("scenario %s on %s: %w", scenario.Name, b.Name, err)
			}
			runs[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := NewResult()
	for _, r := range runs {
		result.Backends = append(result.Backends, r.backend)
		for _, e := range r.errors {
			result.AddError(e)
		}
	}
	result.Transcript = runs[0].transcript

	for i, step := range scenario.Steps {
		want := runs[0].transcript[i]
		for _, r := range runs[1:] {
			if got := r.transcript[i]; !bytes.Equal(want, got) {
				result.AddError(fmt.Sprintf("steps[%d] (%s %s): %s and %s disagree\n  %s: %s\n  %s: %s",
					i, step.Operation, step.Collection, runs[0].backend, r.backend,
					runs[0].backend, want, r.backend, got))
			}
		}
	}

	h.logger.Debug("scenario complete",
		"scenario", scenario.Name,
		"backends", result.Backends,
		"pass", result.Pass,
	)
	return result, nil
}

// runBackend executes the scenario on one fresh store. Each backend gets
// its own schema instance, clock and id sequence so runs are independent
// and reproducible.
func (h *Harness) runBackend(ctx context.Context, scenario *Scenario, b Backend) (*run, error) {
	cfg, err := config.Load(scenario.Schema)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	ops, closeFn, err := b.Open(ctx, cfg,
		adapter.WithLogger(h.logger.With("backend", b.Name)),
		adapter.WithClock(testutil.NewClock().Now),
		adapter.WithIDGenerator(testutil.NewSequenceIDs("id").Next),
	)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer closeFn()

	if err := ops.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	for i, req := range scenario.Setup {
		if resp := ops.Dispatch(ctx, req); resp.Error != nil {
			return nil, fmt.Errorf("setup[%d] (%s %s): %s: %s",
				i, req.Operation, req.Collection, resp.Error.Code, resp.Error.Message)
		}
	}

	r := &run{backend: b.Name}
	for i, step := range scenario.Steps {
		resp := ops.Dispatch(ctx, step.Request)
		canonical, actual, err := canonicalize(resp)
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		r.transcript = append(r.transcript, canonical)

		if step.Expect == nil {
			continue
		}
		for _, msg := range checkExpect(actual, step.Expect) {
			r.fail("steps[%d] (%s %s): %s", i, step.Operation, step.Collection, msg)
		}
	}

	for i, a := range scenario.Assertions {
		if err := evaluateAssertion(ctx, ops, a); err != nil {
			r.fail("assertions[%d] (%s %s): %v", i, a.Type, a.Collection, err)
		}
	}
	return r, nil
}

// canonicalize encodes resp as canonical JSON and also returns its decoded
// generic form.
func canonicalize(resp adapter.Response) (json.RawMessage, map[string]any, error) {
	generic, err := normalize(resp)
	if err != nil {
		return nil, nil, err
	}
	m, _ := generic.(map[string]any)
	data, err := document.MarshalCanonical(m)
	if err != nil {
		return nil, nil, err
	}
	return data, m, nil
}

// normalize round-trips v through JSON so responses and YAML expectations
// compare with the same number and map types.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
