package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/krau/emotagger/hub"
	"golang.org/x/sync/singleflight"
)

// Source selects where model artifacts come from. LocalDir wins when set.
type Source struct {
	LocalDir string
	Repo     string
}

func (s Source) String() string {
	if s.LocalDir != "" {
		return s.LocalDir
	}
	return s.Repo
}

type Fetcher interface {
	Fetch(ctx context.Context) (hub.Artifacts, error)
}

// Loader builds a Model from a directory of artifacts. labels is the label
// set discovered in the same directory and may be nil.
type Loader interface {
	Load(ctx context.Context, art hub.Artifacts, labels []string) (Model, error)
}

// Resolver lazily loads the model and its labels on first use and then
// serves them for the life of the process. A failed load leaves nothing
// behind, so the next caller tries again.
type Resolver struct {
	source  Source
	fetcher Fetcher
	loader  Loader
	timeout time.Duration

	mu     sync.RWMutex
	ready  *Ready
	closed bool

	group singleflight.Group
	loads atomic.Int64
}

// NewResolver returns a Resolver for src. fetcher may be nil when src is a
// local directory. A positive timeout bounds how long callers wait for the
// first load.
func NewResolver(src Source, fetcher Fetcher, loader Loader, timeout time.Duration) *Resolver {
	return &Resolver{
		source:  src,
		fetcher: fetcher,
		loader:  loader,
		timeout: timeout,
	}
}

func (r *Resolver) Source() Source {
	return r.source
}

func (r *Resolver) current() *Ready {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ready
}

// Loaded reports whether a model has been published.
func (r *Resolver) Loaded() bool {
	return r.current() != nil
}

// Labels returns the published label set, or nil.
func (r *Resolver) Labels() []string {
	if rd := r.current(); rd != nil {
		return rd.Labels
	}
	return nil
}

// Loads counts load attempts that reached the fetch/load path.
func (r *Resolver) Loads() int64 {
	return r.loads.Load()
}

// EnsureReady returns the loaded model, loading it first if needed.
// Concurrent first callers share a single load.
func (r *Resolver) EnsureReady(ctx context.Context) (*Ready, error) {
	if rd := r.current(); rd != nil {
		return rd, nil
	}

	wait := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		wait, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	// The load outlives any single caller: an abandoned wait must not
	// cancel work other requests are sharing.
	loadCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan("load", func() (any, error) {
		return r.load(loadCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Ready), nil
	case <-wait.Done():
		return nil, fmt.Errorf("%w: waiting for %s: %w", ErrModelLoad, r.source, wait.Err())
	}
}

func (r *Resolver) load(ctx context.Context) (*Ready, error) {
	r.mu.RLock()
	rd, closed := r.ready, r.closed
	r.mu.RUnlock()
	if rd != nil {
		return rd, nil
	}
	if closed {
		return nil, errResolverClosed
	}
	r.loads.Add(1)
	start := time.Now()

	art, err := r.artifacts(ctx)
	if err != nil {
		slog.Error("Failed to resolve model artifacts", slog.String("source", r.source.String()), slog.String("error", err.Error()))
		return nil, err
	}

	labels := LoadLabels(art.Dir)
	model, err := r.loader.Load(ctx, art, labels)
	if err != nil {
		if !errors.Is(err, ErrModelLoad) {
			err = fmt.Errorf("%w: %w", ErrModelLoad, err)
		}
		slog.Error("Failed to load model", slog.String("dir", art.Dir), slog.String("error", err.Error()))
		return nil, err
	}

	rd = &Ready{Model: model, Labels: labels, Dir: art.Dir}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		if err := model.Close(); err != nil {
			slog.Warn("Failed to close model loaded after shutdown", slog.String("error", err.Error()))
		}
		return nil, errResolverClosed
	}
	r.ready = rd
	r.mu.Unlock()

	slog.Info("Model loaded",
		slog.String("dir", art.Dir),
		slog.Int("labels", len(labels)),
		slog.Duration("took", time.Since(start)))
	return rd, nil
}

var errResolverClosed = fmt.Errorf("%w: resolver closed", ErrModelLoad)

func (r *Resolver) artifacts(ctx context.Context) (hub.Artifacts, error) {
	if r.source.LocalDir != "" {
		return hub.Artifacts{Dir: r.source.LocalDir}, nil
	}
	if r.source.Repo == "" || r.fetcher == nil {
		return hub.Artifacts{}, fmt.Errorf("%w: no local model directory and no hub repository available", ErrConfiguration)
	}
	art, err := r.fetcher.Fetch(ctx)
	if err != nil {
		return hub.Artifacts{}, fmt.Errorf("%w: %w", ErrModelLoad, err)
	}
	return art, nil
}

// Close releases the loaded model, if any. A load still in flight closes
// its model instead of publishing it.
func (r *Resolver) Close() error {
	r.mu.Lock()
	rd := r.ready
	r.ready = nil
	r.closed = true
	r.mu.Unlock()
	if rd == nil || rd.Model == nil {
		return nil
	}
	return rd.Model.Close()
}
