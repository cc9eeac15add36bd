package selection

import (
	"context"

	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/rileyhilliard/fleet/internal/logger"
)

// Policy decides when cached selections are discarded.
type Policy string

const (
	// Memoize keeps a cached (name, query) result forever.
	Memoize Policy = "memoize"
	// InvalidateOnTagChange drops every cached result when tags change.
	InvalidateOnTagChange Policy = "invalidate-on-tag-change"
)

// Cache persists evaluated selections.
type Cache interface {
	LookupSelection(ctx context.Context, name, query string) ([]string, bool, error)
	StoreSelection(ctx context.Context, name, query string, objects []string) error
	DeleteSelections(ctx context.Context, name string) error
	ClearSelections(ctx context.Context) error
}

// Source provides the candidate objects and their tags.
type Source interface {
	HostNames(ctx context.Context) ([]string, error)
	TagIndex(ctx context.Context) (map[string]map[string]bool, error)
}

// Result is an evaluated selection.
type Result struct {
	Name    string
	Query   string
	Objects []string
	Cached  bool
}

// Engine evaluates queries against the inventory with memoization.
type Engine struct {
	cache  Cache
	source Source
	policy Policy
	log    logger.Logger
}

// NewEngine creates an Engine. An empty policy means Memoize.
func NewEngine(cache Cache, source Source, policy Policy, log logger.Logger) *Engine {
	if policy == "" {
		policy = Memoize
	}
	if log == nil {
		log = logger.Noop()
	}
	return &Engine{cache: cache, source: source, policy: policy, log: log}
}

// Policy returns the cache policy in effect.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Select returns the objects matching query, from the cache when
// (name, query) was evaluated before. An empty name caches under the
// normalized query text.
func (e *Engine) Select(ctx context.Context, name, query string) (Result, error) {
	q, err := Parse(query)
	if err != nil {
		return Result{}, err
	}
	if name == "" {
		name = q.Text
	}
	res := Result{Name: name, Query: q.Text}

	objects, found, err := e.cache.LookupSelection(ctx, name, q.Text)
	if err != nil {
		return Result{}, errors.WrapWithCode(err, errors.ErrStore, "Can't read selection cache", "")
	}
	if found {
		e.log.Debug("selection %s (%s) served from cache: %d objects", name, q.Text, len(objects))
		res.Objects = objects
		res.Cached = true
		return res, nil
	}

	candidates, err := e.source.HostNames(ctx)
	if err != nil {
		return Result{}, errors.WrapWithCode(err, errors.ErrStore, "Can't list hosts", "")
	}
	index, err := e.source.TagIndex(ctx)
	if err != nil {
		return Result{}, errors.WrapWithCode(err, errors.ErrStore, "Can't load host tags", "")
	}

	res.Objects = q.Filter(candidates, TagSet(index))
	if err := e.cache.StoreSelection(ctx, name, q.Text, res.Objects); err != nil {
		return Result{}, errors.WrapWithCode(err, errors.ErrStore, "Can't cache selection "+name, "")
	}
	e.log.Debug("selection %s (%s) evaluated over %d hosts: %d objects", name, q.Text, len(candidates), len(res.Objects))
	return res, nil
}

// Rebuild discards every cached entry under name and evaluates query afresh.
func (e *Engine) Rebuild(ctx context.Context, name, query string) (Result, error) {
	q, err := Parse(query)
	if err != nil {
		return Result{}, err
	}
	if name == "" {
		name = q.Text
	}
	if err := e.cache.DeleteSelections(ctx, name); err != nil {
		return Result{}, errors.WrapWithCode(err, errors.ErrStore, "Can't drop selection "+name, "")
	}
	return e.Select(ctx, name, query)
}

// TagsChanged is called after tag assignments change. Under
// InvalidateOnTagChange it clears the whole cache; under Memoize it does
// nothing.
func (e *Engine) TagsChanged(ctx context.Context) error {
	if e.policy != InvalidateOnTagChange {
		return nil
	}
	if err := e.cache.ClearSelections(ctx); err != nil {
		return errors.WrapWithCode(err, errors.ErrStore, "Can't clear selection cache", "")
	}
	e.log.Debug("selection cache cleared after tag change")
	return nil
}
