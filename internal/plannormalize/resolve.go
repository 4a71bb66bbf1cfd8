package plannormalize

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/fdg312/fitdiary/internal/catalog"
	"golang.org/x/sync/errgroup"
)

type lookupStatus int

const (
	lookupMiss lookupStatus = iota
	lookupHit
	lookupFailed // error or timeout
)

type lookupResult struct {
	status lookupStatus
	entry  *catalog.Entry
}

// resolveNames looks up every distinct name once, at most CatalogWorkers at a time.
// Failures and timeouts become lookupFailed; only cancellation of ctx is returned.
func (n *Normalizer) resolveNames(ctx context.Context, kind catalog.Kind, names []string) (map[string]lookupResult, error) {
	keys := make([]string, 0, len(names))
	raw := make(map[string]string, len(names))
	for _, name := range names {
		key := catalog.NormalizeName(name)
		if _, ok := raw[key]; ok {
			continue
		}
		raw[key] = name
		keys = append(keys, key)
	}

	results := make([]lookupResult, len(keys))

	var g errgroup.Group
	g.SetLimit(n.cfg.CatalogWorkers)
	for i, key := range keys {
		g.Go(func() error {
			results[i] = n.lookup(ctx, kind, raw[key])
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make(map[string]lookupResult, len(keys))
	for i, key := range keys {
		out[key] = results[i]
	}
	return out, nil
}

func (n *Normalizer) lookup(ctx context.Context, kind catalog.Kind, name string) lookupResult {
	timeout := time.Duration(n.cfg.CatalogTimeoutMs) * time.Millisecond
	lctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type answer struct {
		entry *catalog.Entry
		ok    bool
		err   error
	}
	ch := make(chan answer, 1)
	go func() {
		entry, ok, err := n.resolver.Resolve(lctx, kind, name)
		ch <- answer{entry, ok, err}
	}()

	select {
	case a := <-ch:
		switch {
		case a.err != nil:
			if ctx.Err() == nil {
				log.Printf("WARN plannormalize: catalog lookup failed kind=%s name=%q err=%v", kind, name, a.err)
			}
			return lookupResult{status: lookupFailed}
		case !a.ok || a.entry == nil:
			return lookupResult{status: lookupMiss}
		default:
			return lookupResult{status: lookupHit, entry: a.entry}
		}
	case <-lctx.Done():
		if errors.Is(lctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			log.Printf("WARN plannormalize: catalog lookup timeout kind=%s name=%q after=%s", kind, name, timeout)
		}
		return lookupResult{status: lookupFailed}
	}
}
