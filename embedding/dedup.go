package embedding

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// DedupProvider collapses concurrent embedding requests for identical text
// into a single upstream call. Two requests racing on the same query would
// otherwise both pay the provider round trip before one of them stores the
// result in the semantic cache.
type DedupProvider struct {
	inner Provider
	group singleflight.Group
}

// WithDedup wraps a provider with single-flight request coalescing.
func WithDedup(inner Provider) *DedupProvider {
	return &DedupProvider{inner: inner}
}

func (d *DedupProvider) Name() string    { return d.inner.Name() }
func (d *DedupProvider) Dimensions() int { return d.inner.Dimensions() }

// EmbedQuery embeds a query, sharing in-flight calls keyed by the raw text.
func (d *DedupProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	v, err, _ := d.group.Do(query, func() (interface{}, error) {
		return d.inner.EmbedQuery(ctx, query)
	})
	if err != nil {
		return nil, err
	}
	return v.([]float64), nil
}

// EmbedDocuments passes batches straight through; batch inputs are rarely
// identical so coalescing buys nothing there.
func (d *DedupProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	return d.inner.EmbedDocuments(ctx, documents)
}
