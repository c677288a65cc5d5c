package entity_resolver

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/LegalDoc-Intelligence/pkg/errors"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/types/entity"
)

// BatchItem is the outcome for the document at Index of a batch.
type BatchItem struct {
	Index  int            `json:"index"`
	Result *entity.Result `json:"result,omitempty"`
	Err    error          `json:"-"`
}

// ResolveBatch resolves docs with at most BatchConcurrency documents in
// flight.  Items are returned in input order; a failing document does not
// affect the others.  Documents not yet started when ctx is cancelled fail
// with a timeout error, and ctx's error is returned alongside the items.
func (e *Engine) ResolveBatch(ctx context.Context, docs []*entity.Document) ([]BatchItem, error) {
	items := make([]BatchItem, len(docs))
	if len(docs) == 0 {
		return items, nil
	}

	var g errgroup.Group
	g.SetLimit(e.cfg.BatchConcurrency)
	for i, doc := range docs {
		i, doc := i, doc
		items[i].Index = i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				items[i].Err = errors.Wrap(err, errors.ErrCodeTimeout, "batch cancelled before document started")
				return nil
			}
			items[i].Result, items[i].Err = e.Resolve(ctx, doc)
			return nil
		})
	}
	_ = g.Wait()

	return items, ctx.Err()
}

// BatchErrors returns the number of failed items.
func BatchErrors(items []BatchItem) int {
	n := 0
	for _, it := range items {
		if it.Err != nil {
			n++
		}
	}
	return n
}
