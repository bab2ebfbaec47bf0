package monitor

import (
	"context"

	"github.com/VDIOps/CitrixMonMCP/global"
)

// ResultSet is the logical union of all pages for one query. Truncated
// is true only when a caller-imposed cap stopped pagination before the
// service signaled completion.
type ResultSet struct {
	Records      []Entity
	TotalFetched int
	Truncated    bool
}

// Paginator drives the RequestExecutor across continuation links until
// a result set is complete or a cap is reached. Pages are fetched
// strictly sequentially: continuation links depend on prior state.
type Paginator struct {
	exec   *RequestExecutor
	logger global.Logger
}

// NewPaginator creates a new Paginator
func NewPaginator(exec *RequestExecutor, logger global.Logger) *Paginator {
	return &Paginator{exec: exec, logger: logger}
}

// Pager is a restartable lazy sequence of pages for one query. Collect
// is built on top of it so eager and streaming consumption share the
// same fetch logic.
type Pager struct {
	exec    *RequestExecutor
	auth    AuthContext
	nextURL string
	started bool
	done    bool
}

// Pages starts a lazy page sequence for the query
func (p *Paginator) Pages(auth AuthContext, baseURL string, q Query) (*Pager, error) {
	firstURL, err := q.URL(baseURL)
	if err != nil {
		return nil, err
	}
	return &Pager{exec: p.exec, auth: auth, nextURL: firstURL}, nil
}

// More reports whether another page can be fetched
func (pg *Pager) More() bool {
	return !pg.done
}

// Next fetches the next page. The first call uses the built query URL;
// subsequent calls follow the service's continuation link verbatim,
// never a rebuilt filter, to preserve server-side paging consistency.
func (pg *Pager) Next(ctx context.Context) (*Page, error) {
	if pg.done {
		return nil, nil
	}
	pg.started = true

	page, err := pg.exec.Do(ctx, pg.auth, pg.nextURL)
	if err != nil {
		pg.done = true
		return nil, err
	}

	pg.nextURL = page.NextLink
	if pg.nextURL == "" {
		pg.done = true
	}
	return page, nil
}

// Collect eagerly fetches all pages for the query, appending records in
// page-arrival order. cap bounds the total record count (0 = no cap); a
// Query.Top acts as a cap as well, whichever is smaller. Any page error
// propagates unmodified: partial results are never silently returned.
func (p *Paginator) Collect(ctx context.Context, auth AuthContext, baseURL string, q Query, cap int) (*ResultSet, error) {
	limit := cap
	if q.Top > 0 && (limit == 0 || q.Top < limit) {
		limit = q.Top
	}

	pager, err := p.Pages(auth, baseURL, q)
	if err != nil {
		return nil, err
	}

	result := &ResultSet{}
	pages := 0

	for pager.More() {
		page, err := pager.Next(ctx)
		if err != nil {
			return nil, err
		}
		pages++

		records := page.Records
		if limit > 0 && len(result.Records)+len(records) > limit {
			records = records[:limit-len(result.Records)]
			result.Truncated = true
		}
		result.Records = append(result.Records, records...)

		if limit > 0 && len(result.Records) >= limit {
			// Cap reached; if the service still had more, mark the cut
			if result.Truncated || pager.More() {
				result.Truncated = true
			}
			break
		}
	}

	result.TotalFetched = len(result.Records)
	if p.logger != nil {
		p.logger.Debugf("Collected %d records for %s in %d page(s) (truncated=%t)",
			result.TotalFetched, q.Entity, pages, result.Truncated)
	}
	return result, nil
}
