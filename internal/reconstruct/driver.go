package reconstruct

import (
	"context"
	"errors"

	"github.com/ginjaninja78/guest-invoice-chunker/internal/pagesource"
	"github.com/ginjaninja78/guest-invoice-chunker/internal/types"
)

// Result is the outcome of reconstructing one document.
type Result struct {
	// Records are the emitted records in page and line order.
	Records []types.GuestRecord `json:"records"`

	Diagnostics []Diagnostic `json:"diagnostics"`

	// PagesProcessed counts pages fed to the page processor.
	PagesProcessed int `json:"pages_processed"`

	// OpenCarried counts page boundaries crossed by an open record.
	OpenCarried int `json:"open_carried"`

	// Truncated is set when reconstruction stopped before the last page.
	// The record open at that point is neither salvaged nor dropped.
	Truncated bool `json:"truncated,omitempty"`
}

// Reconstruct processes pages in order and applies the end-of-input
// salvage policy.
func (e *Engine) Reconstruct(pages []string) Result {
	res, _ := e.run(context.Background(), pages)
	return res
}

// ReconstructSource reads every page from src and reconstructs them.
//
// RETURNS:
//   - The result. On cancellation it holds the records completed on the
//     pages processed so far.
//   - An error wrapping pagesource.ErrSourceUnavailable when the pages
//     cannot be read, or ctx.Err() when cancelled.
func (e *Engine) ReconstructSource(ctx context.Context, src pagesource.Source) (Result, error) {
	pages, err := src.Pages(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{Truncated: true}, ctxErr
		}
		if !errors.Is(err, pagesource.ErrSourceUnavailable) {
			err = &pagesource.SourceError{Path: src.Name(), Err: err}
		}
		return Result{}, err
	}
	return e.run(ctx, pages)
}

func (e *Engine) run(ctx context.Context, pages []string) (Result, error) {
	e.diagnostics = nil

	var res Result
	var open *types.GuestRecord

	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			res.Truncated = true
			res.Diagnostics = e.diagnostics
			e.logger.Warn("reconstruction cancelled",
				"pages_processed", res.PagesProcessed,
				"pages_total", len(pages),
			)
			return res, err
		}

		if open != nil {
			res.OpenCarried++
		}

		completed, stillOpen := e.ProcessPage(SplitLines(page), i+1, open)
		res.Records = append(res.Records, completed...)
		res.PagesProcessed++
		open = stillOpen
	}

	if rec := e.salvage(open, res.PagesProcessed); rec != nil {
		res.Records = append(res.Records, *rec)
	}

	res.Diagnostics = e.diagnostics
	return res, nil
}

// salvage applies the end-of-input policy to the record still open after
// the last page: it is kept when it has at least one service line.
func (e *Engine) salvage(open *types.GuestRecord, lastPage int) *types.GuestRecord {
	if open == nil {
		return nil
	}

	if len(open.Services) == 0 {
		e.emit(Diagnostic{
			Kind:    DiagDropped,
			Page:    lastPage,
			Guest:   open.DisplayName(),
			Message: "record open at end of input has no service lines; dropped",
		})
		return nil
	}

	e.emit(Diagnostic{
		Kind:    DiagSalvaged,
		Page:    lastPage,
		Guest:   open.DisplayName(),
		Message: "record open at end of input salvaged as incomplete",
	})
	return open
}
