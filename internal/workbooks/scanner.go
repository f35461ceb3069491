package workbooks

import (
	"context"

	"github.com/rs/zerolog"
)

// ScanOptions controls Handle.ScanAll.
type ScanOptions struct {
	RowCapPerSheet int
	Header         bool
}

// SheetFailure records why a single sheet could not be read.
type SheetFailure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// SheetOutcome is the per-sheet result of ScanAll; exactly one of Result and
// Failure is set.
type SheetOutcome struct {
	Sheet   string        `json:"sheet"`
	Index   int           `json:"index"`
	Result  *ReadResult   `json:"result,omitempty"`
	Failure *SheetFailure `json:"failure,omitempty"`
}

// OK reports whether the sheet was read successfully.
func (o SheetOutcome) OK() bool { return o.Failure == nil }

// ScanAll reads every sheet in declared order and returns exactly one
// outcome per sheet. Errors and decoder panics raised while reading a sheet
// are recorded as that sheet's failure; they never stop the remaining sheets.
func (h *Handle) ScanAll(ctx context.Context, opts ScanOptions) []SheetOutcome {
	log := zerolog.Ctx(ctx)
	out := make([]SheetOutcome, 0, len(h.sheets))
	for _, meta := range h.sheets {
		o := SheetOutcome{Sheet: meta.Name, Index: meta.Index}
		res, err := h.readIsolated(ctx, meta.Name, ReadOptions{
			Sheet:  SheetIndex(meta.Index),
			RowCap: opts.RowCapPerSheet,
			Header: opts.Header,
		})
		if err != nil {
			log.Warn().Err(err).Str("handle_id", h.ID).Str("sheet", meta.Name).Msg("sheet read failed")
			o.Failure = &SheetFailure{Kind: Code(err), Message: err.Error()}
		} else {
			o.Result = &res
		}
		out = append(out, o)
	}
	return out
}

// readIsolated runs Read for one sheet, converting panics into errors.
func (h *Handle) readIsolated(ctx context.Context, sheet string, opts ReadOptions) (res ReadResult, err error) {
	defer func() {
		if v := recover(); v != nil {
			res, err = ReadResult{}, &Error{Op: "read", Kind: ErrCorruptFile, Path: h.Path, Sheet: sheet, Err: panicError(v)}
		}
	}()
	if err := ctx.Err(); err != nil {
		return ReadResult{}, err
	}
	return h.Read(ctx, opts)
}
