package workbooks

import "context"

// SheetOverview summarizes one sheet with a capped sample.
type SheetOverview struct {
	Name         string      `json:"sheet_name"`
	Index        int         `json:"index"`
	TotalRows    int         `json:"total_rows"`
	TotalColumns int         `json:"total_columns"`
	Columns      []string    `json:"columns,omitempty"`
	Sample       []RowRecord `json:"sample_data,omitempty"`
	IsEmpty      bool        `json:"is_empty"`
	HasMoreData  bool        `json:"has_more_data"`
	Error        string      `json:"error,omitempty"`
}

// Overview is workbook metadata plus a per-sheet sample.
type Overview struct {
	Info       Info            `json:"info"`
	Sheets     []SheetOverview `json:"sheets_overview"`
	SampleRows int             `json:"sample_rows"`
}

// Overview samples the first sampleRows data rows of every sheet. The first
// row of each sheet is treated as its header, so TotalRows counts data rows.
// A failing sheet carries an error string instead of aborting the overview.
func (h *Handle) Overview(ctx context.Context, sampleRows int) Overview {
	if sampleRows <= 0 {
		sampleRows = 5
	}
	ov := Overview{Info: h.Info(), SampleRows: sampleRows, Sheets: make([]SheetOverview, 0, len(h.sheets))}
	for _, meta := range h.sheets {
		so := SheetOverview{Name: meta.Name, Index: meta.Index}
		if err := h.overviewSheet(ctx, meta, sampleRows, &so); err != nil {
			so = SheetOverview{Name: meta.Name, Index: meta.Index, Error: err.Error()}
		}
		ov.Sheets = append(ov.Sheets, so)
	}
	return ov
}

func (h *Handle) overviewSheet(ctx context.Context, meta SheetMetadata, sampleRows int, so *SheetOverview) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &Error{Op: "overview", Kind: ErrCorruptFile, Path: h.Path, Sheet: meta.Name, Err: panicError(v)}
		}
	}()
	ext, err := h.extent(ctx, meta.Name)
	if err != nil {
		return err
	}
	if ext.empty {
		so.IsEmpty = true
		return nil
	}
	res, err := h.Read(ctx, ReadOptions{Sheet: SheetIndex(meta.Index), RowCap: sampleRows, Header: true})
	if err != nil {
		return err
	}
	so.TotalRows = ext.Row2 - ext.Row1 // header row excluded
	so.TotalColumns = ext.Col2 - ext.Col1 + 1
	so.Columns = res.Columns
	so.Sample = res.Rows
	so.IsEmpty = so.TotalRows == 0
	so.HasMoreData = res.Truncated
	return nil
}
