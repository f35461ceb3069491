package workbooks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Format identifies the container format of an opened workbook.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
)

// SupportedExtensions lists the file extensions the loader accepts.
var SupportedExtensions = []string{".xlsx", ".xlsm", ".xltx", ".xltm", ".xls"}

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// WorkbookGate coordinates capacity for open workbook handles (backed by runtime.Controller).
type WorkbookGate interface {
	AcquireWorkbook(ctx context.Context) error
	ReleaseWorkbook()
}

// PathValidator abstracts filesystem path validation. Implementations should
// return a canonical absolute path if allowed, or an error when denied.
type PathValidator interface {
	ValidateOpenPath(path string) (string, error)
}

// Classifier maps PathValidator errors onto this package's error kinds.
// Validators whose errors already match a kind need not implement it.
type Classifier interface {
	Classify(err error) error
}

// Loader opens workbooks for a single tool call. It holds no workbook state;
// every Open returns an independent Handle.
type Loader struct {
	gate         WorkbookGate
	validator    PathValidator
	maxFileBytes int64
	clock        func() time.Time
}

// Option configures a Loader.
type Option func(*Loader)

// WithGate bounds the number of simultaneously open handles.
func WithGate(g WorkbookGate) Option { return func(l *Loader) { l.gate = g } }

// WithPathValidator enforces an allow-list before any workbook is opened.
func WithPathValidator(v PathValidator) Option { return func(l *Loader) { l.validator = v } }

// WithMaxFileBytes rejects files larger than n bytes; n <= 0 disables the check.
func WithMaxFileBytes(n int64) Option { return func(l *Loader) { l.maxFileBytes = n } }

// NewLoader constructs a Loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{clock: time.Now}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Open validates path, decodes the workbook and returns a Handle with sheet
// metadata populated. Open is atomic: on error no handle exists and every
// resource acquired along the way has been released.
func (l *Loader) Open(ctx context.Context, path string) (*Handle, error) {
	fail := func(kind error, detail string, err error) (*Handle, error) {
		return nil, &Error{Op: "open", Kind: kind, Path: path, Detail: detail, Err: err}
	}

	// Absolute paths only; checked before touching the filesystem.
	if strings.TrimSpace(path) == "" || !filepath.IsAbs(path) {
		return fail(ErrInvalidPath, "provide an absolute path to the workbook", nil)
	}
	path = filepath.Clean(path)

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fail(ErrFileNotFound, "", nil)
	case errors.Is(err, os.ErrPermission):
		return fail(ErrPermissionDenied, "", err)
	case err != nil:
		return fail(ErrFileNotFound, "", err)
	case info.IsDir():
		return fail(ErrFileNotFound, "path is a directory", nil)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if !supportedExtension(ext) {
		return fail(ErrUnsupportedFormat, fmt.Sprintf("extension %q; supported: %s", ext, strings.Join(SupportedExtensions, ", ")), nil)
	}

	if l.validator != nil {
		canonical, verr := l.validator.ValidateOpenPath(path)
		if verr != nil {
			kind := ErrPermissionDenied
			if c, ok := l.validator.(Classifier); ok {
				if k := c.Classify(verr); k != nil {
					kind = k
				}
			}
			return fail(kind, "", verr)
		}
		path = canonical
	}

	if l.maxFileBytes > 0 && info.Size() > l.maxFileBytes {
		return fail(ErrFileTooLarge, fmt.Sprintf("%d bytes exceeds limit of %d", info.Size(), l.maxFileBytes), nil)
	}

	format, err := sniffFormat(path, ext)
	if err != nil {
		return nil, &Error{Op: "open", Kind: kindOf(err, ErrCorruptFile), Path: path, Err: unwrapKind(err)}
	}

	if err := l.acquire(ctx); err != nil {
		return nil, fmt.Errorf("workbooks: open %q: acquire workbook slot: %w", path, err)
	}

	b, err := openBook(path, format)
	if err != nil {
		l.release()
		return fail(ErrCorruptFile, "", err)
	}

	names := b.SheetNames()
	if len(names) == 0 {
		_ = b.Close()
		l.release()
		return fail(ErrCorruptFile, "workbook declares no sheets", nil)
	}

	h := &Handle{
		ID:      uuid.NewString(),
		Path:    path,
		Format:  format,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		book:    b,
		dims:    map[string]extent{},
		release: l.release,
	}
	h.sheets = make([]SheetMetadata, len(names))
	for i, n := range names {
		h.sheets[i] = SheetMetadata{Name: n, Index: i}
	}

	zerolog.Ctx(ctx).Debug().
		Str("handle_id", h.ID).
		Str("path", path).
		Str("format", string(format)).
		Int("sheets", len(names)).
		Msg("workbook opened")
	return h, nil
}

func (l *Loader) acquire(ctx context.Context) error {
	if l.gate == nil {
		return nil
	}
	return l.gate.AcquireWorkbook(ctx)
}

func (l *Loader) release() {
	if l.gate == nil {
		return
	}
	l.gate.ReleaseWorkbook()
}

func supportedExtension(ext string) bool {
	for _, e := range SupportedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// kindError tags a sniffing failure with its error kind.
type kindError struct {
	kind error
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }

func kindOf(err error, fallback error) error {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return fallback
}

func unwrapKind(err error) error {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.err
	}
	return err
}

// sniffFormat routes the file to a backend by its signature. ZIP containers
// are OOXML; OLE2 containers are legacy BIFF when named .xls and encrypted
// OOXML otherwise (excelize reports those as unreadable without a password).
func sniffFormat(path, ext string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &kindError{kind: ErrFileNotFound, err: err}
	}
	defer f.Close()

	head := make([]byte, len(oleMagic))
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", &kindError{kind: ErrCorruptFile, err: err}
	}
	head = head[:n]
	switch {
	case n == 0:
		return "", &kindError{kind: ErrCorruptFile, err: errors.New("file is empty")}
	case bytes.HasPrefix(head, zipMagic):
		return FormatXLSX, nil
	case bytes.Equal(head, oleMagic):
		if ext == ".xls" {
			return FormatXLS, nil
		}
		return FormatXLSX, nil
	default:
		return "", &kindError{kind: ErrUnsupportedFormat, err: fmt.Errorf("unrecognized file signature % x", head)}
	}
}

func openBook(path string, format Format) (b book, err error) {
	defer func() {
		if v := recover(); v != nil {
			b, err = nil, panicError(v)
		}
	}()
	switch format {
	case FormatXLS:
		return openXLS(path)
	default:
		return openXLSX(path)
	}
}

// SheetMetadata describes one sheet. Row and column counts are nil until
// computed by Handle.Dimensions.
type SheetMetadata struct {
	Name        string `json:"name"`
	Index       int    `json:"index"`
	RowCount    *int   `json:"row_count,omitempty"`
	ColumnCount *int   `json:"column_count,omitempty"`
}

// Info is the workbook-level metadata returned by excel_read_info.
type Info struct {
	Path       string            `json:"file_path"`
	Format     Format            `json:"format"`
	FileSize   int64             `json:"file_size"`
	ModifiedAt time.Time         `json:"modified_at"`
	SheetCount int               `json:"sheet_count"`
	SheetNames []string          `json:"sheet_names"`
	Properties map[string]string `json:"properties,omitempty"`
}

// extent is the used bounding box of a sheet; zero when the sheet is empty.
type extent struct {
	Bounds
	empty bool
}

// Handle is an opened workbook scoped to one tool call. Close must be called
// on every path once the handle is no longer needed.
type Handle struct {
	ID      string
	Path    string
	Format  Format
	Size    int64
	ModTime time.Time

	book   book
	sheets []SheetMetadata

	mu      sync.Mutex
	dims    map[string]extent
	closed  bool
	release func()
}

// Sheets returns metadata for every sheet in declared order, including any
// dimensions computed so far.
func (h *Handle) Sheets() []SheetMetadata {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]SheetMetadata, len(h.sheets))
	for i, s := range h.sheets {
		out[i] = h.withDims(s)
	}
	return out
}

// SheetNames returns sheet names in declared order.
func (h *Handle) SheetNames() []string {
	out := make([]string, len(h.sheets))
	for i, s := range h.sheets {
		out[i] = s.Name
	}
	return out
}

// Info returns file level metadata and document properties.
func (h *Handle) Info() Info {
	return Info{
		Path:       h.Path,
		Format:     h.Format,
		FileSize:   h.Size,
		ModifiedAt: h.ModTime,
		SheetCount: len(h.sheets),
		SheetNames: h.SheetNames(),
		Properties: h.book.Properties(),
	}
}

// Dimensions returns the row and column count of the sheet's used extent,
// scanning the sheet on first use and caching the result on the handle.
func (h *Handle) Dimensions(ctx context.Context, sel Selector) (SheetMetadata, error) {
	meta, err := h.Sheet(sel)
	if err != nil {
		return SheetMetadata{}, err
	}
	if _, err := h.extent(ctx, meta.Name); err != nil {
		return SheetMetadata{}, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.withDims(meta), nil
}

func (h *Handle) extent(ctx context.Context, sheet string) (extent, error) {
	h.mu.Lock()
	if e, ok := h.dims[sheet]; ok {
		h.mu.Unlock()
		return e, nil
	}
	h.mu.Unlock()

	src, err := h.openRows(sheet)
	if err != nil {
		return extent{}, err
	}
	defer src.Close()

	e := extent{empty: true}
	for src.Next() {
		if err := ctx.Err(); err != nil {
			return extent{}, err
		}
		cells, err := src.Cells()
		if err != nil {
			return extent{}, &Error{Op: "read", Kind: ErrCorruptFile, Path: h.Path, Sheet: sheet, Err: err}
		}
		first, last := -1, -1
		for i, c := range cells {
			if !c.IsEmpty() {
				if first < 0 {
					first = i
				}
				last = i
			}
		}
		if first < 0 {
			continue
		}
		row := src.Row()
		if e.empty {
			e = extent{Bounds: Bounds{Col1: first + 1, Row1: row, Col2: last + 1, Row2: row}}
			continue
		}
		e.Row2 = row
		e.Col1 = min(e.Col1, first+1)
		e.Col2 = max(e.Col2, last+1)
	}
	if err := src.Err(); err != nil {
		return extent{}, &Error{Op: "read", Kind: ErrCorruptFile, Path: h.Path, Sheet: sheet, Err: err}
	}

	h.mu.Lock()
	h.dims[sheet] = e
	h.mu.Unlock()
	return e, nil
}

// withDims copies cached dimensions into meta; callers hold h.mu.
func (h *Handle) withDims(meta SheetMetadata) SheetMetadata {
	e, ok := h.dims[meta.Name]
	if !ok {
		return meta
	}
	rows, cols := 0, 0
	if !e.empty {
		rows = e.Row2 - e.Row1 + 1
		cols = e.Col2 - e.Col1 + 1
	}
	meta.RowCount = &rows
	meta.ColumnCount = &cols
	return meta
}

// openRows starts a row stream, converting decoder failures and panics into
// corrupt-file errors scoped to the sheet.
func (h *Handle) openRows(sheet string) (src rowSource, err error) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return nil, &Error{Op: "read", Kind: ErrHandleClosed, Path: h.Path, Sheet: sheet}
	}
	defer func() {
		if v := recover(); v != nil {
			src, err = nil, &Error{Op: "read", Kind: ErrCorruptFile, Path: h.Path, Sheet: sheet, Err: panicError(v)}
		}
	}()
	src, err = h.book.Rows(sheet)
	if err != nil {
		return nil, &Error{Op: "read", Kind: ErrCorruptFile, Path: h.Path, Sheet: sheet, Err: err}
	}
	return src, nil
}

// Close releases the decoded workbook and its open-workbook slot. It is safe
// to call more than once.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	err := h.book.Close()
	if h.release != nil {
		h.release()
	}
	return err
}
