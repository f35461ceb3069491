package workbooks

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type denyAll struct{}

func (denyAll) ValidateOpenPath(string) (string, error) { return "", errors.New("outside allowed directories") }

func TestOpenRejectsRelativePathBeforeIO(t *testing.T) {
	gate := &fakeGate{}
	_, err := NewLoader(WithGate(gate)).Open(context.Background(), "reports/q1.xlsx")
	require.ErrorIs(t, err, ErrInvalidPath)
	require.Equal(t, "INVALID_PATH", Code(err))
	require.Zero(t, gate.acquires.Load())
}

func TestOpenMissingFile(t *testing.T) {
	_, err := NewLoader().Open(context.Background(), filepath.Join(t.TempDir(), "nope.xlsx"))
	require.ErrorIs(t, err, ErrFileNotFound)
	require.Contains(t, err.Error(), "nope.xlsx")
}

func TestOpenDirectory(t *testing.T) {
	_, err := NewLoader().Open(context.Background(), t.TempDir())
	require.ErrorIs(t, err, ErrFileNotFound)
}

func TestOpenUnsupportedExtension(t *testing.T) {
	gate := &fakeGate{}
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o600))

	_, err := NewLoader(WithGate(gate)).Open(context.Background(), path)
	require.ErrorIs(t, err, ErrUnsupportedFormat)
	require.Zero(t, gate.acquires.Load())
}

func TestOpenUnrecognizedSignature(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("just some text"), 0o600))

	_, err := NewLoader().Open(context.Background(), path)
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestOpenCorruptZipReleasesGate(t *testing.T) {
	gate := &fakeGate{}
	path := filepath.Join(t.TempDir(), "broken.xlsx")
	require.NoError(t, os.WriteFile(path, append([]byte("PK\x03\x04"), make([]byte, 64)...), 0o600))

	_, err := NewLoader(WithGate(gate)).Open(context.Background(), path)
	require.ErrorIs(t, err, ErrCorruptFile)
	require.Equal(t, "CORRUPT_WORKBOOK", Code(err))
	require.Equal(t, gate.acquires.Load(), gate.releases.Load())
}

func TestOpenEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.xlsx")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	_, err := NewLoader().Open(context.Background(), path)
	require.ErrorIs(t, err, ErrCorruptFile)
}

func TestOpenValidatorDenied(t *testing.T) {
	gate := &fakeGate{}
	path := createSalesWorkbook(t)

	_, err := NewLoader(WithGate(gate), WithPathValidator(denyAll{})).Open(context.Background(), path)
	require.ErrorIs(t, err, ErrPermissionDenied)
	require.Zero(t, gate.acquires.Load())
}

func TestOpenFileTooLarge(t *testing.T) {
	path := createSalesWorkbook(t)
	_, err := NewLoader(WithMaxFileBytes(16)).Open(context.Background(), path)
	require.ErrorIs(t, err, ErrFileTooLarge)
}

func TestOpenGateBusy(t *testing.T) {
	gate := &fakeGate{acquireErr: context.DeadlineExceeded}
	path := createSalesWorkbook(t)

	_, err := NewLoader(WithGate(gate)).Open(context.Background(), path)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, int64(1), gate.acquires.Load())
	require.Zero(t, gate.releases.Load())
}

func TestOpenCloseReleasesGateOnce(t *testing.T) {
	gate := &fakeGate{}
	path := createSalesWorkbook(t)

	h, err := NewLoader(WithGate(gate)).Open(context.Background(), path)
	require.NoError(t, err)
	require.NotEmpty(t, h.ID)
	require.Equal(t, FormatXLSX, h.Format)
	require.Equal(t, int64(1), gate.acquires.Load())

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
	require.Equal(t, int64(1), gate.releases.Load())

	_, err = h.Read(context.Background(), ReadOptions{})
	require.ErrorIs(t, err, ErrHandleClosed)
}

func TestInfo(t *testing.T) {
	path := createSalesWorkbook(t)
	h := openT(t, path)

	info := h.Info()
	require.Equal(t, path, info.Path)
	require.Equal(t, 2, info.SheetCount)
	require.Equal(t, []string{"Sales", "Notes"}, info.SheetNames)
	require.Positive(t, info.FileSize)
	require.False(t, info.ModifiedAt.IsZero())
	require.Equal(t, "finance", info.Properties["creator"])
	require.Equal(t, "Q1", info.Properties["title"])
}

func TestDimensionsComputedLazily(t *testing.T) {
	h := openT(t, createSalesWorkbook(t))

	for _, s := range h.Sheets() {
		require.Nil(t, s.RowCount)
		require.Nil(t, s.ColumnCount)
	}

	meta, err := h.Dimensions(context.Background(), SheetName("Notes"))
	require.NoError(t, err)
	require.Equal(t, 3, *meta.RowCount)    // rows 3..5
	require.Equal(t, 2, *meta.ColumnCount) // columns B..C

	sheets := h.Sheets()
	require.Nil(t, sheets[0].RowCount)
	require.Equal(t, 3, *sheets[1].RowCount)
}

func TestDimensionsEmptySheet(t *testing.T) {
	f := excelize.NewFile()
	h := openT(t, saveWorkbook(t, f, "blank.xlsx"))

	meta, err := h.Dimensions(context.Background(), Selector{})
	require.NoError(t, err)
	require.Zero(t, *meta.RowCount)
	require.Zero(t, *meta.ColumnCount)
}

func TestSheetSelection(t *testing.T) {
	h := openT(t, createSalesWorkbook(t))

	cases := []struct {
		name string
		sel  Selector
		want string
	}{
		{"default is first", Selector{}, "Sales"},
		{"exact name", SheetName("Notes"), "Notes"},
		{"case insensitive", SheetName("notes"), "Notes"},
		{"trimmed", SheetName("  Sales "), "Sales"},
		{"by index", SheetIndex(1), "Notes"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			meta, err := h.Sheet(tc.sel)
			require.NoError(t, err)
			require.Equal(t, tc.want, meta.Name)
		})
	}
}

func TestSheetNotFoundSuggests(t *testing.T) {
	h := openT(t, createSalesWorkbook(t))

	_, err := h.Sheet(SheetName("Sals"))
	require.ErrorIs(t, err, ErrSheetNotFound)
	require.Contains(t, err.Error(), `did you mean "Sales"`)

	_, err = h.Sheet(SheetName("Inventory"))
	require.ErrorIs(t, err, ErrSheetNotFound)
	require.Contains(t, err.Error(), `"Sales", "Notes"`)

	_, err = h.Sheet(SheetIndex(2))
	require.ErrorIs(t, err, ErrSheetNotFound)
	require.Contains(t, err.Error(), "2 sheet(s)")
}
