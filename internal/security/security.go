package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vinodismyname/xlread/internal/workbooks"
)

// Errors reported by ValidateOpenPath, always wrapped in a *PathError.
var (
	// ErrNotAllowed indicates the requested path is outside the allow-list roots.
	ErrNotAllowed = errors.New("security: path not allowed")
	// ErrUnsupportedExtension indicates the requested file extension is not supported.
	ErrUnsupportedExtension = errors.New("security: unsupported file extension")
	// ErrNotFound indicates the requested file does not exist or is not a regular file.
	ErrNotFound = errors.New("security: file not found")
)

// PathError records a rejected workbook path.
type PathError struct {
	Path   string
	Reason error
	Detail string
}

func (e *PathError) Error() string {
	msg := fmt.Sprintf("%v: %s", e.Reason, e.Path)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *PathError) Unwrap() error { return e.Reason }

// Manager is the workbook path policy: supported extensions, existing regular
// files, and optionally a set of allow-list directories. Roots are stored in
// canonical form (absolute, symlinks resolved) so symlinked paths cannot
// escape them. An empty allow-list permits any readable path.
type Manager struct {
	roots []string
	exts  map[string]struct{}
}

// NewManager builds a Manager from allow-list directories and extensions
// (case-insensitive, leading dot). Nil extensions select every format the
// workbooks package can decode. A leading "~" in a directory expands to the
// user's home directory.
func NewManager(allowDirs []string, allowedExtensions []string) (*Manager, error) {
	if len(allowedExtensions) == 0 {
		allowedExtensions = workbooks.SupportedExtensions
	}
	m := &Manager{exts: make(map[string]struct{}, len(allowedExtensions))}
	for _, e := range allowedExtensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if !strings.HasPrefix(e, ".") || len(e) < 2 {
			return nil, fmt.Errorf("security: invalid extension %q", e)
		}
		m.exts[e] = struct{}{}
	}

	for _, d := range allowDirs {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		root, err := canonicalRoot(d)
		if err != nil {
			return nil, err
		}
		m.roots = append(m.roots, root)
	}
	return m, nil
}

func canonicalRoot(dir string) (string, error) {
	if dir == "~" || strings.HasPrefix(dir, "~"+string(filepath.Separator)) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("security: expand %q: %w", dir, err)
		}
		dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("security: resolve %q: %w", dir, err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("security: allow-list entry %q: %w", abs, err)
	}
	info, err := os.Stat(real)
	if err != nil {
		return "", fmt.Errorf("security: allow-list entry %q: %w", real, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("security: allow-list entry is not a directory: %q", real)
	}
	return filepath.Clean(real), nil
}

// AllowedDirectories returns the canonical allow-list roots.
func (m *Manager) AllowedDirectories() []string {
	return append([]string(nil), m.roots...)
}

// Restricted reports whether an allow-list is in effect.
func (m *Manager) Restricted() bool { return len(m.roots) > 0 }

// ValidateOpenPath checks that input names an existing regular file with a
// supported extension, inside an allow-list root when one is configured. It
// returns the canonical path to open. It satisfies workbooks.PathValidator.
func (m *Manager) ValidateOpenPath(input string) (string, error) {
	reject := func(reason error, detail string) (string, error) {
		return "", &PathError{Path: input, Reason: reason, Detail: detail}
	}
	if strings.TrimSpace(input) == "" {
		return reject(ErrNotFound, "empty path")
	}
	if _, ok := m.exts[strings.ToLower(filepath.Ext(input))]; !ok {
		return reject(ErrUnsupportedExtension, "extension "+filepath.Ext(input))
	}

	abs, err := filepath.Abs(input)
	if err != nil {
		return "", fmt.Errorf("security: resolve %q: %w", input, err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return reject(ErrNotFound, "")
		}
		return "", fmt.Errorf("security: resolve %q: %w", abs, err)
	}
	info, err := os.Stat(real)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return reject(ErrNotFound, "")
	case err != nil:
		return "", fmt.Errorf("security: stat %q: %w", real, err)
	case !info.Mode().IsRegular():
		return reject(ErrNotFound, "not a regular file")
	}

	if !m.Restricted() {
		return real, nil
	}
	for _, root := range m.roots {
		if within(root, real) {
			return real, nil
		}
	}
	return reject(ErrNotAllowed, "allowed roots: "+strings.Join(m.roots, ", "))
}

// within reports whether p lies strictly below root.
func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Classify maps validation failures onto workbook error kinds so callers see
// FILE_NOT_FOUND or UNSUPPORTED_FORMAT rather than a generic denial. It
// satisfies workbooks.Classifier.
func (m *Manager) Classify(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return workbooks.ErrFileNotFound
	case errors.Is(err, ErrUnsupportedExtension):
		return workbooks.ErrUnsupportedFormat
	case errors.Is(err, ErrNotAllowed):
		return workbooks.ErrPermissionDenied
	default:
		return nil
	}
}
