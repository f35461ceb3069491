package pagination

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Cursor is the canonical, opaque search resume token (pre-encoding) with short
// field names to minimize payload size. It is serialized to minified JSON and
// encoded with URL-safe base64.
//
// Fields:
//   - v:   version of the cursor schema
//   - p:   canonical workbook path
//   - mt:  workbook modification time (unix nanoseconds) at issue
//   - qh:  query hash binding the cursor to its search parameters
//   - q:   original query text, enabling cursor-only resume
//   - sh:  optional sheet filter
//   - cs:  case-sensitive flag
//   - rg:  regex flag
//   - si:  0-based sheet index of the next match
//   - r:   1-based row of the next match
//   - c:   1-based column of the next match
//   - ps:  page size (max matches per page)
//   - iat: issued-at timestamp (unix seconds)
type Cursor struct {
	V   int    `json:"v"`
	P   string `json:"p"`
	Mt  int64  `json:"mt"`
	Qh  string `json:"qh"`
	Q   string `json:"q"`
	Sh  string `json:"sh,omitempty"`
	Cs  bool   `json:"cs,omitempty"`
	Rg  bool   `json:"rg,omitempty"`
	Si  int    `json:"si"`
	R   int    `json:"r"`
	C   int    `json:"c"`
	Ps  int    `json:"ps"`
	Iat int64  `json:"iat"`
}

// ErrStale reports a cursor issued for different parameters or an older file.
var ErrStale = errors.New("cursor: stale or mismatched")

// QueryHash fingerprints the parameters a cursor is bound to.
func QueryHash(query, sheet string, caseSensitive, regex bool) string {
	h := sha256.New()
	fmt.Fprintf(h, "%q|%q|%t|%t", query, sheet, caseSensitive, regex)
	return hex.EncodeToString(h.Sum(nil)[:8])
}

// EncodeCursor serializes and encodes the cursor as URL-safe base64 (without padding).
func EncodeCursor(c Cursor) (string, error) {
	if c.Qh == "" {
		c.Qh = QueryHash(c.Q, c.Sh, c.Cs, c.Rg)
	}
	if err := validate(&c); err != nil {
		return "", err
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeCursor decodes a URL-safe base64 token and parses the JSON cursor.
func DecodeCursor(token string) (*Cursor, error) {
	t := strings.TrimSpace(token)
	if t == "" {
		return nil, errors.New("cursor: empty token")
	}
	data, err := base64.RawURLEncoding.DecodeString(t)
	if err != nil {
		return nil, fmt.Errorf("cursor: invalid base64: %w", err)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("cursor: invalid json: %w", err)
	}
	if err := validate(&c); err != nil {
		return nil, err
	}
	if c.Qh != QueryHash(c.Q, c.Sh, c.Cs, c.Rg) {
		return nil, errors.New("cursor: query hash mismatch")
	}
	return &c, nil
}

// Check verifies the cursor still applies to the workbook at path with the
// given modification time.
func (c *Cursor) Check(path string, modTime time.Time) error {
	if c.P != path {
		return fmt.Errorf("%w: issued for %q", ErrStale, c.P)
	}
	if c.Mt != modTime.UnixNano() {
		return fmt.Errorf("%w: workbook modified since cursor was issued", ErrStale)
	}
	return nil
}

// validate performs structural checks and defaulting.
func validate(c *Cursor) error {
	if c.V <= 0 {
		c.V = 1
	}
	if c.Iat == 0 {
		c.Iat = time.Now().Unix()
	}
	if strings.TrimSpace(c.P) == "" {
		return errors.New("cursor: p (path) required")
	}
	if c.Q == "" {
		return errors.New("cursor: q (query) required")
	}
	if c.Si < 0 {
		return errors.New("cursor: si must be >= 0")
	}
	if c.R < 1 || c.C < 1 {
		return errors.New("cursor: r and c must be >= 1")
	}
	if c.Ps <= 0 {
		return errors.New("cursor: ps must be > 0")
	}
	return nil
}
