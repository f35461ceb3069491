package validation

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/vinodismyname/xlread/pkg/pagination"
)

var (
	v    *validator.Validate
	once sync.Once
)

// Validator returns a singleton validator with custom rules registered.
func Validator() *validator.Validate {
	once.Do(func() {
		v = validator.New()
		// Custom: workbook path must be absolute; relative paths are rejected before any I/O
		_ = v.RegisterValidation("abs_path", func(fl validator.FieldLevel) bool {
			s := strings.TrimSpace(fl.Field().String())
			return s != "" && filepath.IsAbs(s)
		})
		// Custom: cursor must be decodable via pagination.DecodeCursor
		_ = v.RegisterValidation("cursor", func(fl validator.FieldLevel) bool {
			s := strings.TrimSpace(fl.Field().String())
			if s == "" {
				return true // empty is allowed; use omitempty with this tag
			}
			_, err := pagination.DecodeCursor(s)
			return err == nil
		})
		// Custom: valid_regex is only enforced if a sibling boolean field named "Regex" is true
		_ = v.RegisterValidation("valid_regex", func(fl validator.FieldLevel) bool {
			parent := fl.Parent()
			if !parent.IsValid() {
				return true
			}
			rf := parent.FieldByName("Regex")
			if !rf.IsValid() || rf.Kind().String() != "bool" || !rf.Bool() {
				return true
			}
			s := fl.Field().String()
			if s == "" {
				return true // required/required_without report emptiness
			}
			_, err := regexp.Compile(s)
			return err == nil
		})
	})
	return v
}

// ValidateStruct validates a struct and returns a user-friendly error string
// in "CODE: message" form suitable for mcperr.FromText. Returns empty string
// when valid.
func ValidateStruct(s any) string {
	err := Validator().Struct(s)
	if err == nil {
		return ""
	}
	ve, ok := err.(validator.ValidationErrors)
	if !ok || len(ve) == 0 {
		return "VALIDATION: invalid inputs"
	}
	fe := ve[0]
	field := toSnake(fe.Field())
	switch fe.Tag() {
	case "required":
		if field == "file_path" {
			return "INVALID_PATH: file_path is required"
		}
		return fmt.Sprintf("VALIDATION: %s is required", field)
	case "required_without":
		return fmt.Sprintf("VALIDATION: %s is required (or supply cursor)", field)
	case "abs_path":
		return fmt.Sprintf("INVALID_PATH: file_path must be absolute, got %q", fe.Value())
	case "cursor":
		return "CURSOR_INVALID: failed to decode cursor; restart the search without it"
	case "valid_regex":
		return "INVALID_QUERY: invalid regex; examples: 'foo.*' or '^\\d{4}$'"
	case "excluded_with":
		return fmt.Sprintf("VALIDATION: %s cannot be combined with %s", field, toSnake(fe.Param()))
	case "min", "max", "gte", "lte":
		return fmt.Sprintf("VALIDATION: %s must satisfy %s=%s", field, fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("VALIDATION: invalid %s", field)
}

// toSnake converts a Go field name such as FilePath to file_path.
func toSnake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
