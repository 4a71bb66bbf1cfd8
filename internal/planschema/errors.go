package planschema

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var ErrValidation = errors.New("plan validation failed")

// FieldError is one failing field, addressed by path like meals[0].items[2].grams.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError lists every failing field of a document, sorted by path.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation: %s %s", e.Errors[0].Path, e.Errors[0].Message)
	}
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Path+" "+fe.Message)
	}
	return fmt.Sprintf("validation: %d errors: %s", len(e.Errors), strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Fields returns path → reason, the shape used in API error bodies.
func (e *ValidationError) Fields() map[string]string {
	out := make(map[string]string, len(e.Errors))
	for _, fe := range e.Errors {
		out[fe.Path] = fe.Message
	}
	return out
}

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(path, message string) *ValidationError {
	return &ValidationError{Errors: []FieldError{{Path: path, Message: message}}}
}

var indexPattern = regexp.MustCompile(`\[(\d+)\]`)

// sortKey pads indices so meals[2] sorts before meals[10].
func sortKey(path string) string {
	return indexPattern.ReplaceAllStringFunc(path, func(m string) string {
		n, _ := strconv.Atoi(m[1 : len(m)-1])
		return fmt.Sprintf("[%08d]", n)
	})
}

// collector keeps the first reason per path.
type collector struct {
	seen map[string]bool
	errs []FieldError
}

func newCollector() *collector {
	return &collector{seen: make(map[string]bool)}
}

func (c *collector) add(path, message string) {
	if c.seen[path] {
		return
	}
	c.seen[path] = true
	c.errs = append(c.errs, FieldError{Path: path, Message: message})
}

func (c *collector) err() error {
	if len(c.errs) == 0 {
		return nil
	}
	sort.SliceStable(c.errs, func(i, j int) bool {
		return sortKey(c.errs[i].Path) < sortKey(c.errs[j].Path)
	})
	return &ValidationError{Errors: c.errs}
}
