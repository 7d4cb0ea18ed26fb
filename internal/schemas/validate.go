// Package schemas validates run artifacts and model output against JSON Schemas.
package schemas

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// maxParentDirs bounds how far FindFile walks up from the working directory
const maxParentDirs = 4

// Schema is a compiled JSON Schema
type Schema struct {
	name     string
	compiled *gojsonschema.Schema
}

// FieldError is one violation reported by a schema
type FieldError struct {
	Field   string
	Rule    string
	Message string
}

// ValidationError lists every violation of a document
type ValidationError struct {
	Schema string
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return fmt.Sprintf("%s: %d violation(s): %s", e.Schema, len(e.Errors), strings.Join(parts, "; "))
}

// CompileError is returned when a schema cannot be parsed
type CompileError struct {
	Schema string
	Cause  error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("failed to compile schema %s: %v", e.Schema, e.Cause)
}

func (e *CompileError) Unwrap() error { return e.Cause }

// ErrMalformedDocument is returned when the validated document is not JSON
var ErrMalformedDocument = errors.New("document is not valid JSON")

var (
	compiledMu sync.Mutex
	compiled   = map[string]*Schema{}
)

// Compile parses schema content. Schemas are cached by name and content, so repeated
// calls with an embedded schema compile it once.
func Compile(name, content string) (*Schema, error) {
	key := name + "\x00" + content
	compiledMu.Lock()
	defer compiledMu.Unlock()
	if s, ok := compiled[key]; ok {
		return s, nil
	}
	c, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(content))
	if err != nil {
		return nil, &CompileError{Schema: name, Cause: err}
	}
	s := &Schema{name: name, compiled: c}
	compiled[key] = s
	return s, nil
}

// Load reads and compiles a schema file.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	return Compile(filepath.Base(path), string(data))
}

// FindFile resolves a relative path against the working directory and its parents.
// It returns the absolute path of the first match, or "" when there is none.
func FindFile(rel string) string {
	if filepath.IsAbs(rel) {
		if _, err := os.Stat(rel); err == nil {
			return rel
		}
		return ""
	}
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for i := 0; i <= maxParentDirs; i++ {
		candidate := filepath.Join(dir, rel)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// Name returns the name the schema was compiled under.
func (s *Schema) Name() string { return s.name }

// Validate checks a Go value through its JSON encoding.
func (s *Schema) Validate(v any) error {
	return s.check(gojsonschema.NewGoLoader(v))
}

// ValidateJSON checks raw JSON text.
func (s *Schema) ValidateJSON(text string) error {
	return s.check(gojsonschema.NewStringLoader(text))
}

func (s *Schema) check(doc gojsonschema.JSONLoader) error {
	result, err := s.compiled.Validate(doc)
	if err != nil {
		return fmt.Errorf("%s: %w: %v", s.name, ErrMalformedDocument, err)
	}
	if result.Valid() {
		return nil
	}

	verr := &ValidationError{Schema: s.name, Errors: make([]FieldError, 0, len(result.Errors()))}
	for _, re := range result.Errors() {
		field := re.Field()
		if field == "" {
			field = "(root)"
		}
		verr.Errors = append(verr.Errors, FieldError{Field: field, Rule: re.Type(), Message: re.Description()})
	}
	return verr
}

// ValidateValue validates a Go value against schema content.
func ValidateValue(schemaContent string, v any) error {
	s, err := Compile("inline", schemaContent)
	if err != nil {
		return err
	}
	return s.Validate(v)
}

// ValidateJSONString validates JSON text against schema content.
func ValidateJSONString(schemaContent, text string) error {
	s, err := Compile("inline", schemaContent)
	if err != nil {
		return err
	}
	return s.ValidateJSON(text)
}

// ValidateFile validates a JSON file against a schema file.
func ValidateFile(schemaPath, jsonPath string) error {
	s, err := Load(schemaPath)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}
	return s.ValidateJSON(string(data))
}
