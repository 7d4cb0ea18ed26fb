package schemas

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const techSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["name", "score"],
	"properties": {
		"name": {"type": "string", "minLength": 1},
		"score": {"type": "number", "minimum": 0, "maximum": 100},
		"sources": {"type": "array", "items": {"type": "string"}}
	}
}`

func TestValidateFile(t *testing.T) {
	schemaPath := filepath.Join("testdata", "valid_schema.json")

	tests := []struct {
		name      string
		doc       string
		wantField string
		wantRule  string
	}{
		{name: "valid", doc: "valid_json.json"},
		{name: "missing fields", doc: "invalid_json.json", wantField: "(root)", wantRule: "required"},
		{name: "wrong type", doc: "type_mismatch.json", wantField: "maturity_score", wantRule: "invalid_type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFile(schemaPath, filepath.Join("testdata", tt.doc))
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, "valid_schema.json", verr.Schema)
			require.NotEmpty(t, verr.Errors)
			assert.Equal(t, tt.wantField, verr.Errors[0].Field)
			assert.Equal(t, tt.wantRule, verr.Errors[0].Rule)
		})
	}
}

func TestValidateFile_Missing(t *testing.T) {
	err := ValidateFile(filepath.Join("testdata", "nope.json"), filepath.Join("testdata", "valid_json.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	err = ValidateFile(filepath.Join("testdata", "valid_schema.json"), filepath.Join("testdata", "nope.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidateFile_MalformedDocument(t *testing.T) {
	doc := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(doc, []byte("{ not json }"), 0o644))

	err := ValidateFile(filepath.Join("testdata", "valid_schema.json"), doc)
	assert.ErrorIs(t, err, ErrMalformedDocument)
}

func TestCompile_Invalid(t *testing.T) {
	_, err := Compile("broken", `{"type": 12}`)
	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "broken", cerr.Schema)
	assert.Contains(t, err.Error(), "failed to compile schema broken")
}

func TestCompile_Cached(t *testing.T) {
	a, err := Compile("tech", techSchema)
	require.NoError(t, err)
	b, err := Compile("tech", techSchema)
	require.NoError(t, err)
	assert.Same(t, a, b)

	c, err := Compile("other", techSchema)
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	assert.Equal(t, "other", c.Name())
}

func TestSchema_Validate(t *testing.T) {
	s, err := Compile("tech", techSchema)
	require.NoError(t, err)

	type record struct {
		Name    string   `json:"name"`
		Score   float64  `json:"score"`
		Sources []string `json:"sources,omitempty"`
	}

	assert.NoError(t, s.Validate(record{Name: "agents", Score: 80, Sources: []string{"papers"}}))

	err = s.Validate(record{Name: "agents", Score: 101})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Errors, 1)
	assert.Equal(t, "score", verr.Errors[0].Field)

	err = s.Validate(record{Name: "", Score: -1})
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Errors, 2)
}

func TestSchema_ValidateJSON(t *testing.T) {
	s, err := Compile("tech", techSchema)
	require.NoError(t, err)

	assert.NoError(t, s.ValidateJSON(`{"name": "agents", "score": 0}`))

	err = s.ValidateJSON(`{"name": "agents", "score": 5, "sources": [1]}`)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "sources.0", verr.Errors[0].Field)

	assert.ErrorIs(t, s.ValidateJSON(`{"name":`), ErrMalformedDocument)
}

func TestValidateJSONString(t *testing.T) {
	assert.NoError(t, ValidateJSONString(techSchema, `{"name": "edge ai", "score": 42.5}`))
	assert.Error(t, ValidateJSONString(techSchema, `{"score": 42.5}`))

	var cerr *CompileError
	assert.ErrorAs(t, ValidateJSONString(`{"required": "name"}`, `{}`), &cerr)
}

func TestValidateValue_Nested(t *testing.T) {
	schema := `{
		"type": "object",
		"properties": {
			"evidence": {
				"type": "object",
				"required": ["tech_ids"],
				"properties": {"tech_ids": {"type": "array", "minItems": 1}}
			}
		}
	}`

	err := ValidateValue(schema, map[string]any{"evidence": map[string]any{"tech_ids": []string{}}})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "evidence.tech_ids", verr.Errors[0].Field)
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{
		Schema: "ranking.schema.json",
		Errors: []FieldError{
			{Field: "run_id", Message: "run_id is required"},
			{Field: "ranking.themes.0.final_score", Message: "Must be less than or equal to 100"},
		},
	}
	assert.Equal(t,
		"ranking.schema.json: 2 violation(s): run_id: run_id is required; ranking.themes.0.final_score: Must be less than or equal to 100",
		err.Error())
}

func TestFindFile(t *testing.T) {
	found := FindFile(filepath.Join("schemas", "ranking.schema.json"))
	require.NotEmpty(t, found, "the repository schema is reachable from the package directory")
	assert.True(t, filepath.IsAbs(found))

	assert.Empty(t, FindFile(filepath.Join("schemas", "missing.schema.json")))

	abs, err := filepath.Abs(filepath.Join("testdata", "valid_schema.json"))
	require.NoError(t, err)
	assert.Equal(t, abs, FindFile(abs))
}
