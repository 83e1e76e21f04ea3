// Package schemas provides JSON Schema validation for enrichment results.
//
// Results cross a trust boundary (an external service POSTs them to the
// webhook), so their shape is checked against a schema before any field is
// merged into the phrase store.
package schemas

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed enrichment_result.json
var enrichmentResultSchema string

//go:embed audio_result.json
var audioResultSchema string

// FieldError is a single validation error at a specific field path.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError aggregates schema violations for one document.
type ValidationError struct {
	Errors []FieldError
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("result validation failed:")
	for _, e := range ve.Errors {
		fmt.Fprintf(&sb, " %s: %s;", e.Field, e.Message)
	}
	return strings.TrimSuffix(sb.String(), ";")
}

// ValidateEnrichmentResult checks raw JSON bytes against the embedded result
// schema. A schema-invalid document returns *ValidationError; any other error
// means the schema itself failed to load or the document is not JSON.
func ValidateEnrichmentResult(raw []byte) error {
	return validate(enrichmentResultSchema, raw)
}

// ValidateAudioResult checks the result of an audio-only job. Speech synthesis
// produces no translation or analysis, so only the synthesized text and audio
// fields are expected.
func ValidateAudioResult(raw []byte) error {
	return validate(audioResultSchema, raw)
}

func validate(schema string, raw []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(schema)
	docLoader := gojsonschema.NewBytesLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("failed to validate result: %w", err)
	}
	if result.Valid() {
		return nil
	}

	ve := &ValidationError{}
	for _, desc := range result.Errors() {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   desc.Field(),
			Message: desc.Description(),
		})
	}
	sort.Slice(ve.Errors, func(i, j int) bool { return ve.Errors[i].Field < ve.Errors[j].Field })
	return ve
}
