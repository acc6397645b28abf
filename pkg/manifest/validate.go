package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fulmenhq/gofulmen/schema"

	schemasassets "github.com/tailorforge/tailorbatch/internal/assets/schemas"
)

// SchemaID identifies the batch-manifest schema version.
const SchemaID = "tailorbatch/v1.0.0/batch-manifest"

var (
	// ErrSchemaNotFound indicates the embedded schema is missing or empty.
	ErrSchemaNotFound = errors.New("manifest schema not found")

	// ErrValidationFailed indicates the manifest failed schema validation.
	ErrValidationFailed = errors.New("manifest validation failed")
)

var (
	validatorOnce sync.Once
	validator     *schema.Validator
	validatorErr  error
)

// ValidationError is a single schema violation, located by JSON
// pointer (e.g. "/items/0/posting_ref").
type ValidationError struct {
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// ValidationErrors carries every violation found in one pass, so a
// bad manifest is reported whole instead of one field at a time.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return "validation failed"
	case 1:
		return e[0].Error()
	}

	lines := make([]string, 0, len(e)+1)
	lines = append(lines, fmt.Sprintf("manifest validation failed with %d errors:", len(e)))
	for _, err := range e {
		lines = append(lines, "  - "+err.Error())
	}
	return strings.Join(lines, "\n")
}

// Unwrap makes errors.Is(err, ErrValidationFailed) hold for any
// non-empty collection.
func (e ValidationErrors) Unwrap() error {
	return ErrValidationFailed
}

// Validate checks the struct form of a manifest. Marshalling drops
// unknown fields, so strict input checking goes through ValidateRaw on
// the original bytes.
func Validate(m *Manifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to serialize manifest for validation: %w", err)
	}
	return ValidateRaw(data)
}

// ValidateRaw checks raw manifest JSON against the embedded schema,
// including rejection of unknown fields (additionalProperties: false).
func ValidateRaw(jsonData []byte) error {
	v, err := loadValidator()
	if err != nil {
		return err
	}

	diags, err := v.ValidateJSON(jsonData)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	var errs ValidationErrors
	for _, d := range diags {
		if d.Severity != schema.SeverityError {
			continue
		}
		errs = append(errs, ValidationError{Path: d.Pointer, Message: d.Message})
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// loadValidator compiles the embedded schema on first use. The schema
// ships inside the binary, so validation needs no files on disk.
func loadValidator() (*schema.Validator, error) {
	validatorOnce.Do(func() {
		if len(schemasassets.BatchManifestSchema) == 0 {
			validatorErr = fmt.Errorf("%w: embedded batch-manifest schema is empty", ErrSchemaNotFound)
			return
		}
		validator, validatorErr = schema.NewValidator(schemasassets.BatchManifestSchema)
		if validatorErr != nil {
			validatorErr = fmt.Errorf("failed to compile manifest schema: %w", validatorErr)
		}
	})
	return validator, validatorErr
}
