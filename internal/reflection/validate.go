package reflection

import (
	"fmt"
	"strings"

	"github.com/dshills/agentdojo/internal/schema"
)

// MaxPatchFieldBytes is the maximum allowed size for any single string field
// written from reflection output.
const MaxPatchFieldBytes = 512_000

// ValidationError records a single validation failure on a reflection
// response.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// ValidateResponse is the mandatory gate applied before any side effect. A
// non-nil error means the response is discarded in full — the guardrail
// store and the skill sandbox are never touched by a partially valid
// response.
func ValidateResponse(resp *schema.ReflectionResponse) error {
	if resp == nil {
		return ValidationError{Field: "response", Message: "response is not structured"}
	}

	if len(resp.GuardrailPatch) > MaxPatchFieldBytes {
		return ValidationError{
			Field:   "guardrail_patch",
			Message: fmt.Sprintf("exceeds max size (%d bytes)", MaxPatchFieldBytes),
		}
	}
	if strings.ContainsRune(resp.GuardrailPatch, 0) {
		return ValidationError{Field: "guardrail_patch", Message: "contains null byte"}
	}
	if strings.ContainsRune(resp.FailureReason, 0) {
		return ValidationError{Field: "failure_reason", Message: "contains null byte"}
	}

	for i, op := range resp.SkillPatch.CreateFiles {
		field := fmt.Sprintf("skill_patch.create_files[%d]", i)
		if err := checkPathField(field, op.Path); err != nil {
			return err
		}
		if err := checkContentField(field+".content", op.Content); err != nil {
			return err
		}
	}
	for i, op := range resp.SkillPatch.ModifyFiles {
		field := fmt.Sprintf("skill_patch.modify_files[%d]", i)
		if err := checkPathField(field, op.Path); err != nil {
			return err
		}
		if err := checkContentField(field+".append", op.Append); err != nil {
			return err
		}
	}

	return nil
}

func checkPathField(field, path string) error {
	if strings.ContainsRune(path, 0) {
		return ValidationError{Field: field + ".path", Message: "contains null byte"}
	}
	return nil
}

func checkContentField(field, content string) error {
	if strings.ContainsRune(content, 0) {
		return ValidationError{Field: field, Message: "contains null byte"}
	}
	if len(content) > MaxPatchFieldBytes {
		return ValidationError{
			Field:   field,
			Message: fmt.Sprintf("exceeds max size (%d bytes)", MaxPatchFieldBytes),
		}
	}
	return nil
}
