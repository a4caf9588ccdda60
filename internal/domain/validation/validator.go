package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/clinimeta/dicomflow/internal/domain/dicom"
)

// FieldError is one contract violation on one field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Result aggregates every violation found in one pass. Downstream failure
// reporting shows all problems at once, so the validator never fails fast.
type Result struct {
	Valid  bool         `json:"valid"`
	Errors []FieldError `json:"errors,omitempty"`
}

// Error carries an invalid result as a single error value so the workflow
// can route on it while keeping every violation intact.
type Error struct {
	Result Result
}

func (e *Error) Error() string {
	parts := make([]string, len(e.Result.Errors))
	for i, fe := range e.Result.Errors {
		parts[i] = fe.Error()
	}
	return fmt.Sprintf("metadata validation failed: %s", strings.Join(parts, "; "))
}

// Err flattens the result into a single error, or nil when valid.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return &Error{Result: r}
}

var (
	dateRe = regexp.MustCompile(`^\d{8}$`)
	uidRe  = regexp.MustCompile(`^[\d.]+$`)
)

// Validate checks the record against its field contracts and returns the
// complete violation set. The record is never mutated.
func Validate(rec *dicom.MetadataRecord) Result {
	var errs []FieldError

	add := func(field, reason string) {
		errs = append(errs, FieldError{Field: field, Reason: reason})
	}

	checkIdentifier(add, "patient.id", rec.Patient.ID)
	checkUID(add, "study.instance_uid", rec.Study.InstanceUID)
	checkUID(add, "series.instance_uid", rec.Series.InstanceUID)
	checkUID(add, "image.sop_instance_uid", rec.Image.SOPInstanceUID)

	checkDate(add, "patient.birth_date", rec.Patient.BirthDate)
	checkDate(add, "study.date", rec.Study.Date)

	if s := rec.Patient.Sex; s != "" && s != "M" && s != "F" && s != "O" {
		add("patient.sex", fmt.Sprintf("must be one of M, F, O, got %q", s))
	}

	checkDimension(add, "series.number", rec.Series.Number)
	checkDimension(add, "image.instance_number", rec.Image.InstanceNumber)
	checkDimension(add, "image.rows", rec.Image.Rows)
	checkDimension(add, "image.columns", rec.Image.Columns)
	checkDimension(add, "image.bits_allocated", rec.Image.BitsAllocated)
	checkDimension(add, "image.bits_stored", rec.Image.BitsStored)

	if rec.Image.BitsAllocated > 0 && rec.Image.BitsStored > rec.Image.BitsAllocated {
		add("image.bits_stored", "cannot exceed bits_allocated")
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}

func checkIdentifier(add func(string, string), field, v string) {
	if strings.TrimSpace(v) == "" {
		add(field, "must be a non-empty identifier")
		return
	}
	for _, r := range v {
		if !unicode.IsPrint(r) {
			add(field, "contains non-printable characters")
			return
		}
	}
}

func checkUID(add func(string, string), field, v string) {
	if strings.TrimSpace(v) == "" {
		add(field, "must be a non-empty identifier")
		return
	}
	if !uidRe.MatchString(v) {
		add(field, "must contain only digits and dots")
		return
	}
	if strings.HasPrefix(v, ".") || strings.HasSuffix(v, ".") || strings.Contains(v, "..") {
		add(field, "has invalid dot placement")
	}
}

func checkDate(add func(string, string), field, v string) {
	if v != "" && !dateRe.MatchString(v) {
		add(field, fmt.Sprintf("must be 8 numeric digits, got %q", v))
	}
}

func checkDimension(add func(string, string), field string, v int) {
	if v < 0 {
		add(field, "must be non-negative")
	}
}
