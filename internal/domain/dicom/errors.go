package dicom

import "fmt"

// ParseError reports a malformed wire stream. It is a business error: the
// orchestrator never retries it.
type ParseError struct {
	Offset int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("dicom parse error at offset %d: %s", e.Offset, e.Reason)
}

// MissingRequiredTagError reports the first mandatory identifier absent from
// an otherwise well-formed dataset.
type MissingRequiredTagError struct {
	Tag  Tag
	Name string
}

func (e *MissingRequiredTagError) Error() string {
	return fmt.Sprintf("missing required tag %s %s", e.Tag, e.Name)
}
