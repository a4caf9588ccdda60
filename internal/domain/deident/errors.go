package deident

import (
	"errors"
	"fmt"

	"github.com/clinimeta/dicomflow/internal/domain/dicom"
)

// UnsupportedTagError reports a tag with an unrecognized value
// representation under strict mode. Under lenient mode the tag is skipped
// and counted instead.
type UnsupportedTagError struct {
	Tag dicom.Tag
	VR  string
}

func (e *UnsupportedTagError) Error() string {
	return fmt.Sprintf("unsupported value representation %q for tag %s", e.VR, e.Tag)
}

// ErrPseudonymMatchesSource rejects an explicit pseudonym equal to the
// identifier it is supposed to replace.
var ErrPseudonymMatchesSource = errors.New("explicit pseudonym equals source identifier")
