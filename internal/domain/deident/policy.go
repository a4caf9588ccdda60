package deident

import "github.com/clinimeta/dicomflow/internal/domain/dicom"

// Action is what the policy does with a PHI-bearing tag.
type Action int

const (
	// ActionRemove deletes the tag entirely and records it in the audit list.
	ActionRemove Action = iota
	// ActionShiftDate keeps only the year of a date, zeroing month/day, and
	// zeroes time values.
	ActionShiftDate
	// ActionPreserve leaves diagnostic fields untouched.
	ActionPreserve
)

// Mode controls how tags with an unrecognized value representation outside
// the policy are handled.
type Mode int

const (
	// ModeLenient skips the tag and records a count.
	ModeLenient Mode = iota
	// ModeStrict fails the whole operation.
	ModeStrict
)

// Policy is the immutable tag → action table. It is built once at startup
// and shared read-only across all concurrent pipeline executions.
type Policy struct {
	actions map[dicom.Tag]Action
}

func NewPolicy(actions map[dicom.Tag]Action) Policy {
	m := make(map[dicom.Tag]Action, len(actions))
	for t, a := range actions {
		m[t] = a
	}
	return Policy{actions: m}
}

// Lookup returns the action for a tag and whether the tag is covered.
func (p Policy) Lookup(t dicom.Tag) (Action, bool) {
	a, ok := p.actions[t]
	return a, ok
}

func (p Policy) Len() int { return len(p.actions) }

// DefaultPolicy is the HIPAA Safe Harbor table: direct identifiers removed,
// dates coarsened to year precision, diagnostic fields preserved.
func DefaultPolicy() Policy {
	return NewPolicy(map[dicom.Tag]Action{
		dicom.TagPatientName:         ActionRemove,
		dicom.TagPatientBirthDate:    ActionRemove,
		dicom.TagPatientAddress:      ActionRemove,
		dicom.TagPatientTelephone:    ActionRemove,
		dicom.TagInstitutionName:     ActionRemove,
		dicom.TagInstitutionAddress:  ActionRemove,
		dicom.TagReferringPhysician:  ActionRemove,
		dicom.TagPerformingPhysician: ActionRemove,
		dicom.TagOperatorsName:       ActionRemove,
		dicom.TagStationName:         ActionRemove,
		dicom.TagProtocolName:        ActionRemove,
		dicom.TagDeviceSerialNumber:  ActionRemove,

		dicom.TagStudyDate:            ActionShiftDate,
		dicom.TagSeriesDate:           ActionShiftDate,
		dicom.TagAcquisitionDate:      ActionShiftDate,
		dicom.TagContentDate:          ActionShiftDate,
		dicom.TagInstanceCreationDate: ActionShiftDate,
		dicom.TagStudyTime:            ActionShiftDate,
		dicom.TagSeriesTime:           ActionShiftDate,
		dicom.TagAcquisitionTime:      ActionShiftDate,
		dicom.TagContentTime:          ActionShiftDate,
		dicom.TagInstanceCreationTime: ActionShiftDate,

		dicom.TagModality:         ActionPreserve,
		dicom.TagBodyPartExamined: ActionPreserve,
		dicom.TagRows:             ActionPreserve,
		dicom.TagColumns:          ActionPreserve,
		dicom.TagPixelSpacing:     ActionPreserve,
		dicom.TagBitsAllocated:    ActionPreserve,
		dicom.TagBitsStored:       ActionPreserve,
		dicom.TagPatientSex:       ActionPreserve,
		dicom.TagPatientAge:       ActionPreserve,
	})
}
