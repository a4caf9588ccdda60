package deident

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/clinimeta/dicomflow/internal/domain/dicom"
)

// knownVRs are the value representations the de-identifier understands for
// tags outside the policy table. Anything else is either skipped (lenient)
// or rejected (strict).
var knownVRs = map[string]bool{
	"AE": true, "AS": true, "AT": true, "CS": true, "DA": true, "DS": true,
	"DT": true, "FL": true, "FD": true, "IS": true, "LO": true, "LT": true,
	"OB": true, "OD": true, "OF": true, "OW": true, "PN": true, "SH": true,
	"SL": true, "SQ": true, "SS": true, "ST": true, "TM": true, "UI": true,
	"UL": true, "UN": true, "US": true, "UT": true,
}

// Result is the outcome of one de-identification pass.
type Result struct {
	// Dataset is the cleaned copy; the input is never mutated.
	Dataset *dicom.Dataset
	// Removed lists deleted tags in dataset order.
	Removed []dicom.Tag
	// PseudonymID is the stable substitute for the source patient ID.
	PseudonymID string
	// Skipped counts unknown-VR tags passed over in lenient mode.
	Skipped int
}

// Deidentifier removes PHI from datasets per an immutable policy table.
// It holds no mutable state and is safe for concurrent use.
type Deidentifier struct {
	policy Policy
	secret []byte
	mode   Mode
}

func New(policy Policy, secret []byte, mode Mode) *Deidentifier {
	k := make([]byte, len(secret))
	copy(k, secret)
	return &Deidentifier{policy: policy, secret: k, mode: mode}
}

// Apply de-identifies the dataset and returns the cleaned copy.
//
// explicitID, when non-empty, overrides the derived pseudonym but must still
// differ from the source identifier. Apply is pure and idempotent: applying
// it to its own output removes zero additional tags.
func (d *Deidentifier) Apply(ds *dicom.Dataset, explicitID string) (Result, error) {
	sourceID := ds.String(dicom.TagPatientID)

	pseudo := explicitID
	if pseudo == "" {
		pseudo = d.Pseudonym(sourceID)
	} else if pseudo == sourceID {
		return Result{}, ErrPseudonymMatchesSource
	}

	clean := ds.Clone()
	res := Result{PseudonymID: pseudo}

	for _, e := range ds.Elements() {
		action, covered := d.policy.Lookup(e.Tag)
		if !covered {
			if !knownVRs[e.VR] {
				if d.mode == ModeStrict {
					return Result{}, &UnsupportedTagError{Tag: e.Tag, VR: e.VR}
				}
				res.Skipped++
			}
			continue
		}

		switch action {
		case ActionRemove:
			if clean.Delete(e.Tag) {
				res.Removed = append(res.Removed, e.Tag)
			}
		case ActionShiftDate:
			shiftDateValue(clean, e)
		case ActionPreserve:
			// diagnostic field, left untouched
		}
	}

	if sourceID != "" {
		clean.SetString(dicom.TagPatientID, "LO", pseudo)
	}
	if acc := clean.String(dicom.TagAccessionNumber); acc != "" {
		clean.SetString(dicom.TagAccessionNumber, "SH", d.Pseudonym(acc))
	}

	clean.SetString(dicom.TagPatientIdentityRemoved, "CS", "YES")
	clean.SetString(dicom.TagDeidentificationMethod, "LO", "Safe Harbor, year-precision dates, keyed pseudonyms")

	res.Dataset = clean
	return res, nil
}

// Pseudonym derives the stable substitute identifier: a keyed one-way
// transform, so f(x) == f(x) across calls and processes while f(x) != x and
// the source is not recoverable without the key.
func (d *Deidentifier) Pseudonym(sourceID string) string {
	p := d.hash("id:" + sourceID)
	if p == sourceID {
		// hex collision with the input itself; re-key once
		p = d.hash("id2:" + sourceID)
	}
	return p
}

func (d *Deidentifier) hash(s string) string {
	mac := hmac.New(sha256.New, d.secret)
	mac.Write([]byte(s))
	return hex.EncodeToString(mac.Sum(nil))[:16]
}

// shiftDateValue coarsens a date to year precision ("20230615" → "20230100")
// and zeroes times. Values too short to carry a year are left alone and then
// caught by validation.
func shiftDateValue(ds *dicom.Dataset, e dicom.Element) {
	switch e.VR {
	case "DA":
		v := ds.String(e.Tag)
		if len(v) >= 4 {
			ds.SetString(e.Tag, "DA", v[:4]+"0100")
		}
	case "TM":
		ds.SetString(e.Tag, "TM", "000000")
	}
}
