package deident

import (
	"errors"
	"testing"

	"github.com/clinimeta/dicomflow/internal/domain/dicom"
)

var testSecret = []byte("unit-test-key")

func patientDataset() *dicom.Dataset {
	ds := dicom.NewDataset()
	ds.SetString(dicom.TagSOPInstanceUID, "UI", "1.2.3.4.5.6.7")
	ds.SetString(dicom.TagStudyDate, "DA", "20230615")
	ds.SetString(dicom.TagStudyTime, "TM", "101530")
	ds.SetString(dicom.TagAccessionNumber, "SH", "ACC123")
	ds.SetString(dicom.TagModality, "CS", "CT")
	ds.SetString(dicom.TagInstitutionName, "LO", "General Hospital")
	ds.SetString(dicom.TagReferringPhysician, "PN", "SMITH^JANE")
	ds.SetString(dicom.TagPatientName, "PN", "DOE^JOHN")
	ds.SetString(dicom.TagPatientID, "LO", "12345")
	ds.SetString(dicom.TagPatientBirthDate, "DA", "19800102")
	ds.SetString(dicom.TagPatientSex, "CS", "M")
	ds.SetString(dicom.TagStudyInstanceUID, "UI", "1.2.3.4")
	ds.SetString(dicom.TagSeriesInstanceUID, "UI", "1.2.3.4.5")
	ds.SetString(dicom.TagRows, "US", "512")
	return ds
}

func TestApplyRemovesDirectIdentifiers(t *testing.T) {
	d := New(DefaultPolicy(), testSecret, ModeLenient)

	res, err := d.Apply(patientDataset(), "")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	for _, tag := range []dicom.Tag{
		dicom.TagPatientName,
		dicom.TagPatientBirthDate,
		dicom.TagInstitutionName,
		dicom.TagReferringPhysician,
	} {
		if res.Dataset.Has(tag) {
			t.Errorf("tag %s survived de-identification", tag)
		}
	}
	if len(res.Removed) != 4 {
		t.Fatalf("removed %d tags, want 4: %v", len(res.Removed), res.Removed)
	}

	if got := res.Dataset.String(dicom.TagPatientIdentityRemoved); got != "YES" {
		t.Fatalf("PatientIdentityRemoved = %q, want YES", got)
	}
	if res.Dataset.String(dicom.TagDeidentificationMethod) == "" {
		t.Fatal("DeidentificationMethod not set")
	}
}

func TestApplyReplacesPatientID(t *testing.T) {
	d := New(DefaultPolicy(), testSecret, ModeLenient)

	res, err := d.Apply(patientDataset(), "")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	got := res.Dataset.String(dicom.TagPatientID)
	if got == "12345" {
		t.Fatal("source patient ID survived")
	}
	if got != res.PseudonymID {
		t.Fatalf("dataset ID %q != result pseudonym %q", got, res.PseudonymID)
	}
	if len(res.PseudonymID) != 16 {
		t.Fatalf("pseudonym length = %d, want 16", len(res.PseudonymID))
	}

	// accession number gets the same treatment
	if acc := res.Dataset.String(dicom.TagAccessionNumber); acc == "ACC123" || acc == "" {
		t.Fatalf("accession number = %q, want pseudonymized", acc)
	}
}

func TestApplyCoarsensDates(t *testing.T) {
	d := New(DefaultPolicy(), testSecret, ModeLenient)

	res, err := d.Apply(patientDataset(), "")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	if got := res.Dataset.String(dicom.TagStudyDate); got != "20230100" {
		t.Fatalf("study date = %q, want 20230100", got)
	}
	if got := res.Dataset.String(dicom.TagStudyTime); got != "000000" {
		t.Fatalf("study time = %q, want 000000", got)
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	d := New(DefaultPolicy(), testSecret, ModeLenient)
	ds := patientDataset()

	if _, err := d.Apply(ds, ""); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if ds.String(dicom.TagPatientName) != "DOE^JOHN" {
		t.Fatal("input dataset was mutated")
	}
	if ds.String(dicom.TagStudyDate) != "20230615" {
		t.Fatal("input date was coarsened in place")
	}
}

func TestApplyIdempotent(t *testing.T) {
	d := New(DefaultPolicy(), testSecret, ModeLenient)

	first, err := d.Apply(patientDataset(), "")
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}
	second, err := d.Apply(first.Dataset, "")
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}

	if len(second.Removed) != 0 {
		t.Fatalf("second pass removed %v, want nothing", second.Removed)
	}
	if got := second.Dataset.String(dicom.TagStudyDate); got != "20230100" {
		t.Fatalf("date moved on second pass: %q", got)
	}
}

func TestPseudonymStableAndOneWay(t *testing.T) {
	d := New(DefaultPolicy(), testSecret, ModeLenient)

	a := d.Pseudonym("12345")
	if a != d.Pseudonym("12345") {
		t.Fatal("pseudonym not stable across calls")
	}
	if a == "12345" {
		t.Fatal("pseudonym equals source")
	}
	if a == d.Pseudonym("12346") {
		t.Fatal("distinct sources collided")
	}

	other := New(DefaultPolicy(), []byte("another-key"), ModeLenient)
	if a == other.Pseudonym("12345") {
		t.Fatal("pseudonym independent of key")
	}
}

func TestApplyExplicitPseudonym(t *testing.T) {
	d := New(DefaultPolicy(), testSecret, ModeLenient)

	res, err := d.Apply(patientDataset(), "STUDY-ARM-A-007")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.PseudonymID != "STUDY-ARM-A-007" {
		t.Fatalf("pseudonym = %q, want explicit override", res.PseudonymID)
	}
	if got := res.Dataset.String(dicom.TagPatientID); got != "STUDY-ARM-A-007" {
		t.Fatalf("dataset ID = %q", got)
	}
}

func TestApplyRejectsExplicitPseudonymEqualToSource(t *testing.T) {
	d := New(DefaultPolicy(), testSecret, ModeLenient)

	_, err := d.Apply(patientDataset(), "12345")
	if !errors.Is(err, ErrPseudonymMatchesSource) {
		t.Fatalf("err = %v, want ErrPseudonymMatchesSource", err)
	}
}

func TestApplyUnknownVR(t *testing.T) {
	ds := patientDataset()
	ds.Put(dicom.Element{Tag: dicom.Tag{Group: 0x0009, Element: 0x0001}, VR: "ZZ", Value: []byte("vendor")})

	lenient := New(DefaultPolicy(), testSecret, ModeLenient)
	res, err := lenient.Apply(ds, "")
	if err != nil {
		t.Fatalf("lenient apply: %v", err)
	}
	if res.Skipped != 1 {
		t.Fatalf("skipped = %d, want 1", res.Skipped)
	}

	strict := New(DefaultPolicy(), testSecret, ModeStrict)
	_, err = strict.Apply(ds, "")
	var unsupported *UnsupportedTagError
	if !errors.As(err, &unsupported) {
		t.Fatalf("strict err = %v, want *UnsupportedTagError", err)
	}
	if unsupported.VR != "ZZ" {
		t.Fatalf("unsupported VR = %q", unsupported.VR)
	}
}
