package validation

import (
	"strings"
	"testing"

	"github.com/clinimeta/dicomflow/internal/domain/dicom"
)

func validRecord() *dicom.MetadataRecord {
	return &dicom.MetadataRecord{
		Patient: dicom.PatientInfo{
			ID:        "12345",
			BirthDate: "19800102",
			Sex:       "M",
		},
		Study: dicom.StudyInfo{
			InstanceUID: "1.2.3.4",
			Date:        "20230615",
		},
		Series: dicom.SeriesInfo{
			InstanceUID: "1.2.3.4.5",
			Number:      2,
			Modality:    "CT",
		},
		Image: dicom.ImageInfo{
			SOPInstanceUID: "1.2.3.4.5.6.7",
			InstanceNumber: 14,
			Rows:           512,
			Columns:        512,
			BitsAllocated:  16,
			BitsStored:     12,
		},
	}
}

func TestValidateAcceptsWellFormedRecord(t *testing.T) {
	res := Validate(validRecord())
	if !res.Valid {
		t.Fatalf("valid record rejected: %v", res.Errors)
	}
	if res.Err() != nil {
		t.Fatalf("Err() = %v, want nil", res.Err())
	}
}

func TestValidateCollectsEveryViolation(t *testing.T) {
	rec := validRecord()
	rec.Patient.ID = "   "
	rec.Study.Date = "2023"

	res := Validate(rec)
	if res.Valid {
		t.Fatal("invalid record accepted")
	}
	if len(res.Errors) != 2 {
		t.Fatalf("got %d errors, want exactly 2: %v", len(res.Errors), res.Errors)
	}

	fields := map[string]bool{}
	for _, fe := range res.Errors {
		fields[fe.Field] = true
	}
	if !fields["patient.id"] || !fields["study.date"] {
		t.Fatalf("wrong fields reported: %v", res.Errors)
	}

	msg := res.Err().Error()
	if !strings.Contains(msg, "patient.id") || !strings.Contains(msg, "study.date") {
		t.Fatalf("flattened error drops violations: %q", msg)
	}
}

func TestValidateFieldContracts(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*dicom.MetadataRecord)
		field  string
	}{
		{"sex outside code set", func(r *dicom.MetadataRecord) { r.Patient.Sex = "X" }, "patient.sex"},
		{"uid with letters", func(r *dicom.MetadataRecord) { r.Study.InstanceUID = "1.2.abc" }, "study.instance_uid"},
		{"uid leading dot", func(r *dicom.MetadataRecord) { r.Series.InstanceUID = ".1.2.3" }, "series.instance_uid"},
		{"uid double dot", func(r *dicom.MetadataRecord) { r.Image.SOPInstanceUID = "1..2" }, "image.sop_instance_uid"},
		{"birth date too short", func(r *dicom.MetadataRecord) { r.Patient.BirthDate = "1980" }, "patient.birth_date"},
		{"negative rows", func(r *dicom.MetadataRecord) { r.Image.Rows = -1 }, "image.rows"},
		{"bits stored over allocated", func(r *dicom.MetadataRecord) { r.Image.BitsStored = 17 }, "image.bits_stored"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := validRecord()
			tc.mutate(rec)

			res := Validate(rec)
			if res.Valid {
				t.Fatal("violation not detected")
			}
			for _, fe := range res.Errors {
				if fe.Field == tc.field {
					return
				}
			}
			t.Fatalf("field %s not reported: %v", tc.field, res.Errors)
		})
	}
}

func TestValidateOptionalFieldsMayBeEmpty(t *testing.T) {
	rec := validRecord()
	rec.Patient.BirthDate = ""
	rec.Patient.Sex = ""
	rec.Study.Date = ""

	if res := Validate(rec); !res.Valid {
		t.Fatalf("empty optional fields rejected: %v", res.Errors)
	}
}
