package dicom

// MetadataRecord is the typed view of one instance's header fields.
type MetadataRecord struct {
	Patient     PatientInfo
	Study       StudyInfo
	Series      SeriesInfo
	Image       ImageInfo
	Acquisition *AcquisitionInfo
}

type PatientInfo struct {
	ID        string
	Name      string
	BirthDate string
	Sex       string
	Age       string
}

type StudyInfo struct {
	InstanceUID     string
	Date            string
	Time            string
	Description     string
	AccessionNumber string
}

type SeriesInfo struct {
	InstanceUID string
	Number      int
	Description string
	Modality    string
}

type ImageInfo struct {
	SOPInstanceUID string
	SOPClassUID    string
	InstanceNumber int
	Rows           int
	Columns        int
	BitsAllocated  int
	BitsStored     int
	PixelSpacing   string
}

// AcquisitionInfo holds modality-specific parameters. Only populated for
// modalities the pipeline knows acquisition tags for.
type AcquisitionInfo struct {
	BodyPart string

	// CT
	KVP            string
	SliceThickness string

	// MR
	RepetitionTime        string
	EchoTime              string
	MagneticFieldStrength string
}

// requiredIdentifiers lists the mandatory identifier tags in the order a
// missing one is reported.
var requiredIdentifiers = []struct {
	tag  Tag
	name string
}{
	{TagPatientID, "PatientID"},
	{TagStudyInstanceUID, "StudyInstanceUID"},
	{TagSeriesInstanceUID, "SeriesInstanceUID"},
	{TagSOPInstanceUID, "SOPInstanceUID"},
}

// Extract maps the dataset's known header tags into a MetadataRecord.
// Absent optional tags yield zero values. The first absent mandatory
// identifier fails with *MissingRequiredTagError.
//
// Extract is a pure function of the dataset: repeated invocations over the
// same input produce identical records.
func Extract(ds *Dataset) (*MetadataRecord, error) {
	for _, req := range requiredIdentifiers {
		if ds.String(req.tag) == "" {
			return nil, &MissingRequiredTagError{Tag: req.tag, Name: req.name}
		}
	}

	rec := &MetadataRecord{
		Patient: PatientInfo{
			ID:        ds.String(TagPatientID),
			Name:      ds.String(TagPatientName),
			BirthDate: ds.String(TagPatientBirthDate),
			Sex:       ds.String(TagPatientSex),
			Age:       ds.String(TagPatientAge),
		},
		Study: StudyInfo{
			InstanceUID:     ds.String(TagStudyInstanceUID),
			Date:            ds.String(TagStudyDate),
			Time:            ds.String(TagStudyTime),
			Description:     ds.String(TagStudyDescription),
			AccessionNumber: ds.String(TagAccessionNumber),
		},
		Series: SeriesInfo{
			InstanceUID: ds.String(TagSeriesInstanceUID),
			Number:      ds.Int(TagSeriesNumber),
			Description: ds.String(TagSeriesDescription),
			Modality:    ds.String(TagModality),
		},
		Image: ImageInfo{
			SOPInstanceUID: ds.String(TagSOPInstanceUID),
			SOPClassUID:    ds.String(TagSOPClassUID),
			InstanceNumber: ds.Int(TagInstanceNumber),
			Rows:           ds.Int(TagRows),
			Columns:        ds.Int(TagColumns),
			BitsAllocated:  ds.Int(TagBitsAllocated),
			BitsStored:     ds.Int(TagBitsStored),
			PixelSpacing:   ds.String(TagPixelSpacing),
		},
	}

	switch rec.Series.Modality {
	case "CT":
		rec.Acquisition = &AcquisitionInfo{
			BodyPart:       ds.String(TagBodyPartExamined),
			KVP:            ds.String(TagKVP),
			SliceThickness: ds.String(TagSliceThickness),
		}
	case "MR":
		rec.Acquisition = &AcquisitionInfo{
			BodyPart:              ds.String(TagBodyPartExamined),
			RepetitionTime:        ds.String(TagRepetitionTime),
			EchoTime:              ds.String(TagEchoTime),
			MagneticFieldStrength: ds.String(TagMagneticFieldStrength),
		}
	}

	return rec, nil
}
