package dicom

import (
	"fmt"
	"strconv"
	"strings"
)

// Tag identifies one field in a DICOM stream by its (group, element) pair.
type Tag struct {
	Group   uint16
	Element uint16
}

func (t Tag) String() string {
	return fmt.Sprintf("(%04X,%04X)", t.Group, t.Element)
}

// Tags used by the pipeline. Header-region only; pixel data is never decoded.
var (
	TagTransferSyntaxUID = Tag{0x0002, 0x0010}

	TagSOPClassUID          = Tag{0x0008, 0x0016}
	TagSOPInstanceUID       = Tag{0x0008, 0x0018}
	TagInstanceCreationDate = Tag{0x0008, 0x0012}
	TagInstanceCreationTime = Tag{0x0008, 0x0013}
	TagStudyDate            = Tag{0x0008, 0x0020}
	TagSeriesDate           = Tag{0x0008, 0x0021}
	TagAcquisitionDate      = Tag{0x0008, 0x0022}
	TagContentDate          = Tag{0x0008, 0x0023}
	TagStudyTime            = Tag{0x0008, 0x0030}
	TagSeriesTime           = Tag{0x0008, 0x0031}
	TagAcquisitionTime      = Tag{0x0008, 0x0032}
	TagContentTime          = Tag{0x0008, 0x0033}
	TagAccessionNumber      = Tag{0x0008, 0x0050}
	TagModality             = Tag{0x0008, 0x0060}
	TagInstitutionName      = Tag{0x0008, 0x0080}
	TagInstitutionAddress   = Tag{0x0008, 0x0081}
	TagReferringPhysician   = Tag{0x0008, 0x0090}
	TagStationName          = Tag{0x0008, 0x1010}
	TagStudyDescription     = Tag{0x0008, 0x1030}
	TagSeriesDescription    = Tag{0x0008, 0x103E}
	TagPerformingPhysician  = Tag{0x0008, 0x1050}
	TagOperatorsName        = Tag{0x0008, 0x1070}

	TagPatientName      = Tag{0x0010, 0x0010}
	TagPatientID        = Tag{0x0010, 0x0020}
	TagPatientBirthDate = Tag{0x0010, 0x0030}
	TagPatientSex       = Tag{0x0010, 0x0040}
	TagPatientAge       = Tag{0x0010, 0x1010}
	TagPatientAddress   = Tag{0x0010, 0x1040}
	TagPatientTelephone = Tag{0x0010, 0x2154}

	TagBodyPartExamined      = Tag{0x0018, 0x0015}
	TagSliceThickness        = Tag{0x0018, 0x0050}
	TagKVP                   = Tag{0x0018, 0x0060}
	TagDeviceSerialNumber    = Tag{0x0018, 0x1000}
	TagProtocolName          = Tag{0x0018, 0x1030}
	TagRepetitionTime        = Tag{0x0018, 0x0080}
	TagEchoTime              = Tag{0x0018, 0x0081}
	TagMagneticFieldStrength = Tag{0x0018, 0x0087}

	TagStudyInstanceUID  = Tag{0x0020, 0x000D}
	TagSeriesInstanceUID = Tag{0x0020, 0x000E}
	TagSeriesNumber      = Tag{0x0020, 0x0011}
	TagInstanceNumber    = Tag{0x0020, 0x0013}

	TagRows          = Tag{0x0028, 0x0010}
	TagColumns       = Tag{0x0028, 0x0011}
	TagPixelSpacing  = Tag{0x0028, 0x0030}
	TagBitsAllocated = Tag{0x0028, 0x0100}
	TagBitsStored    = Tag{0x0028, 0x0101}

	TagPatientIdentityRemoved = Tag{0x0012, 0x0062}
	TagDeidentificationMethod = Tag{0x0012, 0x0063}

	TagPixelData = Tag{0x7FE0, 0x0010}
)

// Element is a single tag/VR/value record from the wire.
type Element struct {
	Tag   Tag
	VR    string
	Value []byte
}

// Dataset is the ordered tag → value mapping decoded from one file.
// It is owned by a single pipeline invocation and never shared.
type Dataset struct {
	elements []Element
	index    map[Tag]int
}

func NewDataset() *Dataset {
	return &Dataset{index: make(map[Tag]int)}
}

// Put appends the element, or replaces the value in place when the tag is
// already present so element order stays stable.
func (d *Dataset) Put(e Element) {
	if i, ok := d.index[e.Tag]; ok {
		d.elements[i] = e
		return
	}
	d.index[e.Tag] = len(d.elements)
	d.elements = append(d.elements, e)
}

func (d *Dataset) Get(t Tag) (Element, bool) {
	i, ok := d.index[t]
	if !ok {
		return Element{}, false
	}
	return d.elements[i], true
}

func (d *Dataset) Has(t Tag) bool {
	_, ok := d.index[t]
	return ok
}

// Delete removes the tag and reports whether it was present.
func (d *Dataset) Delete(t Tag) bool {
	i, ok := d.index[t]
	if !ok {
		return false
	}
	d.elements = append(d.elements[:i], d.elements[i+1:]...)
	delete(d.index, t)
	for j := i; j < len(d.elements); j++ {
		d.index[d.elements[j].Tag] = j
	}
	return true
}

// Elements returns the elements in wire order. Callers must not mutate.
func (d *Dataset) Elements() []Element {
	return d.elements
}

func (d *Dataset) Len() int { return len(d.elements) }

// Clone returns a deep copy; de-identification works on the copy so the
// input dataset is never mutated.
func (d *Dataset) Clone() *Dataset {
	out := NewDataset()
	for _, e := range d.elements {
		v := make([]byte, len(e.Value))
		copy(v, e.Value)
		out.Put(Element{Tag: e.Tag, VR: e.VR, Value: v})
	}
	return out
}

// String returns the tag's value as a trimmed string, or "" when absent.
// DICOM pads string values to even length with spaces or NULs.
func (d *Dataset) String(t Tag) string {
	e, ok := d.Get(t)
	if !ok {
		return ""
	}
	return strings.TrimRight(string(e.Value), " \x00")
}

// Int parses an integer-string value (IS/US style). Absent or unparseable
// values map to 0, never an error: optional numeric tags must not crash
// extraction.
func (d *Dataset) Int(t Tag) int {
	s := strings.TrimSpace(d.String(t))
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// SetString stores s as the tag's value, space-padded to even length per the
// wire format.
func (d *Dataset) SetString(t Tag, vr, s string) {
	b := []byte(s)
	if len(b)%2 != 0 {
		b = append(b, ' ')
	}
	d.Put(Element{Tag: t, VR: vr, Value: b})
}
