package dicom

import (
	"encoding/binary"
	"fmt"
)

const (
	preambleSize = 128
	magic        = "DICM"

	// Encapsulated pixel data carries an undefined length marker instead of
	// a byte count.
	undefinedLength = 0xFFFFFFFF
)

// Long-form VRs carry 2 reserved bytes and a 32-bit length on the wire.
var longVRs = map[string]bool{
	"OB": true, "OW": true, "OF": true, "SQ": true, "UT": true, "UN": true,
}

// Parse decodes an explicit-VR little-endian DICOM stream into a Dataset.
//
// Only the header region is decoded: parsing stops when pixel data is
// reached, whatever its compression or length encoding, so metadata
// extraction never depends on pixel support. The pixel element itself is
// recorded with an empty value as a presence marker.
func Parse(b []byte) (*Dataset, error) {
	if len(b) < preambleSize+len(magic) {
		return nil, &ParseError{Offset: 0, Reason: "stream shorter than preamble"}
	}
	if string(b[preambleSize:preambleSize+len(magic)]) != magic {
		return nil, &ParseError{Offset: preambleSize, Reason: "missing DICM marker"}
	}

	ds := NewDataset()
	off := preambleSize + len(magic)

	for off < len(b) {
		if len(b)-off < 8 {
			return nil, &ParseError{Offset: off, Reason: "truncated element header"}
		}
		tag := Tag{
			Group:   binary.LittleEndian.Uint16(b[off:]),
			Element: binary.LittleEndian.Uint16(b[off+2:]),
		}
		vr := string(b[off+4 : off+6])
		if !validVR(vr) {
			return nil, &ParseError{Offset: off + 4, Reason: fmt.Sprintf("invalid value representation %q", vr)}
		}

		var length uint32
		if longVRs[vr] {
			if len(b)-off < 12 {
				return nil, &ParseError{Offset: off, Reason: "truncated long-form element header"}
			}
			length = binary.LittleEndian.Uint32(b[off+8:])
			off += 12
		} else {
			length = uint32(binary.LittleEndian.Uint16(b[off+6:]))
			off += 8
		}

		if tag == TagPixelData {
			// Presence marker only; pixel planes are out of scope.
			ds.Put(Element{Tag: tag, VR: vr, Value: nil})
			break
		}
		if length == undefinedLength {
			return nil, &ParseError{Offset: off, Reason: fmt.Sprintf("undefined length on non-pixel tag %s", tag)}
		}
		if uint32(len(b)-off) < length {
			return nil, &ParseError{Offset: off, Reason: fmt.Sprintf("truncated value for tag %s", tag)}
		}

		v := make([]byte, length)
		copy(v, b[off:off+int(length)])
		ds.Put(Element{Tag: tag, VR: vr, Value: v})
		off += int(length)
	}

	return ds, nil
}

// Encode serializes the dataset back into the explicit-VR little-endian
// framing Parse consumes. Pixel data recorded as a presence marker is
// written with zero length: the cleaned artifact is metadata-bearing only.
func Encode(ds *Dataset) []byte {
	out := make([]byte, preambleSize, preambleSize+len(magic)+ds.Len()*16)
	out = append(out, magic...)

	for _, e := range ds.Elements() {
		var hdr [12]byte
		binary.LittleEndian.PutUint16(hdr[0:], e.Tag.Group)
		binary.LittleEndian.PutUint16(hdr[2:], e.Tag.Element)
		copy(hdr[4:6], e.VR)
		if longVRs[e.VR] {
			binary.LittleEndian.PutUint32(hdr[8:], uint32(len(e.Value)))
			out = append(out, hdr[:12]...)
		} else {
			binary.LittleEndian.PutUint16(hdr[6:], uint16(len(e.Value)))
			out = append(out, hdr[:8]...)
		}
		out = append(out, e.Value...)
	}
	return out
}

// TransferSyntax returns the stream's encoding identifier, or "" when the
// file meta group does not carry one.
func TransferSyntax(ds *Dataset) string {
	return ds.String(TagTransferSyntaxUID)
}

func validVR(vr string) bool {
	if len(vr) != 2 {
		return false
	}
	for i := 0; i < 2; i++ {
		if vr[i] < 'A' || vr[i] > 'Z' {
			return false
		}
	}
	return true
}
