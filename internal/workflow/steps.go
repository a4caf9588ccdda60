package workflow

import (
	"context"
	"path"
	"strconv"

	"github.com/clinimeta/dicomflow/internal/domain/dicom"
	"github.com/clinimeta/dicomflow/internal/domain/validation"
)

// stepExtract fetches the raw object and decodes its header into a typed
// metadata record. Store faults are transient; malformed streams and
// missing identifiers are business errors.
func (m *Machine) stepExtract(ctx context.Context, ec *Execution) error {
	data, err := m.Store.Get(ctx, ec.Input.StorageLocation)
	if err != nil {
		return Transient("store.get", err)
	}

	ds, err := dicom.Parse(data)
	if err != nil {
		return err
	}
	rec, err := dicom.Extract(ds)
	if err != nil {
		return err
	}

	ec.Dataset = ds
	ec.Record = rec
	return nil
}

// stepValidate checks the extracted record against its field contracts. The
// aggregated violation set surfaces as a single business error.
func (m *Machine) stepValidate(_ context.Context, ec *Execution) error {
	return validation.Validate(ec.Record).Err()
}

// stepDeidentify applies the PHI policy and publishes the cleaned artifact.
// The output key is a pure function of the input key, so duplicate runs of
// the same input overwrite each other with identical bytes.
func (m *Machine) stepDeidentify(ctx context.Context, ec *Execution) error {
	res, err := m.Deidentifier.Apply(ec.Dataset, ec.Input.PseudonymID)
	if err != nil {
		return err
	}

	key := m.OutputPrefix + path.Base(ec.Input.StorageLocation)
	meta := map[string]string{
		"pseudonym-id": res.PseudonymID,
		"modality":     ec.Record.Series.Modality,
		"removed-tags": strconv.Itoa(len(res.Removed)),
		"deidentified": "true",
	}
	if err := m.Store.Put(ctx, key, dicom.Encode(res.Dataset), meta); err != nil {
		return Transient("store.put", err)
	}

	ec.Deident = res
	ec.OutputKey = key
	return nil
}
