package pipeline

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clinimeta/dicomflow/internal/application"
	"github.com/clinimeta/dicomflow/internal/domain/deident"
	"github.com/clinimeta/dicomflow/internal/domain/dicom"
	"github.com/clinimeta/dicomflow/internal/domain/executions"
	"github.com/clinimeta/dicomflow/internal/infra/storage"
	"github.com/clinimeta/dicomflow/internal/workflow"
)

// memRepo is an in-memory execution repository.
type memRepo struct {
	mu   sync.Mutex
	rows map[executions.ID]*executions.Execution
}

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[executions.ID]*executions.Execution)}
}

func (r *memRepo) Save(_ context.Context, e *executions.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	r.rows[e.ID] = &cp
	return nil
}

func (r *memRepo) Get(_ context.Context, id executions.ID) (*executions.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (r *memRepo) Latest(_ context.Context, limit int) ([]*executions.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*executions.Execution
	for _, e := range r.rows {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) ListByStatus(_ context.Context, status executions.Status, limit int) ([]*executions.Execution, error) {
	all, _ := r.Latest(context.Background(), 0)
	var out []*executions.Execution
	for _, e := range all {
		if e.Status == status {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func fixtureBytes() []byte {
	ds := dicom.NewDataset()
	ds.SetString(dicom.TagSOPInstanceUID, "UI", "1.2.3.4.5.6.7")
	ds.SetString(dicom.TagStudyDate, "DA", "20230615")
	ds.SetString(dicom.TagModality, "CS", "CT")
	ds.SetString(dicom.TagPatientName, "PN", "DOE^JOHN")
	ds.SetString(dicom.TagPatientID, "LO", "12345")
	ds.SetString(dicom.TagStudyInstanceUID, "UI", "1.2.3.4")
	ds.SetString(dicom.TagSeriesInstanceUID, "UI", "1.2.3.4.5")
	return dicom.Encode(ds)
}

func newTestService(t *testing.T, repo executions.Repository, seed map[string][]byte) *Service {
	t.Helper()
	mem := storage.NewMemory()
	for k, v := range seed {
		if err := mem.Put(context.Background(), k, v, nil); err != nil {
			t.Fatalf("seed %s: %v", k, err)
		}
	}
	return &Service{
		Repo: repo,
		Machine: &workflow.Machine{
			Store:        mem,
			Deidentifier: deident.New(deident.DefaultPolicy(), []byte("test-key"), deident.ModeLenient),
			OutputPrefix: "cleaned/",
			RetryBase:    time.Millisecond,
		},
		Clock:        application.SystemClock{},
		SuffixFilter: ".dcm",
	}
}

func TestStartSuccessTracksExecution(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(t, repo, map[string][]byte{"incoming/scan.dcm": fixtureBytes()})

	e, err := svc.Start(context.Background(), StartCommand{StorageLocation: "incoming/scan.dcm"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if e.Status != executions.StatusSucceeded {
		t.Fatalf("status = %s (error %q, cause %q)", e.Status, e.Error, e.Cause)
	}
	if e.OutputKey != "cleaned/scan.dcm" || e.PseudonymID == "" {
		t.Fatalf("execution = %+v", e)
	}
	if e.StoppedAt.IsZero() {
		t.Fatal("stopped_at not set")
	}

	stored, err := repo.Get(context.Background(), e.ID)
	if err != nil {
		t.Fatalf("repo get: %v", err)
	}
	if stored == nil || stored.Status != executions.StatusSucceeded {
		t.Fatalf("persisted row = %+v", stored)
	}
	if stored.CurrentState != "Success" {
		t.Fatalf("persisted state = %q", stored.CurrentState)
	}
}

func TestStartFailureNamesStepAndKind(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(t, repo, map[string][]byte{"incoming/garbage.dcm": []byte("not dicom")})

	e, err := svc.Start(context.Background(), StartCommand{StorageLocation: "incoming/garbage.dcm"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if e.Status != executions.StatusFailed {
		t.Fatalf("status = %s", e.Status)
	}
	if e.Error != "Extract: ParseError" {
		t.Fatalf("error = %q, want step and kind", e.Error)
	}
	if e.Cause == "" {
		t.Fatal("cause missing")
	}
}

func TestStartRequiresStorageLocation(t *testing.T) {
	svc := newTestService(t, newMemRepo(), nil)

	if _, err := svc.Start(context.Background(), StartCommand{StorageLocation: "  "}); err == nil {
		t.Fatal("blank storage location accepted")
	}
}

func TestHandleObjectCreatedFiltersBySuffix(t *testing.T) {
	svc := newTestService(t, newMemRepo(), nil)

	var ev ObjectCreatedEvent
	payload := `{"Records":[
		{"s3":{"bucket":{"name":"raw"},"object":{"key":"incoming/a.dcm"}}},
		{"s3":{"bucket":{"name":"raw"},"object":{"key":"incoming/notes.txt"}}},
		{"s3":{"bucket":{"name":"raw"},"object":{"key":""}}}
	]}`
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}

	var started []string
	res := svc.HandleObjectCreated(ev, func(cmd StartCommand) {
		started = append(started, cmd.StorageLocation)
	})

	if len(started) != 1 || started[0] != "incoming/a.dcm" {
		t.Fatalf("started = %v", started)
	}
	if len(res.Matched) != 1 || len(res.Skipped) != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestHandleObjectCreatedDuplicateDeliveries(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(t, repo, map[string][]byte{"incoming/scan.dcm": fixtureBytes()})

	var ev ObjectCreatedEvent
	payload := `{"Records":[{"s3":{"object":{"key":"incoming/scan.dcm"}}}]}`
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}

	run := func(cmd StartCommand) {
		if _, err := svc.Start(context.Background(), cmd); err != nil {
			t.Errorf("start: %v", err)
		}
	}
	svc.HandleObjectCreated(ev, run)
	svc.HandleObjectCreated(ev, run)

	done, err := repo.ListByStatus(context.Background(), executions.StatusSucceeded, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(done) != 2 {
		t.Fatalf("got %d executions, want 2 independent ones", len(done))
	}
	// both runs land on the same deterministic output key
	for _, e := range done {
		if e.OutputKey != "cleaned/scan.dcm" {
			t.Fatalf("output key = %q", e.OutputKey)
		}
	}
}

func TestDescribeAndList(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(t, repo, map[string][]byte{
		"incoming/ok.dcm":  fixtureBytes(),
		"incoming/bad.dcm": []byte("junk"),
	})

	ok, err := svc.Start(context.Background(), StartCommand{StorageLocation: "incoming/ok.dcm"})
	if err != nil {
		t.Fatalf("start ok: %v", err)
	}
	if _, err := svc.Start(context.Background(), StartCommand{StorageLocation: "incoming/bad.dcm"}); err != nil {
		t.Fatalf("start bad: %v", err)
	}

	got, err := svc.Describe(context.Background(), ok.ID)
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if got == nil || got.StorageLocation != "incoming/ok.dcm" {
		t.Fatalf("describe = %+v", got)
	}

	failed, err := svc.ListByStatus(context.Background(), executions.StatusFailed, 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 1 || !strings.HasPrefix(failed[0].Error, "Extract:") {
		t.Fatalf("failed list = %+v", failed)
	}

	all, err := svc.Latest(context.Background(), 10)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("latest returned %d rows", len(all))
	}
}
