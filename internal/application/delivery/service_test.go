package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clinimeta/dicomflow/internal/infra/storage"
)

func seededStore(t *testing.T, keys ...string) *storage.Memory {
	t.Helper()
	mem := storage.NewMemory()
	for _, k := range keys {
		if err := mem.Put(context.Background(), k, []byte("payload"), nil); err != nil {
			t.Fatalf("seed %s: %v", k, err)
		}
	}
	return mem
}

func TestIssueReturnsDescriptor(t *testing.T) {
	svc := &Service{Store: seededStore(t, "cleaned/scan.dcm")}

	out, err := svc.Issue(context.Background(), "cleaned/scan.dcm", 10*time.Minute, true)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	d := out.Descriptor
	if d == nil {
		t.Fatalf("no descriptor: %+v", out)
	}
	if d.Key != "cleaned/scan.dcm" || d.URL == "" {
		t.Fatalf("descriptor = %+v", d)
	}
	if d.ExpiresIn != 600 {
		t.Fatalf("expires_in = %d, want 600", d.ExpiresIn)
	}
	if until := time.Until(d.ExpiresAt); until < 9*time.Minute || until > 10*time.Minute {
		t.Fatalf("expiry %v not ~10m out", d.ExpiresAt)
	}
}

func TestIssueAppliesDefaultTTL(t *testing.T) {
	svc := &Service{Store: seededStore(t, "cleaned/scan.dcm")}

	out, err := svc.Issue(context.Background(), "cleaned/scan.dcm", 0, false)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if out.Descriptor.ExpiresIn != 3600 {
		t.Fatalf("expires_in = %d, want 3600", out.Descriptor.ExpiresIn)
	}
}

func TestIssueConfiguredDefaultTTL(t *testing.T) {
	svc := &Service{Store: seededStore(t, "cleaned/scan.dcm"), TTL: 300 * time.Second}

	out, err := svc.Issue(context.Background(), "cleaned/scan.dcm", 0, false)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if out.Descriptor.ExpiresIn != 300 {
		t.Fatalf("expires_in = %d, want 300", out.Descriptor.ExpiresIn)
	}
}

func TestIssueMissingObject(t *testing.T) {
	svc := &Service{Store: storage.NewMemory()}

	out, err := svc.Issue(context.Background(), "cleaned/absent.dcm", 0, true)
	if err != nil {
		t.Fatalf("a missing object must not be an error, got %v", err)
	}
	if !out.NotFound || out.Descriptor != nil {
		t.Fatalf("outcome = %+v, want NotFound", out)
	}
}

func TestIssueBatchIsolatesFailures(t *testing.T) {
	svc := &Service{Store: seededStore(t, "cleaned/a.dcm")}

	out := svc.IssueBatch(context.Background(), []string{"cleaned/a.dcm", "cleaned/b.dcm"}, time.Minute)
	if len(out) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(out))
	}
	if out["cleaned/a.dcm"].Descriptor == nil {
		t.Fatalf("present key unresolved: %+v", out["cleaned/a.dcm"])
	}
	if !out["cleaned/b.dcm"].NotFound {
		t.Fatalf("missing key not isolated: %+v", out["cleaned/b.dcm"])
	}
}

// brokenStore fails every operation, standing in for an unreachable backend.
type brokenStore struct{ storage.Memory }

func (b *brokenStore) Exists(context.Context, string) (bool, error) {
	return false, errors.New("store unreachable")
}

func TestIssueBatchSurfacesStoreFaults(t *testing.T) {
	svc := &Service{Store: &brokenStore{}}

	out := svc.IssueBatch(context.Background(), []string{"cleaned/a.dcm"}, time.Minute)
	if out["cleaned/a.dcm"].Err == "" {
		t.Fatalf("store fault not surfaced: %+v", out["cleaned/a.dcm"])
	}
}
