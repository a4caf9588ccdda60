package delivery

import (
	"context"
	"time"

	"github.com/clinimeta/dicomflow/internal/domain/monitoring"
	"github.com/clinimeta/dicomflow/internal/domain/objects"
)

// DefaultTTL applies when the caller supplies no expiry.
const DefaultTTL = 3600 * time.Second

// Descriptor is a time-bounded access handle for one stored artifact.
// It is immutable once issued; the service does not track its usage.
type Descriptor struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
	ExpiresIn int       `json:"expires_in_seconds"`
}

// Outcome is the per-key resolution result. A missing object is a value,
// never an error, so batch resolution stays isolated per key.
type Outcome struct {
	Descriptor *Descriptor `json:"descriptor,omitempty"`
	NotFound   bool        `json:"not_found,omitempty"`
	Err        string      `json:"error,omitempty"`
}

// Service issues expiring delivery descriptors for cleaned artifacts.
type Service struct {
	Store    objects.Store
	Recorder monitoring.Recorder

	// TTL applies when the caller supplies no expiry. Zero means DefaultTTL.
	TTL time.Duration
}

func (s *Service) defaultTTL() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultTTL
}

func (s *Service) recorder() monitoring.Recorder {
	if s.Recorder != nil {
		return s.Recorder
	}
	return monitoring.Nop{}
}

// Issue generates a descriptor for one object. With validateExists set, a
// missing object yields Outcome{NotFound:true}; store faults during the
// existence check or signing are returned as errors. TTL bounds are the
// store's concern, not enforced here.
func (s *Service) Issue(ctx context.Context, key string, ttl time.Duration, validateExists bool) (Outcome, error) {
	if ttl <= 0 {
		ttl = s.defaultTTL()
	}

	if validateExists {
		ok, err := s.Store.Exists(ctx, key)
		if err != nil {
			return Outcome{}, err
		}
		if !ok {
			s.log("delivery.issue", "not_found", key)
			return Outcome{NotFound: true}, nil
		}
	}

	url, expiresAt, err := s.Store.PresignGet(ctx, key, ttl)
	if err != nil {
		return Outcome{}, err
	}

	s.log("delivery.issue", "issued", key)
	return Outcome{Descriptor: &Descriptor{
		Key:       key,
		URL:       url,
		ExpiresAt: expiresAt,
		ExpiresIn: int(ttl / time.Second),
	}}, nil
}

// IssueBatch resolves every key independently: a missing or failing key
// never aborts resolution of the others.
func (s *Service) IssueBatch(ctx context.Context, keys []string, ttl time.Duration) map[string]Outcome {
	out := make(map[string]Outcome, len(keys))
	for _, key := range keys {
		o, err := s.Issue(ctx, key, ttl, true)
		if err != nil {
			o = Outcome{Err: err.Error()}
		}
		out[key] = o
	}
	s.log("delivery.issue_batch", "completed", "")
	return out
}

func (s *Service) log(op, status, key string) {
	details := map[string]string{}
	if key != "" {
		details["key"] = key
	}
	s.recorder().Log(monitoring.Record{
		Timestamp: time.Now().UTC(),
		Operation: op,
		Status:    status,
		Details:   details,
	})
}
