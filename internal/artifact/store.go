// Package artifact stores the binary and text outputs of pipeline stages.
// Blobs are write-once: every Put produces a fresh key, so a retried item
// never overwrites what an earlier attempt stored.
package artifact

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/storyreel/api/internal/model"
)

// Key names the producer of an artifact
type Key struct {
	JobID string
	Stage model.StageName
	Item  int
}

// Store is the artifact capability shared by workers and the API
type Store interface {
	Name() string
	Put(ctx context.Context, key Key, data []byte, kind model.ArtifactKind) (model.ArtifactRef, error)
	Get(ctx context.Context, ref model.ArtifactRef) ([]byte, error)
	Delete(ctx context.Context, ref model.ArtifactRef) error
}

// Linker is implemented by stores that can hand out a direct download URL
type Linker interface {
	Link(ctx context.Context, ref model.ArtifactRef) (string, error)
}

// objectKey builds a unique object name for key
func objectKey(key Key, kind model.ArtifactKind) string {
	return fmt.Sprintf("jobs/%s/%s/%03d-%s%s", key.JobID, key.Stage, key.Item, uuid.New().String(), kind.Extension())
}

// DeleteJob removes every artifact the job record references. It keeps
// going past individual failures and returns them joined.
func DeleteJob(ctx context.Context, s Store, job *model.Job) error {
	seen := make(map[string]bool)
	var errs []error
	drop := func(ref *model.ArtifactRef) {
		if ref == nil || seen[ref.Key] {
			return
		}
		seen[ref.Key] = true
		if err := s.Delete(ctx, *ref); err != nil {
			errs = append(errs, err)
		}
	}
	for _, st := range job.Stages {
		for i := range st.Items {
			drop(st.Items[i].Result)
		}
	}
	drop(job.ResultRef)
	return errors.Join(errs...)
}

func checkStore(s Store, ref model.ArtifactRef) error {
	if ref.Store != s.Name() {
		return fmt.Errorf("artifact %s belongs to store %q, not %q", ref.Key, ref.Store, s.Name())
	}
	return nil
}
