package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/storyreel/api/internal/model"
)

// DiskStore writes artifacts under a root directory. Files are written to a
// temporary name first and renamed into place so readers never observe a
// partial blob.
type DiskStore struct {
	root string
}

func NewDiskStore(root string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &DiskStore{root: root}, nil
}

func (s *DiskStore) Name() string { return "disk" }

func (s *DiskStore) Put(ctx context.Context, key Key, data []byte, kind model.ArtifactKind) (model.ArtifactRef, error) {
	k := objectKey(key, kind)
	path := s.path(k)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return model.ArtifactRef{}, fmt.Errorf("failed to create artifact dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".part-*")
	if err != nil {
		return model.ArtifactRef{}, fmt.Errorf("failed to create artifact: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return model.ArtifactRef{}, fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return model.ArtifactRef{}, fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return model.ArtifactRef{}, fmt.Errorf("failed to commit artifact: %w", err)
	}

	return model.ArtifactRef{Store: s.Name(), Key: k, Kind: kind, Size: int64(len(data))}, nil
}

func (s *DiskStore) Get(ctx context.Context, ref model.ArtifactRef) ([]byte, error) {
	if err := checkStore(s, ref); err != nil {
		return nil, err
	}
	path, err := s.safePath(ref.Key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("artifact %s: %w", ref.Key, model.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	return data, nil
}

func (s *DiskStore) Delete(ctx context.Context, ref model.ArtifactRef) error {
	if err := checkStore(s, ref); err != nil {
		return err
	}
	path, err := s.safePath(ref.Key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	return nil
}

func (s *DiskStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// safePath rejects keys that would escape the root directory
func (s *DiskStore) safePath(key string) (string, error) {
	path := s.path(key)
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid artifact key %q", key)
	}
	return path, nil
}
