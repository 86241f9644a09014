package artifact

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyreel/api/internal/model"
)

func stores(t *testing.T) map[string]Store {
	disk, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"disk":   disk,
	}
}

func TestStore_PutGetDelete(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := Key{JobID: "job-1", Stage: model.StageImages, Item: 2}

			ref, err := s.Put(ctx, key, []byte("png-bytes"), model.ArtifactImage)
			require.NoError(t, err)
			assert.Equal(t, s.Name(), ref.Store)
			assert.Equal(t, model.ArtifactImage, ref.Kind)
			assert.Equal(t, int64(9), ref.Size)
			assert.True(t, strings.HasPrefix(ref.Key, "jobs/job-1/images/002-"))
			assert.True(t, strings.HasSuffix(ref.Key, ".png"))

			data, err := s.Get(ctx, ref)
			require.NoError(t, err)
			assert.Equal(t, []byte("png-bytes"), data)

			require.NoError(t, s.Delete(ctx, ref))
			_, err = s.Get(ctx, ref)
			assert.ErrorIs(t, err, model.ErrNotFound)
		})
	}
}

func TestStore_RetriesNeverOverwrite(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := Key{JobID: "job-1", Stage: model.StageNarration, Item: 0}

			first, err := s.Put(ctx, key, []byte("attempt-1"), model.ArtifactAudio)
			require.NoError(t, err)
			second, err := s.Put(ctx, key, []byte("attempt-2"), model.ArtifactAudio)
			require.NoError(t, err)
			assert.NotEqual(t, first.Key, second.Key)

			data, err := s.Get(ctx, first)
			require.NoError(t, err)
			assert.Equal(t, []byte("attempt-1"), data)
		})
	}
}

func TestStore_RejectsForeignRef(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get(context.Background(), model.ArtifactRef{Store: "s3", Key: "jobs/x"})
	assert.Error(t, err)
}

func TestDiskStore_RejectsEscapingKey(t *testing.T) {
	s, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Get(context.Background(), model.ArtifactRef{Store: "disk", Key: "../../etc/passwd"})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrNotFound)
}

func TestDeleteJob(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			script, err := s.Put(ctx, Key{JobID: "j", Stage: model.StageScript}, []byte("{}"), model.ArtifactText)
			require.NoError(t, err)
			image, err := s.Put(ctx, Key{JobID: "j", Stage: model.StageImages}, []byte("png"), model.ArtifactImage)
			require.NoError(t, err)
			video, err := s.Put(ctx, Key{JobID: "j", Stage: model.StageComposition}, []byte("mp4"), model.ArtifactVideo)
			require.NoError(t, err)
			other, err := s.Put(ctx, Key{JobID: "k", Stage: model.StageScript}, []byte("{}"), model.ArtifactText)
			require.NoError(t, err)

			job := &model.Job{
				ID: "j",
				Stages: []model.StageState{
					{Name: model.StageScript, Items: []model.ItemState{{Result: &script}}},
					{Name: model.StageImages, Items: []model.ItemState{{Result: &image}, {}}},
					{Name: model.StageComposition, Items: []model.ItemState{{Result: &video}}},
				},
				ResultRef: &video,
			}
			require.NoError(t, DeleteJob(ctx, s, job))

			for _, ref := range []model.ArtifactRef{script, image, video} {
				_, err := s.Get(ctx, ref)
				assert.ErrorIs(t, err, model.ErrNotFound)
			}
			_, err = s.Get(ctx, other)
			assert.NoError(t, err)
		})
	}
}
