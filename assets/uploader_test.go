package assets

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lordpython/aisoulstudio/production"
)

// memBucket is a minimal in-memory bucket for uploader tests. The
// exported fake lives in assetstest, which cannot be imported here
// without a cycle.
type memBucket struct {
	mu          sync.Mutex
	objects     map[string][]byte
	failPattern string
}

func (b *memBucket) BasePath() string { return "https://bucket.test" }

func (b *memBucket) Put(_ context.Context, objectPath string, data []byte, _ string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failPattern != "" && strings.Contains(objectPath, b.failPattern) {
		return "", fmt.Errorf("simulated failure")
	}
	if b.objects == nil {
		b.objects = make(map[string][]byte)
	}
	b.objects[objectPath] = data
	return "https://bucket.test/" + objectPath, nil
}

func uploadTestState() *production.State {
	state := production.NewState("prod_1700000000000_abc123")
	state.ContentPlan = &production.ContentPlan{
		Topic:    "bees",
		Language: "en",
		Scenes:   []production.Scene{{ID: "scene-1", Duration: 10}},
	}
	state.NarrationSegments = []production.NarrationSegment{
		{SceneID: "scene-1", Text: "hello", Audio: []byte("audio-bytes"), AudioDuration: 2},
	}
	state.Subtitles = &production.SubtitleResult{
		Format:  SubtitleFormatSRT,
		Content: "1\n00:00:00,000 --> 00:00:02,000\nhello\n\n",
	}
	state.ExportedVideo = []byte("video-bytes")
	state.ExportResult = &production.ExportResult{DownloadURL: "https://cdn.test/final.mp4", Format: "mp4"}
	return state
}

func TestCloudUploader_UploadsSelectedAssets(t *testing.T) {
	bucket := &memBucket{}
	uploader := NewCloudUploader(bucket, nil)

	result, err := uploader.Upload(context.Background(), uploadTestState(), UploadRequest{
		MakePublic:       true,
		IncludeNarration: true,
		IncludeSubtitles: true,
		IncludeVideo:     true,
	})
	require.NoError(t, err)

	assert.Equal(t, "production_prod_1700000000000_abc123", result.FolderName)
	assert.Equal(t, "https://bucket.test/production_prod_1700000000000_abc123", result.BucketPath)
	// manifest, plan, one narration segment, subtitles, video
	assert.Equal(t, 5, result.TotalFiles)
	assert.Equal(t, 5, result.FilesUploaded)
	assert.Len(t, result.PublicURLs, 5)
	assert.Empty(t, result.Errors)
	assert.Greater(t, result.TotalSizeMB, 0.0)

	assert.Contains(t, bucket.objects, "production_prod_1700000000000_abc123/manifest.json")
	assert.Contains(t, bucket.objects, "production_prod_1700000000000_abc123/narration/segment_001.mp3")
	assert.Contains(t, bucket.objects, "production_prod_1700000000000_abc123/subtitles/subtitles.srt")
	assert.Contains(t, bucket.objects, "production_prod_1700000000000_abc123/video/final.mp4")
}

func TestCloudUploader_IncludeGlobs(t *testing.T) {
	bucket := &memBucket{}
	uploader := NewCloudUploader(bucket, nil)

	result, err := uploader.Upload(context.Background(), uploadTestState(), UploadRequest{
		IncludeNarration: true,
		IncludeSubtitles: true,
		IncludeVideo:     true,
		Include:          []string{"narration/**", "*.json"},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalFiles, "manifest.json, plan.json, narration segment")
	for path := range bucket.objects {
		assert.False(t, strings.Contains(path, "video/"), "video should be filtered out, got %s", path)
		assert.False(t, strings.Contains(path, "subtitles/"), "subtitles should be filtered out, got %s", path)
	}
}

func TestCloudUploader_ExcludeGlobs(t *testing.T) {
	bucket := &memBucket{}
	uploader := NewCloudUploader(bucket, nil)

	result, err := uploader.Upload(context.Background(), uploadTestState(), UploadRequest{
		IncludeNarration: true,
		IncludeSubtitles: true,
		IncludeVideo:     true,
		Exclude:          []string{"video/**"},
	})
	require.NoError(t, err)

	assert.Equal(t, 4, result.TotalFiles)
	assert.NotContains(t, bucket.objects, "production_prod_1700000000000_abc123/video/final.mp4")
}

func TestCloudUploader_BadPattern(t *testing.T) {
	uploader := NewCloudUploader(&memBucket{}, nil)

	_, err := uploader.Upload(context.Background(), uploadTestState(), UploadRequest{
		Include: []string{"[unclosed"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad include pattern")
}

func TestCloudUploader_PartialFailure(t *testing.T) {
	bucket := &memBucket{failPattern: "narration"}
	uploader := NewCloudUploader(bucket, nil)

	result, err := uploader.Upload(context.Background(), uploadTestState(), UploadRequest{
		IncludeNarration: true,
		IncludeSubtitles: true,
		IncludeVideo:     true,
	})
	require.NoError(t, err, "partial failure is a success with errors recorded")

	assert.Equal(t, 5, result.TotalFiles)
	assert.Equal(t, 4, result.FilesUploaded)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "narration/segment_001.mp3")
}

func TestCloudUploader_AllFailed(t *testing.T) {
	bucket := &memBucket{failPattern: "/"}
	uploader := NewCloudUploader(bucket, nil)

	_, err := uploader.Upload(context.Background(), uploadTestState(), UploadRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "uploads failed")
}

func TestCloudUploader_CustomFolderName(t *testing.T) {
	bucket := &memBucket{}
	uploader := NewCloudUploader(bucket, nil)

	result, err := uploader.Upload(context.Background(), uploadTestState(), UploadRequest{
		FolderName: "my-release",
	})
	require.NoError(t, err)
	assert.Equal(t, "my-release", result.FolderName)
	assert.Contains(t, bucket.objects, "my-release/manifest.json")
}
