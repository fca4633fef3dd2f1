package assets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/lordpython/aisoulstudio/llm"
	"github.com/lordpython/aisoulstudio/production"
)

// BucketClient stores objects in a cloud bucket.
type BucketClient interface {
	Put(ctx context.Context, objectPath string, data []byte, contentType string) (publicURL string, err error)
	BasePath() string
}

// UploadRequest selects which production assets to upload. Include and
// Exclude are doublestar glob patterns matched against object paths
// relative to the production folder; an empty Include list means
// everything.
type UploadRequest struct {
	FolderName       string
	MakePublic       bool
	IncludeNarration bool
	IncludeVisuals   bool
	IncludeMusic     bool
	IncludeSubtitles bool
	IncludeVideo     bool
	Include          []string
	Exclude          []string
}

// UploadResult summarizes an upload, including per-file failures: an
// upload that moved some files and failed others is a partial success,
// not an error.
type UploadResult struct {
	FolderName    string
	BucketPath    string
	FilesUploaded int
	TotalFiles    int
	TotalSizeMB   float64
	PublicURLs    []string
	Errors        []string
}

// CloudUploader materializes a session's assets as files and uploads them.
type CloudUploader struct {
	bucket BucketClient
	logger *slog.Logger
}

// NewCloudUploader creates an uploader backed by the given bucket.
func NewCloudUploader(bucket BucketClient, logger *slog.Logger) *CloudUploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudUploader{bucket: bucket, logger: logger}
}

// uploadFile is one materialized asset awaiting upload.
type uploadFile struct {
	Path        string
	Data        []byte
	ContentType string
}

// Upload materializes the selected assets, filters them through the glob
// patterns, and uploads each one. A manifest describing the production is
// always included. Per-file failures are collected rather than aborting
// the batch.
func (u *CloudUploader) Upload(ctx context.Context, state *production.State, req UploadRequest) (*UploadResult, error) {
	if state == nil {
		return nil, fmt.Errorf("no production state to upload")
	}

	folder := req.FolderName
	if folder == "" {
		folder = "production_" + state.SessionID
	}

	files, err := materializeAssets(state, req)
	if err != nil {
		return nil, err
	}
	files, err = filterFiles(files, req.Include, req.Exclude)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no assets matched the upload selection")
	}

	result := &UploadResult{
		FolderName: folder,
		BucketPath: strings.TrimSuffix(u.bucket.BasePath(), "/") + "/" + folder,
		TotalFiles: len(files),
	}

	var totalBytes int
	for _, f := range files {
		url, err := u.bucket.Put(ctx, folder+"/"+f.Path, f.Data, f.ContentType)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", f.Path, err))
			u.logger.Warn("asset upload failed", "path", f.Path, "error", err)
			continue
		}
		result.FilesUploaded++
		totalBytes += len(f.Data)
		if req.MakePublic {
			result.PublicURLs = append(result.PublicURLs, url)
		}
	}
	result.TotalSizeMB = float64(totalBytes) / (1024 * 1024)

	if result.FilesUploaded == 0 {
		return nil, fmt.Errorf("all %d uploads failed: %s", result.TotalFiles, strings.Join(result.Errors, "; "))
	}

	u.logger.Info("production uploaded",
		"folder", folder,
		"uploaded", result.FilesUploaded,
		"total", result.TotalFiles,
		"size_mb", result.TotalSizeMB)
	return result, nil
}

// materializeAssets flattens the session state into named files. Assets
// that live behind URLs are referenced from the manifest rather than
// re-downloaded.
func materializeAssets(state *production.State, req UploadRequest) ([]uploadFile, error) {
	var files []uploadFile

	manifest, err := buildManifest(state, req)
	if err != nil {
		return nil, fmt.Errorf("building manifest: %w", err)
	}
	files = append(files, uploadFile{Path: "manifest.json", Data: manifest, ContentType: "application/json"})

	if state.ContentPlan != nil {
		plan, err := json.MarshalIndent(state.ContentPlan, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encoding plan: %w", err)
		}
		files = append(files, uploadFile{Path: "plan.json", Data: plan, ContentType: "application/json"})
	}

	if req.IncludeNarration {
		for i, seg := range state.NarrationSegments {
			if len(seg.Audio) == 0 {
				continue
			}
			files = append(files, uploadFile{
				Path:        fmt.Sprintf("narration/segment_%03d.mp3", i+1),
				Data:        seg.Audio,
				ContentType: "audio/mpeg",
			})
		}
	}

	if req.IncludeSubtitles && state.Subtitles != nil {
		ext := state.Subtitles.Format
		files = append(files, uploadFile{
			Path:        "subtitles/subtitles." + ext,
			Data:        []byte(state.Subtitles.Content),
			ContentType: "text/plain; charset=utf-8",
		})
	}

	if req.IncludeVideo && len(state.ExportedVideo) > 0 {
		ext := ExportFormatMP4
		if state.ExportResult != nil && state.ExportResult.Format != "" {
			ext = state.ExportResult.Format
		}
		files = append(files, uploadFile{
			Path:        "video/final." + ext,
			Data:        state.ExportedVideo,
			ContentType: "video/" + ext,
		})
	}

	return files, nil
}

// manifestEntry points at a URL-backed asset that is not re-uploaded.
type manifestEntry struct {
	Kind string `json:"kind"`
	URL  string `json:"url"`
}

// buildManifest lists the URL-backed assets selected by the include flags.
func buildManifest(state *production.State, req UploadRequest) ([]byte, error) {
	var entries []manifestEntry
	if req.IncludeVisuals {
		for _, v := range state.Visuals {
			if v.URL != "" {
				entries = append(entries, manifestEntry{Kind: "visual", URL: v.URL})
			}
			if v.VideoURL != "" {
				entries = append(entries, manifestEntry{Kind: "video", URL: v.VideoURL})
			}
		}
	}
	if req.IncludeNarration {
		for _, seg := range state.NarrationSegments {
			if seg.AudioURL != "" {
				entries = append(entries, manifestEntry{Kind: "narration", URL: seg.AudioURL})
			}
		}
	}
	if req.IncludeMusic && state.MusicURL != "" {
		entries = append(entries, manifestEntry{Kind: "music", URL: state.MusicURL})
	}
	if state.MixedAudio != nil && state.MixedAudio.URL != "" {
		entries = append(entries, manifestEntry{Kind: "mixedAudio", URL: state.MixedAudio.URL})
	}
	if state.ExportResult != nil && state.ExportResult.DownloadURL != "" {
		entries = append(entries, manifestEntry{Kind: "export", URL: state.ExportResult.DownloadURL})
	}

	return json.MarshalIndent(map[string]any{
		"sessionId": state.SessionID,
		"scenes":    state.SceneCount(),
		"complete":  state.IsComplete,
		"assets":    entries,
	}, "", "  ")
}

// filterFiles applies include then exclude glob patterns to the candidate
// list. Malformed patterns are reported rather than silently dropped.
func filterFiles(files []uploadFile, include, exclude []string) ([]uploadFile, error) {
	var out []uploadFile
	for _, f := range files {
		keep := len(include) == 0
		for _, pattern := range include {
			match, err := doublestar.Match(pattern, f.Path)
			if err != nil {
				return nil, fmt.Errorf("bad include pattern %q: %w", pattern, err)
			}
			if match {
				keep = true
				break
			}
		}
		if !keep {
			continue
		}

		excluded := false
		for _, pattern := range exclude {
			match, err := doublestar.Match(pattern, f.Path)
			if err != nil {
				return nil, fmt.Errorf("bad exclude pattern %q: %w", pattern, err)
			}
			if match {
				excluded = true
				break
			}
		}
		if !excluded {
			out = append(out, f)
		}
	}
	return out, nil
}

// HTTPBucketClient stores objects with plain HTTP PUTs against a storage
// gateway, presigned-upload style.
type HTTPBucketClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPBucketClient creates a bucket client rooted at baseURL.
func NewHTTPBucketClient(baseURL, apiKey string, client *http.Client) *HTTPBucketClient {
	if client == nil {
		client = defaultHTTPClient
	}
	return &HTTPBucketClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

// BasePath returns the bucket root.
func (b *HTTPBucketClient) BasePath() string {
	return b.baseURL
}

// Put uploads one object and returns its URL.
func (b *HTTPBucketClient) Put(ctx context.Context, objectPath string, data []byte, contentType string) (string, error) {
	url := b.baseURL + "/" + objectPath

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return "", llm.NewTransientError(fmt.Errorf("upload failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", llm.ClassifyHTTPStatus(resp.StatusCode, body)
	}
	return url, nil
}
