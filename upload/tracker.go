package upload

import (
	"time"

	"github.com/bitrise-io/go-utils/v2/analytics"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
)

// uploadTracker reports anonymous upload telemetry. File names and contents
// are never included in the events.
type uploadTracker struct {
	tracker analytics.Tracker
	logger  log.Logger
}

func newUploadTracker(envRepo env.Repository, logger log.Logger) uploadTracker {
	p := analytics.Properties{
		"client":      "media-upload-go",
		"environment": envRepo.Get("QALLIANCE_ENV"),
	}
	return uploadTracker{
		tracker: analytics.NewDefaultTracker(logger, p),
		logger:  logger,
	}
}

func (t *uploadTracker) logUploadStarted(fileType string, sizeBytes int64, chunked bool) {
	properties := analytics.Properties{
		"file_type":  fileType,
		"size_bytes": sizeBytes,
		"chunked":    chunked,
	}
	t.tracker.Enqueue("media_upload_started", properties)
}

func (t *uploadTracker) logUploadCompleted(fileType string, sizeBytes int64, chunked bool, attempts int, chunkSizeBytes int64, uploadTime time.Duration) {
	properties := analytics.Properties{
		"file_type":        fileType,
		"size_bytes":       sizeBytes,
		"chunked":          chunked,
		"attempts":         attempts,
		"chunk_size_bytes": chunkSizeBytes,
		"upload_time_s":    uploadTime.Truncate(time.Second).Seconds(),
	}
	t.tracker.Enqueue("media_upload_completed", properties)
}

func (t *uploadTracker) logUploadFailed(category string, uploadTime time.Duration) {
	properties := analytics.Properties{
		"error_category": category,
		"upload_time_s":  uploadTime.Truncate(time.Second).Seconds(),
	}
	t.tracker.Enqueue("media_upload_failed", properties)
}

func (t *uploadTracker) logUploadCancelled(uploadTime time.Duration) {
	properties := analytics.Properties{
		"upload_time_s": uploadTime.Truncate(time.Second).Seconds(),
	}
	t.tracker.Enqueue("media_upload_cancelled", properties)
}

func (t *uploadTracker) logChunkSizeReduced(fromBytes, toBytes int64) {
	properties := analytics.Properties{
		"from_bytes": fromBytes,
		"to_bytes":   toBytes,
	}
	t.tracker.Enqueue("media_upload_chunk_size_reduced", properties)
}

func (t *uploadTracker) wait() {
	t.tracker.Wait()
}
