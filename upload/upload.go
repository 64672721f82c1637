package upload

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"time"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/fileutil"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/docker/go-units"

	"github.com/polarbaker/codapt-QAlliance-v5-sub003/internal"
	"github.com/polarbaker/codapt-QAlliance-v5-sub003/upload/chunk"
	"github.com/polarbaker/codapt-QAlliance-v5-sub003/upload/classify"
	"github.com/polarbaker/codapt-QAlliance-v5-sub003/upload/connectivity"
	"github.com/polarbaker/codapt-QAlliance-v5-sub003/upload/network"
)

const defaultFileType = "application/octet-stream"

// Uploader sends media files to the ingest service, choosing between a single
// request and a chunked session based on size, and recovering from transient
// failures without caller involvement.
type Uploader interface {
	Upload(ctx context.Context, input UploadInput) (*UploadResult, error)
	UploadBatch(ctx context.Context, input BatchUploadInput) (*BatchUploadResult, error)
}

// UploadInput describes one file to upload.
type UploadInput struct {
	// Source is a local path, a file:// path or an http(s):// URL.
	Source string
	// FileName overrides the name reported to the service. Default: the base
	// name of the source.
	FileName string
	// FileType overrides the reported MIME type. Default: detected from the
	// extension, then from the content.
	FileType string
	// ForceChunked uses the chunked strategy regardless of size.
	ForceChunked bool
	// OnProgress, when set, receives every progress transition.
	OnProgress func(Progress)
}

// UploadResult ...
type UploadResult struct {
	// FilePath is the addressable location the service stored the file at.
	FilePath string
	FileName string
	FileType string
	Size     int64
	// Chunked reports which strategy completed the upload.
	Chunked bool
	// ChunkSize is the final chunk size of a chunked upload, after any
	// adaptive shrinking.
	ChunkSize      int64
	ChunksUploaded int
	// Attempts is the number of session attempts used, the successful one
	// included.
	Attempts int
	// Metadata is the processing report of a standard upload, if the service
	// sent one.
	Metadata *network.UploadMetadata
}

type uploader struct {
	config        Config
	envRepo       env.Repository
	logger        log.Logger
	pathProvider  pathutil.PathProvider
	pathModifier  pathutil.PathModifier
	pathChecker   pathutil.PathChecker
	api           network.API
	monitor       connectivity.Monitor
	osProxy       internal.OsProxy
	fileManager   fileutil.FileManager
	sourceFetcher sourceFetcher
	tracker       uploadTracker
}

// NewUploader creates a new Uploader. A nil api means a network client is
// built from the configuration on first use; a nil monitor assumes the
// network is always there.
func NewUploader(
	config Config,
	envRepo env.Repository,
	logger log.Logger,
	pathProvider pathutil.PathProvider,
	pathModifier pathutil.PathModifier,
	pathChecker pathutil.PathChecker,
	api network.API,
	monitor connectivity.Monitor,
) *uploader {
	if monitor == nil {
		monitor = connectivity.NewMonitor(connectivity.Config{}, logger)
	}

	return &uploader{
		config:        config,
		envRepo:       envRepo,
		logger:        logger,
		pathProvider:  pathProvider,
		pathModifier:  pathModifier,
		pathChecker:   pathChecker,
		api:           api,
		monitor:       monitor,
		osProxy:       internal.RealOS{},
		fileManager:   fileutil.NewFileManager(),
		sourceFetcher: httpSourceFetcher{logger: logger},
		tracker:       newUploadTracker(envRepo, logger),
	}
}

// payloadTooLargeError marks a server-side size rejection the adaptive loop
// responds to by shrinking chunks or switching strategy, instead of retrying
// the same bytes.
type payloadTooLargeError struct {
	err error
}

func (e *payloadTooLargeError) Error() string { return e.err.Error() }
func (e *payloadTooLargeError) Unwrap() error { return e.err }

// Upload sends one file and blocks until it is stored, the error is terminal,
// or ctx is cancelled. Cancellation aborts the in-flight request and pending
// waits; a cancelled upload keeps no partial state and is not retried.
func (u *uploader) Upload(ctx context.Context, input UploadInput) (*UploadResult, error) {
	config, err := u.createConfig()
	if err != nil {
		return nil, err
	}
	if input.Source == "" {
		return nil, fmt.Errorf("source is empty")
	}

	reporter := newProgressReporter(input.OnProgress)
	startTime := time.Now()
	defer u.tracker.wait()

	result, err := u.run(ctx, config, input, reporter)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			u.logger.Println()
			u.logger.Infof("Upload cancelled")
			u.tracker.logUploadCancelled(time.Since(startTime))
			reporter.emit(Progress{Phase: PhaseIdle, Percent: 0, Message: "Upload cancelled"})
			return nil, err
		}

		classified := classify.Wrap(err)
		cls, _ := classify.From(classified)
		u.logger.Errorf("Upload failed (%s): %s", cls.Category, classified)
		for _, suggestion := range cls.Suggestions {
			u.logger.Printf("- %s", suggestion)
		}
		u.tracker.logUploadFailed(string(cls.Category), time.Since(startTime))
		reporter.emit(Progress{Phase: PhaseError, Message: classified.Error()})
		return nil, classified
	}

	u.tracker.logUploadCompleted(result.FileType, result.Size, result.Chunked, result.Attempts, result.ChunkSize, time.Since(startTime))
	return result, nil
}

// run resolves the source and drives upload attempts until one succeeds, the
// failure is terminal, or the retry budget runs out. Payload-size adaptations
// (switching to chunked, shrinking chunks) restart the upload without
// consuming that budget.
func (u *uploader) run(ctx context.Context, config uploadConfig, input UploadInput, reporter *progressReporter) (*UploadResult, error) {
	localPath, cleanup, err := u.resolveSource(ctx, input.Source)
	if err != nil {
		return nil, fmt.Errorf("resolve source: %w", err)
	}
	defer cleanup()

	info, err := u.osProxy.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("stat source: %w", err)
	}
	size := info.Size()

	if size > config.maxFileSize {
		return nil, fmt.Errorf("file is too large: %s exceeds the %s limit",
			units.HumanSizeWithPrecision(float64(size), 3),
			units.HumanSizeWithPrecision(float64(config.maxFileSize), 3))
	}

	fileName := input.FileName
	if fileName == "" {
		fileName = filepath.Base(localPath)
	}
	fileType := input.FileType
	if fileType == "" {
		fileType = u.detectFileType(localPath, fileName)
	}

	api := u.api
	if api == nil {
		api = network.NewClient(network.ClientConfig{
			BaseURL:          config.apiBaseURL,
			Credential:       string(config.credential),
			CompressRequests: config.compressRequests,
		}, u.logger)
	}

	chunked := input.ForceChunked || size > config.chunkThreshold
	chunkSize := config.chunkSize

	u.logger.Infof("Uploading %s (%s, %s)", fileName, units.HumanSizeWithPrecision(float64(size), 3), fileType)
	u.tracker.logUploadStarted(fileType, size, chunked)

	failedAttempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var result *UploadResult
		var err error
		if chunked {
			result, err = u.runChunked(ctx, config, api, localPath, fileName, fileType, size, chunkSize, reporter)
		} else {
			result, err = u.runStandard(ctx, config, api, localPath, fileName, fileType, size, reporter)
		}
		if err == nil {
			result.FileName = fileName
			result.FileType = fileType
			result.Size = size
			result.Attempts = failedAttempts + 1
			reporter.emit(Progress{
				Phase:          PhaseComplete,
				Percent:        100,
				Message:        "Upload complete",
				ChunksTotal:    result.ChunksUploaded,
				ChunksUploaded: result.ChunksUploaded,
			})
			u.logger.Donef("Upload complete: %s", result.FilePath)
			return result, nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		var tooLarge *payloadTooLargeError
		if errors.As(err, &tooLarge) {
			if !chunked {
				// The whole file got rejected in one request; the same bytes
				// can still make it through in pieces.
				u.logger.Warnf("File exceeds the single-request limit, switching to a chunked upload")
				chunked = true
				reporter.restart()
				continue
			}

			shrunk := chunkSize / 2
			if shrunk < config.minChunkSize {
				return nil, fmt.Errorf("upload failed: %s chunks are still too large for the server",
					units.HumanSizeWithPrecision(float64(chunkSize), 3))
			}
			u.logger.Warnf("Server rejected the payload size, restarting with %s chunks",
				units.HumanSizeWithPrecision(float64(shrunk), 3))
			u.tracker.logChunkSizeReduced(chunkSize, shrunk)
			chunkSize = shrunk
			reporter.restart()
			continue
		}

		failedAttempts++
		cls, _ := classify.From(classify.Wrap(err))
		if !cls.CanRetry {
			return nil, err
		}
		if !config.autoRetry || failedAttempts >= config.maxSessionAttempts {
			return nil, err
		}

		// The wait doubles with every failed attempt.
		delay := config.sessionRetryBackoff * time.Duration(1<<uint(failedAttempts))
		u.logger.Warnf("Upload attempt %d failed: %s", failedAttempts, err)
		u.logger.Printf("Retrying in %s...", delay)
		reporter.emit(Progress{
			Phase:       PhaseRetrying,
			Message:     fmt.Sprintf("Upload failed, retrying in %s...", delay),
			NextRetryIn: delay,
		})
		if err := sleepContext(ctx, delay); err != nil {
			return nil, err
		}
		reporter.nextAttempt()
	}
}

// runChunked performs one full chunked upload attempt: a fresh session, all
// chunks in order, one in flight at a time.
func (u *uploader) runChunked(ctx context.Context, config uploadConfig, api network.API, localPath, fileName, fileType string, size, chunkSize int64, reporter *progressReporter) (*UploadResult, error) {
	reporter.emit(Progress{Phase: PhasePreparing, Percent: 0, Message: "Preparing chunks..."})

	provider, err := chunk.NewFileProvider(u.osProxy, localPath, chunkSize)
	if err != nil {
		return nil, fmt.Errorf("prepare chunks: %w", err)
	}
	defer func() {
		if err := provider.Close(); err != nil {
			u.logger.Warnf("Failed to close chunk provider: %s", err)
		}
	}()

	sess := newSession(fileName, fileType, provider)
	total := len(sess.chunks)

	u.logger.Infof("Chunked upload: %s in %d chunks of up to %s",
		units.HumanSizeWithPrecision(float64(size), 3), total,
		units.HumanSizeWithPrecision(float64(chunkSize), 3))
	u.logger.TDebugf("Session ID: %s", sess.id)
	reporter.emit(Progress{
		Phase:       PhasePreparing,
		Percent:     percentPrepared,
		Message:     fmt.Sprintf("Prepared %d chunks", total),
		ChunksTotal: total,
	})

	var filePath string
	for i := range sess.chunks {
		record := &sess.chunks[i]

		result, err := u.uploadChunkWithRetry(ctx, config, api, provider, sess, record, reporter)
		if err != nil {
			record.state = chunkFailed
			// One chunk out of retries fails the whole session: chunks are
			// never skipped or sent out of order.
			u.abortSession(api, sess.id)
			return nil, err
		}
		record.state = chunkUploaded

		reporter.emit(Progress{
			Phase:          PhaseUploading,
			Percent:        chunkedPercent(sess.uploadedCount(), total),
			Message:        fmt.Sprintf("Uploaded chunk %d of %d", i+1, total),
			ChunksTotal:    total,
			ChunksUploaded: sess.uploadedCount(),
			ChunksFailed:   sess.failedCount(),
		})

		if result.Complete {
			filePath = result.FilePath
		}
	}

	if filePath == "" {
		// Every chunk was acknowledged but the server never reported
		// assembly. Ask it what it thinks it received, then give up on this
		// session.
		if status, statusErr := api.SessionStatus(ctx, sess.id); statusErr == nil {
			u.logger.Warnf("Server reports %d of %d chunks received", status.ReceivedChunks, status.TotalChunks)
		}
		u.abortSession(api, sess.id)
		return nil, fmt.Errorf("server did not confirm file assembly after %d chunks", total)
	}

	return &UploadResult{
		FilePath:       filePath,
		Chunked:        true,
		ChunkSize:      chunkSize,
		ChunksUploaded: total,
	}, nil
}

// uploadChunkWithRetry sends one chunk, retrying transient failures with
// exponential backoff until the per-chunk budget runs out. Size rejections
// and permission failures break out immediately: more attempts with the same
// bytes or the same credential cannot end differently.
func (u *uploader) uploadChunkWithRetry(ctx context.Context, config uploadConfig, api network.API, provider chunk.Provider, sess *session, record *chunkRecord, reporter *progressReporter) (network.ChunkSubmitResult, error) {
	index := record.span.Index
	total := len(sess.chunks)

	for {
		if err := ctx.Err(); err != nil {
			return network.ChunkSubmitResult{}, err
		}

		if err := u.waitWhileOffline(ctx, config, reporter); err != nil {
			return network.ChunkSubmitResult{}, err
		}

		record.state = chunkUploading
		payload, err := provider.Payload(index)
		if err != nil {
			// The source is unreadable; the network cannot fix that.
			return network.ChunkSubmitResult{}, err
		}

		started := time.Now()
		result, err := api.SubmitChunk(ctx, network.ChunkSubmitParams{
			SessionID:   sess.id,
			ChunkIndex:  index,
			TotalChunks: total,
			Data:        payload,
			FileName:    sess.fileName,
			FileType:    sess.fileType,
		})
		if err == nil {
			u.logger.TDebugf("Chunk %d/%d (%s) uploaded in %s", index+1, total,
				units.HumanSizeWithPrecision(float64(record.span.Size()), 3),
				time.Since(started).Round(time.Millisecond))
			return result, nil
		}

		if ctx.Err() != nil {
			return network.ChunkSubmitResult{}, ctx.Err()
		}

		classified := classify.Wrap(fmt.Errorf("upload chunk %d: %w", index+1, err))
		cls, _ := classify.From(classified)

		switch cls.Category {
		case classify.CategorySize:
			return network.ChunkSubmitResult{}, &payloadTooLargeError{err: classified}
		case classify.CategoryPermission:
			return network.ChunkSubmitResult{}, classified
		}

		record.retryCount++
		if record.retryCount > config.maxChunkRetries {
			u.logger.Errorf("Chunk %d failed after %d attempts", index+1, record.retryCount)
			return network.ChunkSubmitResult{}, classified
		}

		if cls.Category == classify.CategoryNetwork {
			u.monitor.Refresh(ctx)
		}

		backoff := config.chunkRetryBackoff * time.Duration(1<<uint(record.retryCount))
		u.logger.Warnf("Chunk %d failed (attempt %d of %d): %s", index+1, record.retryCount, config.maxChunkRetries+1, err)
		u.logger.Debugf("Retrying chunk %d in %s", index+1, backoff)
		reporter.emit(Progress{
			Phase:          PhaseUploading,
			Message:        fmt.Sprintf("Chunk %d failed, retrying...", index+1),
			ChunksTotal:    total,
			ChunksUploaded: sess.uploadedCount(),
		})
		if err := sleepContext(ctx, backoff); err != nil {
			return network.ChunkSubmitResult{}, err
		}
	}
}

// runStandard performs one whole-file upload attempt.
func (u *uploader) runStandard(ctx context.Context, config uploadConfig, api network.API, localPath, fileName, fileType string, size int64, reporter *progressReporter) (*UploadResult, error) {
	reporter.emit(Progress{Phase: PhasePreparing, Percent: 0, Message: "Preparing upload..."})

	// A single span covering the whole file.
	providerChunkSize := size
	if providerChunkSize == 0 {
		providerChunkSize = 1
	}
	provider, err := chunk.NewFileProvider(u.osProxy, localPath, providerChunkSize)
	if err != nil {
		return nil, fmt.Errorf("prepare upload: %w", err)
	}
	defer func() {
		if err := provider.Close(); err != nil {
			u.logger.Warnf("Failed to close file: %s", err)
		}
	}()

	payload, err := provider.Payload(0)
	if err != nil {
		return nil, err
	}
	reporter.emit(Progress{Phase: PhasePreparing, Percent: percentStandardEncoded, Message: "File encoded"})

	if err := u.waitWhileOffline(ctx, config, reporter); err != nil {
		return nil, err
	}

	reporter.emit(Progress{Phase: PhaseUploading, Percent: percentStandardDispatched, Message: "Uploading..."})

	result, err := api.SubmitStandard(ctx, network.StandardSubmitParams{
		FileName:    fileName,
		FileType:    fileType,
		FileContent: payload,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		classified := classify.Wrap(fmt.Errorf("upload file: %w", err))
		cls, _ := classify.From(classified)
		if cls.Category == classify.CategorySize {
			return nil, &payloadTooLargeError{err: classified}
		}
		return nil, classified
	}

	if result.Metadata != nil {
		for _, warning := range result.Metadata.Warnings {
			u.logger.Warnf("Server: %s", warning)
		}
	}

	return &UploadResult{
		FilePath: result.FilePath,
		Metadata: result.Metadata,
	}, nil
}

// waitWhileOffline pauses the loop while the monitor reports no connectivity.
// Waiting costs nothing: neither chunk nor session retry budget is consumed.
func (u *uploader) waitWhileOffline(ctx context.Context, config uploadConfig, reporter *progressReporter) error {
	if u.monitor.CurrentState() != connectivity.StateOffline {
		return nil
	}

	u.logger.Warnf("No network connection, waiting...")
	reporter.emit(Progress{Phase: PhaseUploading, Message: "Waiting for connection..."})

	for u.monitor.CurrentState() == connectivity.StateOffline {
		if err := sleepContext(ctx, config.offlinePollInterval); err != nil {
			return err
		}
	}

	u.logger.Donef("Connection restored")
	return nil
}

// abortSession tells the server to drop a dead session's chunks. Best effort:
// the server expires abandoned sessions on its own anyway. A fresh context is
// used so cleanup still runs when the upload's context is already cancelled.
func (u *uploader) abortSession(api network.API, sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := api.AbortSession(ctx, sessionID); err != nil {
		u.logger.Debugf("Failed to abort session %s: %s", sessionID, err)
	}
}

func (u *uploader) detectFileType(localPath, fileName string) string {
	if byExt := mime.TypeByExtension(filepath.Ext(fileName)); byExt != "" {
		return byExt
	}

	file, err := u.fileManager.Open(localPath)
	if err != nil {
		return defaultFileType
	}
	defer func() {
		if err := file.Close(); err != nil {
			u.logger.Warnf("Failed to close file: %s", err)
		}
	}()

	head := make([]byte, 512)
	n, err := file.Read(head)
	if err != nil || n == 0 {
		return defaultFileType
	}
	return http.DetectContentType(head[:n])
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
