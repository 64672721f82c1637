package upload

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultMaxBatchFiles is the per-batch file cap applied when
// BatchUploadInput.MaxFiles is zero.
const DefaultMaxBatchFiles = 10

// BatchUploadInput describes a multi-file upload.
type BatchUploadInput struct {
	// Patterns select the files to upload. Both plain paths and doublestar
	// glob patterns are accepted.
	Patterns []string
	// MaxFiles caps how many files one batch may upload.
	// Default: DefaultMaxBatchFiles.
	MaxFiles int
	// ContinueOnError keeps the batch going after a failed file instead of
	// stopping at the first failure.
	ContinueOnError bool
	ForceChunked    bool
	// OnProgress receives per-file progress along with the file's position
	// in the batch.
	OnProgress func(fileIndex, fileCount int, p Progress)
}

// BatchFileResult is the outcome of one file of a batch.
type BatchFileResult struct {
	Source string
	Result *UploadResult
	Err    error
}

// BatchUploadResult ...
type BatchUploadResult struct {
	Files     []BatchFileResult
	Succeeded int
	Failed    int
}

// UploadBatch uploads every file matching the input patterns, one file at a
// time. Patterns that match nothing are skipped with a warning; a batch where
// nothing matches at all is an error.
func (u *uploader) UploadBatch(ctx context.Context, input BatchUploadInput) (*BatchUploadResult, error) {
	if len(input.Patterns) == 0 {
		return nil, fmt.Errorf("no file patterns provided")
	}

	maxFiles := input.MaxFiles
	if maxFiles == 0 {
		maxFiles = DefaultMaxBatchFiles
	}

	files, err := u.evaluatePatterns(input.Patterns)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files matched the provided patterns")
	}
	if len(files) > maxFiles {
		return nil, fmt.Errorf("too many files: %d matched, the limit is %d", len(files), maxFiles)
	}

	u.logger.Infof("Uploading %d files", len(files))

	result := &BatchUploadResult{}
	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		fileIndex := i
		var onProgress func(Progress)
		if input.OnProgress != nil {
			onProgress = func(p Progress) {
				input.OnProgress(fileIndex, len(files), p)
			}
		}

		u.logger.Printf("[%d/%d] %s", i+1, len(files), file)
		uploadResult, err := u.Upload(ctx, UploadInput{
			Source:       file,
			ForceChunked: input.ForceChunked,
			OnProgress:   onProgress,
		})
		if err != nil {
			result.Files = append(result.Files, BatchFileResult{Source: file, Err: err})
			result.Failed++
			if !input.ContinueOnError {
				return result, fmt.Errorf("upload %s: %w", file, err)
			}
			u.logger.Warnf("Upload failed for %s, continuing: %s", file, err)
			continue
		}

		result.Files = append(result.Files, BatchFileResult{Source: file, Result: uploadResult})
		result.Succeeded++
	}

	return result, nil
}

// evaluatePatterns expands glob patterns and validates the results, keeping
// regular files only.
func (u *uploader) evaluatePatterns(patterns []string) ([]string, error) {
	// Expand wildcard patterns
	var expandedPaths []string
	for _, pattern := range patterns {
		if !strings.ContainsAny(pattern, "*?[{") {
			expandedPaths = append(expandedPaths, pattern)
			continue
		}

		base, pure := doublestar.SplitPattern(pattern)
		absBase, err := u.pathModifier.AbsPath(base) // resolves ~/ and expands any envs
		if err != nil {
			return nil, err
		}
		matches, err := doublestar.Glob(u.osProxy.DirFS(absBase), pure, doublestar.WithNoFollow())
		if matches == nil {
			u.logger.Warnf("No match for pattern: %s", pattern)
			continue
		}
		if err != nil {
			u.logger.Warnf("Error in pattern '%s': %s", pattern, err)
			continue
		}

		for _, match := range matches {
			expandedPaths = append(expandedPaths, filepath.Join(base, match))
		}
	}

	// Validate and sanitize paths
	seen := map[string]bool{}
	var finalPaths []string
	for _, path := range expandedPaths {
		absPath, err := u.pathModifier.AbsPath(path)
		if err != nil {
			u.logger.Warnf("Failed to parse path %s, error: %s", path, err)
			continue
		}
		if seen[absPath] {
			continue
		}

		info, err := u.osProxy.Stat(absPath)
		if err != nil {
			u.logger.Warnf("Upload path doesn't exist: %s", path)
			continue
		}
		if info.IsDir() {
			u.logger.Warnf("Skipping directory: %s", path)
			continue
		}

		seen[absPath] = true
		finalPaths = append(finalPaths, absPath)
	}

	return finalPaths, nil
}
