package upload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polarbaker/codapt-QAlliance-v5-sub003/upload/network"
)

func writeBatchDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	for _, name := range []string{"a.jpg", "b.jpg", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("media bytes"), 0600); err != nil {
			t.Fatalf("write %s: %s", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatalf("mkdir: %s", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "c.jpg"), []byte("media bytes"), 0600); err != nil {
		t.Fatalf("write nested: %s", err)
	}
	return dir
}

func TestUploadBatchGlob(t *testing.T) {
	dir := writeBatchDir(t)
	api := &fakeAPI{}
	u := newTestUploader(testConfig(), api, nil, nil)

	type call struct {
		fileIndex, fileCount int
	}
	var calls []call
	result, err := u.UploadBatch(context.Background(), BatchUploadInput{
		Patterns: []string{filepath.Join(dir, "*.jpg")},
		OnProgress: func(fileIndex, fileCount int, p Progress) {
			calls = append(calls, call{fileIndex: fileIndex, fileCount: fileCount})
		},
	})

	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 0, result.Failed)
	require.Len(t, result.Files, 2)
	for _, file := range result.Files {
		require.NoError(t, file.Err)
		require.NotNil(t, file.Result)
	}
	assert.Len(t, api.standardCalls, 2)

	require.NotEmpty(t, calls)
	for _, c := range calls {
		assert.Equal(t, 2, c.fileCount)
		assert.LessOrEqual(t, c.fileIndex, 1)
	}
}

func TestUploadBatchRecursiveGlob(t *testing.T) {
	dir := writeBatchDir(t)
	api := &fakeAPI{}
	u := newTestUploader(testConfig(), api, nil, nil)

	result, err := u.UploadBatch(context.Background(), BatchUploadInput{
		Patterns: []string{filepath.Join(dir, "**", "*.jpg")},
	})

	require.NoError(t, err)
	assert.Equal(t, 3, result.Succeeded, "doublestar pattern must match nested media")
}

func TestUploadBatchTooManyFiles(t *testing.T) {
	dir := writeBatchDir(t)
	u := newTestUploader(testConfig(), &fakeAPI{}, nil, nil)

	_, err := u.UploadBatch(context.Background(), BatchUploadInput{
		Patterns: []string{filepath.Join(dir, "*.jpg")},
		MaxFiles: 1,
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many files")
}

func TestUploadBatchContinueOnError(t *testing.T) {
	dir := writeBatchDir(t)
	bad := filepath.Join(dir, "a.jpg")
	good := filepath.Join(dir, "b.jpg")

	api := &fakeAPI{
		submitStandard: func(call int, params network.StandardSubmitParams) (network.StandardSubmitResult, error) {
			if params.FileName == "a.jpg" {
				return network.StandardSubmitResult{}, errors.New("HTTP 403: forbidden")
			}
			return network.StandardSubmitResult{FilePath: "/uploads/" + params.FileName}, nil
		},
	}
	u := newTestUploader(testConfig(), api, nil, nil)

	result, err := u.UploadBatch(context.Background(), BatchUploadInput{
		Patterns:        []string{bad, good},
		ContinueOnError: true,
	})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Files, 2)
	assert.Error(t, result.Files[0].Err)
	require.NotNil(t, result.Files[1].Result)
	assert.Equal(t, "/uploads/b.jpg", result.Files[1].Result.FilePath)
}

func TestUploadBatchStopsAtFirstError(t *testing.T) {
	dir := writeBatchDir(t)
	bad := filepath.Join(dir, "a.jpg")
	good := filepath.Join(dir, "b.jpg")

	api := &fakeAPI{
		submitStandard: func(call int, params network.StandardSubmitParams) (network.StandardSubmitResult, error) {
			return network.StandardSubmitResult{}, errors.New("HTTP 403: forbidden")
		},
	}
	u := newTestUploader(testConfig(), api, nil, nil)

	result, err := u.UploadBatch(context.Background(), BatchUploadInput{
		Patterns: []string{bad, good},
	})

	require.Error(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Len(t, api.standardCalls, 1, "the batch must stop at the first failure")
}

func TestUploadBatchInputValidation(t *testing.T) {
	dir := writeBatchDir(t)
	u := newTestUploader(testConfig(), &fakeAPI{}, nil, nil)

	_, err := u.UploadBatch(context.Background(), BatchUploadInput{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no file patterns")

	_, err = u.UploadBatch(context.Background(), BatchUploadInput{
		Patterns: []string{filepath.Join(dir, "*.zip")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no files matched")
}

func TestUploadBatchSkipsDirectories(t *testing.T) {
	dir := writeBatchDir(t)
	api := &fakeAPI{}
	u := newTestUploader(testConfig(), api, nil, nil)

	// dir/* matches the sub directory too; only regular files upload.
	result, err := u.UploadBatch(context.Background(), BatchUploadInput{
		Patterns: []string{filepath.Join(dir, "*")},
	})

	require.NoError(t, err)
	assert.Equal(t, 3, result.Succeeded)
}

func TestUploadBatchDeduplicates(t *testing.T) {
	dir := writeBatchDir(t)
	api := &fakeAPI{}
	u := newTestUploader(testConfig(), api, nil, nil)

	result, err := u.UploadBatch(context.Background(), BatchUploadInput{
		Patterns: []string{
			filepath.Join(dir, "a.jpg"),
			filepath.Join(dir, "*.jpg"),
		},
	})

	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded, "overlapping patterns must not upload a file twice")
	assert.Len(t, api.standardCalls, 2)
}
