package upload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/docker/go-units"

	"github.com/polarbaker/codapt-QAlliance-v5-sub003/upload/network"
)

const envAssetBaseURL = "QALLIANCE_ASSET_BASE_URL"

// DownloadInput identifies a previously uploaded file to fetch back.
type DownloadInput struct {
	// FilePath is the path the upload returned, or an absolute http(s) URL.
	FilePath string
	// AssetBaseURL overrides the base URL relative file paths are resolved
	// against. Default: the QALLIANCE_ASSET_BASE_URL env var.
	AssetBaseURL string
	// DestinationDir is where the file is placed. Default: a new temporary
	// directory.
	DestinationDir string
	// FileName overrides the name of the downloaded file.
	FileName string
}

// Downloader fetches stored files from the asset host.
type Downloader interface {
	Download(ctx context.Context, input DownloadInput) (string, error)
}

type downloader struct {
	envRepo      env.Repository
	logger       log.Logger
	pathProvider pathutil.PathProvider
}

// NewDownloader ...
func NewDownloader(envRepo env.Repository, logger log.Logger, pathProvider pathutil.PathProvider) *downloader {
	return &downloader{
		envRepo:      envRepo,
		logger:       logger,
		pathProvider: pathProvider,
	}
}

// Download fetches the file and returns its local path.
func (d *downloader) Download(ctx context.Context, input DownloadInput) (string, error) {
	if input.FilePath == "" {
		return "", fmt.Errorf("file path is empty")
	}

	baseURL := input.AssetBaseURL
	if baseURL == "" {
		baseURL = d.envRepo.Get(envAssetBaseURL)
	}

	downloadPath, err := d.destinationPath(input)
	if err != nil {
		return "", err
	}

	d.logger.Infof("Downloading %s...", input.FilePath)
	downloadStartTime := time.Now()

	params := network.FetchParams{
		AssetBaseURL: baseURL,
		FilePath:     input.FilePath,
		DownloadPath: downloadPath,
	}
	if err := network.FetchAsset(ctx, params, d.logger); err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}

	fileInfo, err := os.Stat(downloadPath)
	if err != nil {
		return "", err
	}
	d.logger.Printf("File size: %s", units.HumanSizeWithPrecision(float64(fileInfo.Size()), 3))
	d.logger.Donef("Downloaded in %s", time.Since(downloadStartTime).Round(time.Millisecond))

	return downloadPath, nil
}

func (d *downloader) destinationPath(input DownloadInput) (string, error) {
	dir := input.DestinationDir
	if dir == "" {
		tmpDir, err := d.pathProvider.CreateTempDir("download-asset")
		if err != nil {
			return "", err
		}
		dir = tmpDir
	} else if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	name := input.FileName
	if name == "" {
		if strings.HasPrefix(input.FilePath, "http://") || strings.HasPrefix(input.FilePath, "https://") {
			name = fileNameFromURL(input.FilePath)
		} else {
			name = filepath.Base(input.FilePath)
		}
	}

	return filepath.Join(dir, name), nil
}
