package upload

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/bitrise-io/go-utils/v2/filedownloader"
	"github.com/bitrise-io/go-utils/v2/log"
)

const fileSchema = "file://"

// sourceFetcher downloads a remote source to a local destination path.
type sourceFetcher interface {
	Fetch(ctx context.Context, destination, source string) error
}

// httpSourceFetcher fetches remote sources with automatic retry logic via the
// filedownloader package.
type httpSourceFetcher struct {
	logger log.Logger
}

func (f httpSourceFetcher) Fetch(ctx context.Context, destination, source string) error {
	return filedownloader.NewDownloader(f.logger).Download(ctx, destination, source)
}

// resolveSource turns an upload source into a local file path. A source is
// either a local path, a path with the `file://` scheme, or an http(s) URL
// that gets downloaded to a temporary directory first. The returned cleanup
// removes anything resolveSource created.
func (u *uploader) resolveSource(ctx context.Context, source string) (string, func(), error) {
	noop := func() {}

	if strings.HasPrefix(source, fileSchema) {
		pth, err := u.pathModifier.AbsPath(strings.TrimPrefix(source, fileSchema))
		if err != nil {
			return "", noop, err
		}
		return pth, noop, nil
	}

	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		tmpDir, err := u.pathProvider.CreateTempDir("upload-source")
		if err != nil {
			return "", noop, err
		}
		cleanup := func() {
			if err := u.osProxy.RemoveAll(tmpDir); err != nil {
				u.logger.Warnf("Failed to remove temporary download dir: %s", err)
			}
		}

		localPath := path.Join(tmpDir, fileNameFromURL(source))
		u.logger.Infof("Downloading source: %s", source)
		if err := u.sourceFetcher.Fetch(ctx, localPath, source); err != nil {
			cleanup()
			return "", noop, err
		}
		return localPath, cleanup, nil
	}

	pth, err := u.pathModifier.AbsPath(source)
	if err != nil {
		return "", noop, err
	}
	exists, err := u.pathChecker.IsPathExists(pth)
	if err != nil {
		return "", noop, err
	}
	if !exists {
		return "", noop, fmt.Errorf("source file not found: %s", source)
	}
	return pth, noop, nil
}

// fileNameFromURL extracts the file name from an http(s) URL, falling back to
// a generic name for URLs without a usable path.
func fileNameFromURL(source string) string {
	parsed, err := url.Parse(source)
	if err != nil {
		return "download"
	}

	name := filepath.Base(parsed.Path)
	if name == "." || name == "/" {
		return "download"
	}
	return name
}
