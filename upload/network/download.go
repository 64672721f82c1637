package network

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/melbahja/got"
)

// FetchParams ...
type FetchParams struct {
	// AssetBaseURL is where the service publishes uploaded files.
	AssetBaseURL string
	// FilePath is the addressable location returned by a completed upload.
	// An absolute URL is fetched as-is, anything else is joined to the base.
	FilePath string
	// DownloadPath is the local destination file.
	DownloadPath string
}

// FetchAsset downloads a previously uploaded file to a local path.
func FetchAsset(ctx context.Context, params FetchParams, logger log.Logger) error {
	if params.FilePath == "" {
		return fmt.Errorf("file path is empty")
	}
	if params.DownloadPath == "" {
		return fmt.Errorf("download path is empty")
	}

	url, err := assetURL(params.AssetBaseURL, params.FilePath)
	if err != nil {
		return err
	}

	retryableHTTPClient := retryhttp.NewClient(logger)
	retryableHTTPClient.CheckRetry = createCustomRetryFunction(logger)

	logger.Debugf("Download asset")
	if err := DownloadFile(ctx, retryableHTTPClient.StandardClient(), url, params.DownloadPath); err != nil {
		return fmt.Errorf("failed to download asset: %w", err)
	}

	return nil
}

func assetURL(baseURL, filePath string) (string, error) {
	if strings.HasPrefix(filePath, "http://") || strings.HasPrefix(filePath, "https://") {
		return filePath, nil
	}
	if baseURL == "" {
		return "", fmt.Errorf("asset base URL is empty and file path %q is not absolute", filePath)
	}
	return fmt.Sprintf("%s/%s", strings.TrimSuffix(baseURL, "/"), strings.TrimPrefix(filePath, "/")), nil
}

func createCustomRetryFunction(logger log.Logger) func(context.Context, *http.Response, error) (bool, error) {
	return func(ctx context.Context, resp *http.Response, downloadErr error) (bool, error) {
		retry, err := retryablehttp.DefaultRetryPolicy(ctx, resp, downloadErr)
		logger.Debugf("CheckRetry: retry=%v ; err=%+v ; downloadErr=%+v", retry, err, downloadErr)
		return retry, err
	}
}

// DownloadFile fetches url into dest. Large files are downloaded in parallel
// ranges when the server supports them.
func DownloadFile(ctx context.Context, client *http.Client, url string, dest string) error {
	downloader := got.New()
	downloader.Client = client

	return downloader.Do(got.NewDownload(ctx, url, dest))
}
