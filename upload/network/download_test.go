package network

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testutil "github.com/polarbaker/codapt-QAlliance-v5-sub003/internal/testing"
)

func TestFetchAsset(t *testing.T) {
	content := bytes.Repeat([]byte("media-bytes "), 1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/files/images/2024/photo.jpg", r.URL.Path)
		http.ServeContent(w, r, "photo.jpg", time.Now(), bytes.NewReader(content))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "photo.jpg")
	err := FetchAsset(context.Background(), FetchParams{
		AssetBaseURL: server.URL + "/files",
		FilePath:     "images/2024/photo.jpg",
		DownloadPath: dest,
	}, log.NewLogger())

	require.NoError(t, err)
	require.NoError(t, testutil.NewFileChecker(dest).IsFile().SizeEquals(int64(len(content))).Check())
}

func TestFetchAssetAbsoluteURL(t *testing.T) {
	content := []byte("tiny")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/direct/photo.jpg", r.URL.Path)
		http.ServeContent(w, r, "photo.jpg", time.Now(), bytes.NewReader(content))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "photo.jpg")
	err := FetchAsset(context.Background(), FetchParams{
		FilePath:     server.URL + "/direct/photo.jpg",
		DownloadPath: dest,
	}, log.NewLogger())

	require.NoError(t, err)
	require.NoError(t, testutil.NewFileChecker(dest).IsFile().Content("tiny").Check())
}

func TestFetchAssetValidation(t *testing.T) {
	logger := log.NewLogger()

	err := FetchAsset(context.Background(), FetchParams{DownloadPath: "/tmp/x"}, logger)
	assert.Error(t, err)

	err = FetchAsset(context.Background(), FetchParams{FilePath: "images/a.jpg"}, logger)
	assert.Error(t, err)

	// Relative file path without a base URL to resolve against.
	err = FetchAsset(context.Background(), FetchParams{
		FilePath:     "images/a.jpg",
		DownloadPath: "/tmp/x",
	}, logger)
	assert.Error(t, err)
}

func TestAssetURL(t *testing.T) {
	tests := []struct {
		name     string
		baseURL  string
		filePath string
		want     string
	}{
		{
			name:     "joined to base",
			baseURL:  "https://cdn.example.com",
			filePath: "images/photo.jpg",
			want:     "https://cdn.example.com/images/photo.jpg",
		},
		{
			name:     "trailing and leading slashes collapse",
			baseURL:  "https://cdn.example.com/",
			filePath: "/images/photo.jpg",
			want:     "https://cdn.example.com/images/photo.jpg",
		},
		{
			name:     "absolute file path wins over base",
			baseURL:  "https://cdn.example.com",
			filePath: "https://other.example.com/photo.jpg",
			want:     "https://other.example.com/photo.jpg",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := assetURL(tt.baseURL, tt.filePath)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
