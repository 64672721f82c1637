package upload

import (
	"reflect"
	"testing"
	"time"

	"github.com/polarbaker/codapt-QAlliance-v5-sub003/upload/network"
)

func Test_createConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		envVars map[string]string
		api     network.API
		want    uploadConfig
		wantErr bool
	}{
		{
			name: "Defaults",
			config: Config{
				APIBaseURL: "https://upload.example.com",
				Credential: "token",
			},
			want: uploadConfig{
				apiBaseURL:          "https://upload.example.com",
				credential:          "token",
				maxFileSize:         DefaultMaxFileSize,
				chunkThreshold:      DefaultChunkThreshold,
				chunkSize:           DefaultChunkSize,
				minChunkSize:        DefaultMinChunkSize,
				maxChunkRetries:     DefaultMaxChunkRetries,
				maxSessionAttempts:  DefaultMaxSessionAttempts,
				autoRetry:           true,
				chunkRetryBackoff:   time.Second,
				sessionRetryBackoff: time.Second,
				offlinePollInterval: time.Second,
			},
		},
		{
			name:   "Env fallbacks",
			config: Config{},
			envVars: map[string]string{
				"QALLIANCE_UPLOAD_API_URL": "https://env.example.com",
				"QALLIANCE_UPLOAD_TOKEN":   "env-token",
			},
			want: uploadConfig{
				apiBaseURL:          "https://env.example.com",
				credential:          "env-token",
				maxFileSize:         DefaultMaxFileSize,
				chunkThreshold:      DefaultChunkThreshold,
				chunkSize:           DefaultChunkSize,
				minChunkSize:        DefaultMinChunkSize,
				maxChunkRetries:     DefaultMaxChunkRetries,
				maxSessionAttempts:  DefaultMaxSessionAttempts,
				autoRetry:           true,
				chunkRetryBackoff:   time.Second,
				sessionRetryBackoff: time.Second,
				offlinePollInterval: time.Second,
			},
		},
		{
			name:    "Missing API base URL",
			config:  Config{Credential: "token"},
			wantErr: true,
		},
		{
			name:    "Missing credential",
			config:  Config{APIBaseURL: "https://upload.example.com"},
			wantErr: true,
		},
		{
			name:   "Injected API needs no URL or credential",
			config: Config{},
			api:    &fakeAPI{},
			want: uploadConfig{
				maxFileSize:         DefaultMaxFileSize,
				chunkThreshold:      DefaultChunkThreshold,
				chunkSize:           DefaultChunkSize,
				minChunkSize:        DefaultMinChunkSize,
				maxChunkRetries:     DefaultMaxChunkRetries,
				maxSessionAttempts:  DefaultMaxSessionAttempts,
				autoRetry:           true,
				chunkRetryBackoff:   time.Second,
				sessionRetryBackoff: time.Second,
				offlinePollInterval: time.Second,
			},
		},
		{
			name: "Chunk size below minimum",
			config: Config{
				APIBaseURL:   "https://upload.example.com",
				Credential:   "token",
				ChunkSize:    1024,
				MinChunkSize: 2048,
			},
			wantErr: true,
		},
		{
			name: "Negative size limit",
			config: Config{
				APIBaseURL:  "https://upload.example.com",
				Credential:  "token",
				MaxFileSize: -1,
			},
			wantErr: true,
		},
		{
			name: "Negative chunk retries",
			config: Config{
				APIBaseURL:      "https://upload.example.com",
				Credential:      "token",
				MaxChunkRetries: -1,
			},
			wantErr: true,
		},
		{
			name: "Overrides",
			config: Config{
				APIBaseURL:          "https://upload.example.com",
				Credential:          "token",
				MaxFileSize:         50 * 1024 * 1024,
				ChunkThreshold:      10 * 1024 * 1024,
				ChunkSize:           1024 * 1024,
				MinChunkSize:        512 * 1024,
				MaxChunkRetries:     5,
				MaxSessionAttempts:  2,
				DisableAutoRetry:    true,
				ChunkRetryBackoff:   100 * time.Millisecond,
				SessionRetryBackoff: 200 * time.Millisecond,
				OfflinePollInterval: 50 * time.Millisecond,
				CompressRequests:    true,
			},
			want: uploadConfig{
				apiBaseURL:          "https://upload.example.com",
				credential:          "token",
				maxFileSize:         50 * 1024 * 1024,
				chunkThreshold:      10 * 1024 * 1024,
				chunkSize:           1024 * 1024,
				minChunkSize:        512 * 1024,
				maxChunkRetries:     5,
				maxSessionAttempts:  2,
				autoRetry:           false,
				chunkRetryBackoff:   100 * time.Millisecond,
				sessionRetryBackoff: 200 * time.Millisecond,
				offlinePollInterval: 50 * time.Millisecond,
				compressRequests:    true,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &uploader{
				config:  tt.config,
				envRepo: fakeEnvRepo{envVars: tt.envVars},
				api:     tt.api,
			}
			got, err := u.createConfig()
			if (err != nil) != tt.wantErr {
				t.Errorf("createConfig() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("createConfig() got = %+v, want %+v", got, tt.want)
			}
		})
	}
}
