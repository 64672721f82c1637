package upload

import (
	"fmt"
	"time"

	"github.com/docker/go-units"
)

// Defaults for the adaptive upload strategy. All of them can be overridden
// through Config.
const (
	// DefaultMaxFileSize rejects sources above this size before any network
	// call.
	DefaultMaxFileSize = 200 * 1024 * 1024
	// DefaultChunkThreshold is the size at which uploads switch from a single
	// request to the chunked strategy.
	DefaultChunkThreshold = 25 * 1024 * 1024
	// DefaultChunkSize is the initial chunk size.
	DefaultChunkSize = 2 * 1024 * 1024
	// DefaultMinChunkSize floors adaptive chunk shrinking.
	DefaultMinChunkSize = 512 * 1024

	// DefaultMaxChunkRetries caps retries of a single chunk; a chunk is sent
	// at most DefaultMaxChunkRetries+1 times.
	DefaultMaxChunkRetries = 3
	// DefaultMaxSessionAttempts caps full upload attempts, the first one
	// included.
	DefaultMaxSessionAttempts = 3
)

const (
	envAPIBaseURL = "QALLIANCE_UPLOAD_API_URL"
	envCredential = "QALLIANCE_UPLOAD_TOKEN"
)

// Config is the client-level configuration of an Uploader. The zero value
// works for tests that inject their own API; production callers must set
// APIBaseURL and Credential, or define their environment fallbacks
// (QALLIANCE_UPLOAD_API_URL, QALLIANCE_UPLOAD_TOKEN).
type Config struct {
	APIBaseURL string
	Credential Secret

	// MaxFileSize is the client-side size limit. Default: 200 MB.
	MaxFileSize int64
	// ChunkThreshold is the size above which uploads go chunked. Default: 25 MB.
	ChunkThreshold int64
	// ChunkSize is the initial chunk size. Default: 2 MB.
	ChunkSize int64
	// MinChunkSize floors adaptive shrinking. Default: 512 KB.
	MinChunkSize int64

	// MaxChunkRetries caps retries of one chunk. Default: 3.
	MaxChunkRetries int
	// MaxSessionAttempts caps full upload attempts. Default: 3.
	MaxSessionAttempts int
	// DisableAutoRetry turns off session-level retries. Chunk-level retries
	// still apply.
	DisableAutoRetry bool

	// ChunkRetryBackoff is the unit of per-chunk backoff: the wait after the
	// n-th failure is 2^n times this. Default: 1s.
	ChunkRetryBackoff time.Duration
	// SessionRetryBackoff is the unit of session backoff, doubling the same
	// way. Default: 1s.
	SessionRetryBackoff time.Duration
	// OfflinePollInterval is how often a paused upload re-checks
	// connectivity. Default: 1s.
	OfflinePollInterval time.Duration

	// CompressRequests gzips JSON request bodies on the data plane.
	CompressRequests bool
}

type uploadConfig struct {
	apiBaseURL          string
	credential          Secret
	maxFileSize         int64
	chunkThreshold      int64
	chunkSize           int64
	minChunkSize        int64
	maxChunkRetries     int
	maxSessionAttempts  int
	autoRetry           bool
	chunkRetryBackoff   time.Duration
	sessionRetryBackoff time.Duration
	offlinePollInterval time.Duration
	compressRequests    bool
}

func (u *uploader) createConfig() (uploadConfig, error) {
	apiBaseURL := u.config.APIBaseURL
	if apiBaseURL == "" {
		apiBaseURL = u.envRepo.Get(envAPIBaseURL)
	}
	credential := u.config.Credential
	if credential == "" {
		credential = Secret(u.envRepo.Get(envCredential))
	}
	if u.api == nil {
		if apiBaseURL == "" {
			return uploadConfig{}, fmt.Errorf("API base URL is empty: set Config.APIBaseURL or the %s env var", envAPIBaseURL)
		}
		if credential == "" {
			return uploadConfig{}, fmt.Errorf("upload credential is empty: set Config.Credential or the %s env var", envCredential)
		}
	}

	maxFileSize := u.config.MaxFileSize
	if maxFileSize == 0 {
		maxFileSize = DefaultMaxFileSize
	}
	chunkThreshold := u.config.ChunkThreshold
	if chunkThreshold == 0 {
		chunkThreshold = DefaultChunkThreshold
	}
	chunkSize := u.config.ChunkSize
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	minChunkSize := u.config.MinChunkSize
	if minChunkSize == 0 {
		minChunkSize = DefaultMinChunkSize
	}

	if maxFileSize < 0 || chunkThreshold < 0 || chunkSize < 0 || minChunkSize < 0 {
		return uploadConfig{}, fmt.Errorf("size limits must not be negative")
	}
	if chunkSize < minChunkSize {
		return uploadConfig{}, fmt.Errorf("chunk size %s is below the minimum of %s",
			units.HumanSizeWithPrecision(float64(chunkSize), 3),
			units.HumanSizeWithPrecision(float64(minChunkSize), 3))
	}

	maxChunkRetries := u.config.MaxChunkRetries
	if maxChunkRetries == 0 {
		maxChunkRetries = DefaultMaxChunkRetries
	}
	maxSessionAttempts := u.config.MaxSessionAttempts
	if maxSessionAttempts == 0 {
		maxSessionAttempts = DefaultMaxSessionAttempts
	}
	if maxChunkRetries < 0 || maxSessionAttempts < 1 {
		return uploadConfig{}, fmt.Errorf("retry limits are out of range")
	}

	chunkRetryBackoff := u.config.ChunkRetryBackoff
	if chunkRetryBackoff <= 0 {
		chunkRetryBackoff = time.Second
	}
	sessionRetryBackoff := u.config.SessionRetryBackoff
	if sessionRetryBackoff <= 0 {
		sessionRetryBackoff = time.Second
	}
	offlinePollInterval := u.config.OfflinePollInterval
	if offlinePollInterval <= 0 {
		offlinePollInterval = time.Second
	}

	return uploadConfig{
		apiBaseURL:          apiBaseURL,
		credential:          credential,
		maxFileSize:         maxFileSize,
		chunkThreshold:      chunkThreshold,
		chunkSize:           chunkSize,
		minChunkSize:        minChunkSize,
		maxChunkRetries:     maxChunkRetries,
		maxSessionAttempts:  maxSessionAttempts,
		autoRetry:           !u.config.DisableAutoRetry,
		chunkRetryBackoff:   chunkRetryBackoff,
		sessionRetryBackoff: sessionRetryBackoff,
		offlinePollInterval: offlinePollInterval,
		compressRequests:    u.config.CompressRequests,
	}, nil
}
