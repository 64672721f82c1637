package network

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/gzip"
)

// ErrSessionNotFound ...
var ErrSessionNotFound = errors.New("no upload session found for the provided ID")

// API is the remote surface of the media ingest service: the two submit calls
// of the data plane, plus session management on the control plane.
//
// Data-plane calls are intentionally NOT retried here. The upload loop owns
// retry policy (backoff, budget, reordering rules), so a submit maps to
// exactly one HTTP exchange.
type API interface {
	SubmitChunk(ctx context.Context, params ChunkSubmitParams) (ChunkSubmitResult, error)
	SubmitStandard(ctx context.Context, params StandardSubmitParams) (StandardSubmitResult, error)
	SessionStatus(ctx context.Context, sessionID string) (SessionStatus, error)
	AbortSession(ctx context.Context, sessionID string) error
}

// ChunkSubmitParams ...
type ChunkSubmitParams struct {
	SessionID   string
	ChunkIndex  int
	TotalChunks int
	// Data is the chunk body in standard base64.
	Data     string
	FileName string
	FileType string
}

// ChunkSubmitResult ...
type ChunkSubmitResult struct {
	// Complete reports that the service received the full set and assembled
	// the file. FilePath is only set when Complete is true.
	Complete       bool
	FilePath       string
	ReceivedChunks int
}

// StandardSubmitParams ...
type StandardSubmitParams struct {
	FileName string
	FileType string
	// FileContent is the whole file in standard base64.
	FileContent string
}

// StandardSubmitResult ...
type StandardSubmitResult struct {
	FilePath string
	Metadata *UploadMetadata
}

// UploadMetadata is the service's report on the processing it applied to a
// standard upload.
type UploadMetadata struct {
	OriginalSize   int64             `json:"originalSize"`
	ProcessedSize  int64             `json:"processedSize"`
	ProcessingTime int64             `json:"processingTime"`
	Dimensions     *Dimensions       `json:"dimensions,omitempty"`
	Variants       map[string]string `json:"variants,omitempty"`
	Warnings       []string          `json:"warnings,omitempty"`
}

// Dimensions ...
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// SessionStatus is a diagnostic snapshot of a chunked session on the server.
type SessionStatus struct {
	SessionID      string `json:"sessionId"`
	TotalChunks    int    `json:"totalChunks"`
	ReceivedChunks int    `json:"receivedChunks"`
	Complete       bool   `json:"complete"`
}

type chunkSubmitRequest struct {
	Credential  string `json:"credential"`
	ChunkID     string `json:"chunkId"`
	ChunkIndex  int    `json:"chunkIndex"`
	TotalChunks int    `json:"totalChunks"`
	Data        string `json:"data"`
	FileName    string `json:"fileName"`
	FileType    string `json:"fileType"`
	SessionID   string `json:"sessionId"`
}

type chunkSubmitResponse struct {
	Complete       bool   `json:"complete"`
	FilePath       string `json:"filePath"`
	ReceivedChunks int    `json:"receivedChunks"`
}

type standardSubmitRequest struct {
	Credential  string `json:"credential"`
	FileName    string `json:"fileName"`
	FileContent string `json:"fileContent"`
	FileType    string `json:"fileType"`
}

type standardSubmitResponse struct {
	FilePath string          `json:"filePath"`
	Metadata *UploadMetadata `json:"metadata"`
}

// Client implements API against an HTTP base URL.
type Client struct {
	dataClient    *http.Client
	controlClient *retryablehttp.Client
	baseURL       string
	credential    string
	compress      bool
	logger        log.Logger
}

// NewClient ...
func NewClient(cfg ClientConfig, logger log.Logger) *Client {
	dataClient := cfg.HTTPClient
	if dataClient == nil {
		dataClient = DefaultHTTPClient()
	}
	controlClient := cfg.ControlClient
	if controlClient == nil {
		controlClient = retryhttp.NewClient(logger)
	}

	return &Client{
		dataClient:    dataClient,
		controlClient: controlClient,
		baseURL:       cfg.BaseURL,
		credential:    cfg.Credential,
		compress:      cfg.CompressRequests,
		logger:        logger,
	}
}

// SubmitChunk sends one chunk of a session. The chunk ID is derived from the
// session ID and the index, so a retried chunk is idempotent on the server.
func (c Client) SubmitChunk(ctx context.Context, params ChunkSubmitParams) (ChunkSubmitResult, error) {
	url := fmt.Sprintf("%s/uploads/chunk", c.baseURL)

	requestBody := chunkSubmitRequest{
		Credential:  c.credential,
		ChunkID:     fmt.Sprintf("%s_%d", params.SessionID, params.ChunkIndex),
		ChunkIndex:  params.ChunkIndex,
		TotalChunks: params.TotalChunks,
		Data:        params.Data,
		FileName:    params.FileName,
		FileType:    params.FileType,
		SessionID:   params.SessionID,
	}

	var response chunkSubmitResponse
	if err := c.postJSON(ctx, url, requestBody, &response); err != nil {
		return ChunkSubmitResult{}, err
	}

	return ChunkSubmitResult{
		Complete:       response.Complete,
		FilePath:       response.FilePath,
		ReceivedChunks: response.ReceivedChunks,
	}, nil
}

// SubmitStandard sends a whole file in a single call.
func (c Client) SubmitStandard(ctx context.Context, params StandardSubmitParams) (StandardSubmitResult, error) {
	url := fmt.Sprintf("%s/uploads", c.baseURL)

	requestBody := standardSubmitRequest{
		Credential:  c.credential,
		FileName:    params.FileName,
		FileContent: params.FileContent,
		FileType:    params.FileType,
	}

	var response standardSubmitResponse
	if err := c.postJSON(ctx, url, requestBody, &response); err != nil {
		return StandardSubmitResult{}, err
	}

	return StandardSubmitResult{
		FilePath: response.FilePath,
		Metadata: response.Metadata,
	}, nil
}

// SessionStatus fetches the server-side view of a chunked session. If the
// session is unknown there, the error is ErrSessionNotFound.
func (c Client) SessionStatus(ctx context.Context, sessionID string) (SessionStatus, error) {
	url := fmt.Sprintf("%s/uploads/sessions/%s", c.baseURL, sessionID)

	req, err := retryablehttp.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return SessionStatus{}, err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.credential))

	resp, err := c.controlClient.Do(req)
	if err != nil {
		return SessionStatus{}, err
	}
	defer func(body io.ReadCloser) {
		err := body.Close()
		if err != nil {
			c.logger.Printf(err.Error())
		}
	}(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return SessionStatus{}, ErrSessionNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return SessionStatus{}, unwrapError(resp)
	}

	var status SessionStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return SessionStatus{}, err
	}

	return status, nil
}

// AbortSession tells the server to discard a session's received chunks. A
// session the server no longer knows counts as aborted.
func (c Client) AbortSession(ctx context.Context, sessionID string) error {
	url := fmt.Sprintf("%s/uploads/sessions/%s", c.baseURL, sessionID)

	req, err := retryablehttp.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.credential))

	resp, err := c.controlClient.Do(req)
	if err != nil {
		return err
	}
	defer func(body io.ReadCloser) {
		err := body.Close()
		if err != nil {
			c.logger.Printf(err.Error())
		}
	}(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return unwrapError(resp)
	}

	return nil
}

func (c Client) postJSON(ctx context.Context, url string, requestBody interface{}, response interface{}) error {
	body, err := json.Marshal(requestBody)
	if err != nil {
		return err
	}

	contentEncoding := ""
	if c.compress {
		compressed, err := compressBody(body)
		if err != nil {
			return err
		}
		c.logger.TDebugf("Compressed request body: %d -> %d bytes", len(body), len(compressed))
		body = compressed
		contentEncoding = "gzip"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if contentEncoding != "" {
		req.Header.Set("Content-Encoding", contentEncoding)
	}
	req.ContentLength = int64(len(body))

	resp, err := c.dataClient.Do(req)
	if err != nil {
		return err
	}
	defer func(body io.ReadCloser) {
		err := body.Close()
		if err != nil {
			c.logger.Printf(err.Error())
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return unwrapError(resp)
	}

	return json.NewDecoder(resp.Body).Decode(response)
}

func compressBody(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unwrapError(resp *http.Response) error {
	errorResp, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	message := strings.TrimSpace(string(errorResp))
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, message)
}
