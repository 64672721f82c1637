package upload

import (
	"github.com/google/uuid"

	"github.com/polarbaker/codapt-QAlliance-v5-sub003/upload/chunk"
)

type chunkState int

const (
	chunkPending chunkState = iota
	chunkUploading
	chunkUploaded
	chunkFailed
)

// chunkRecord tracks one chunk's journey through the transmit loop.
type chunkRecord struct {
	span       chunk.Span
	state      chunkState
	retryCount int
}

// session is the client-side state of one chunked upload attempt. A session
// is never resumed or reused: every attempt, including restarts after a
// chunk-size change, gets a fresh ID and a clean chunk set, and the server
// keys received chunks by that ID.
type session struct {
	id       string
	fileName string
	fileType string
	chunks   []chunkRecord
}

func newSession(fileName, fileType string, provider chunk.Provider) *session {
	records := make([]chunkRecord, provider.NumChunks())
	for i := range records {
		records[i] = chunkRecord{span: provider.Span(i)}
	}

	return &session{
		id:       uuid.New().String(),
		fileName: fileName,
		fileType: fileType,
		chunks:   records,
	}
}

func (s *session) uploadedCount() int {
	n := 0
	for _, c := range s.chunks {
		if c.state == chunkUploaded {
			n++
		}
	}
	return n
}

func (s *session) failedCount() int {
	n := 0
	for _, c := range s.chunks {
		if c.state == chunkFailed {
			n++
		}
	}
	return n
}
