package chunk

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/polarbaker/codapt-QAlliance-v5-sub003/internal"
)

// Provider hands out the transmit payloads of a planned upload. Payloads are
// produced on demand so a retried chunk is re-read from the source instead of
// pinned in memory for the whole upload.
type Provider interface {
	NumChunks() int
	Span(index int) Span
	// Payload returns the chunk body encoded for transport (standard base64).
	Payload(index int) (string, error)
	Close() error
}

// FileProvider reads chunk payloads straight from a file on disk. A mutex
// guards the shared file handle so a retry re-reading a chunk cannot
// interleave seeks with any other reader.
type FileProvider struct {
	file  *os.File
	size  int64
	spans []Span
	mu    sync.Mutex
}

// NewFileProvider opens path and plans its content into chunks of at most
// chunkSize bytes. The caller owns the returned provider and must Close it.
func NewFileProvider(osProxy internal.OsProxy, path string, chunkSize int64) (*FileProvider, error) {
	info, err := osProxy.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}

	spans, err := Plan(info.Size(), chunkSize)
	if err != nil {
		return nil, fmt.Errorf("plan chunks: %w", err)
	}

	file, err := osProxy.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	return &FileProvider{
		file:  file,
		size:  info.Size(),
		spans: spans,
	}, nil
}

// NumChunks returns the total number of planned chunks.
func (p *FileProvider) NumChunks() int {
	return len(p.spans)
}

// Span returns the byte range of the chunk at the given index.
func (p *FileProvider) Span(index int) Span {
	return p.spans[index]
}

// TotalSize returns the size of the underlying file at planning time.
func (p *FileProvider) TotalSize() int64 {
	return p.size
}

// Payload reads and encodes the chunk at the given index. Each call re-reads
// the file, so a payload can be regenerated for every retry.
func (p *FileProvider) Payload(index int) (string, error) {
	if index < 0 || index >= len(p.spans) {
		return "", fmt.Errorf("chunk index %d out of range [0, %d)", index, len(p.spans))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	span := p.spans[index]
	if span.Size() == 0 {
		return "", nil
	}

	if _, err := p.file.Seek(span.Start, io.SeekStart); err != nil {
		return "", fmt.Errorf("seek to position %d for chunk %d: %w", span.Start, index+1, err)
	}

	buf := make([]byte, span.Size())
	if _, err := io.ReadFull(p.file, buf); err != nil {
		// Planned against a stat that no longer matches the file, most likely
		// because the file was modified mid-upload.
		return "", fmt.Errorf("read chunk %d: %w", index+1, err)
	}

	return base64.StdEncoding.EncodeToString(buf), nil
}

// Close closes the underlying file.
func (p *FileProvider) Close() error {
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}

// BytesProvider plans and serves chunks from an in-memory buffer. Useful when
// the content was produced rather than read from disk.
type BytesProvider struct {
	data  []byte
	spans []Span
}

// NewBytesProvider plans data into chunks of at most chunkSize bytes.
func NewBytesProvider(data []byte, chunkSize int64) (*BytesProvider, error) {
	spans, err := Plan(int64(len(data)), chunkSize)
	if err != nil {
		return nil, fmt.Errorf("plan chunks: %w", err)
	}

	return &BytesProvider{data: data, spans: spans}, nil
}

// NumChunks returns the total number of planned chunks.
func (p *BytesProvider) NumChunks() int {
	return len(p.spans)
}

// Span returns the byte range of the chunk at the given index.
func (p *BytesProvider) Span(index int) Span {
	return p.spans[index]
}

// Payload returns the encoded chunk at the given index.
func (p *BytesProvider) Payload(index int) (string, error) {
	if index < 0 || index >= len(p.spans) {
		return "", fmt.Errorf("chunk index %d out of range [0, %d)", index, len(p.spans))
	}

	span := p.spans[index]
	return base64.StdEncoding.EncodeToString(p.data[span.Start:span.End]), nil
}

// Close is a no-op; the buffer has nothing to release.
func (p *BytesProvider) Close() error {
	return nil
}
