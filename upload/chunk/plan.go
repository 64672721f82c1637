package chunk

import (
	"fmt"
)

// Span is a half-open [Start, End) byte range of the source file. Index is the
// zero-based position of the span in transmit order.
type Span struct {
	Index int
	Start int64
	End   int64
}

// Size returns the number of bytes the span covers.
func (s Span) Size() int64 {
	return s.End - s.Start
}

// Plan splits totalSize bytes into consecutive spans of at most chunkSize
// bytes each. Every span except the last is exactly chunkSize bytes; the last
// carries the remainder. A zero-byte file yields a single empty span so that
// even an empty upload transmits one chunk.
func Plan(totalSize, chunkSize int64) ([]Span, error) {
	if totalSize < 0 {
		return nil, fmt.Errorf("invalid total size: %d", totalSize)
	}
	if chunkSize <= 0 {
		return nil, fmt.Errorf("invalid chunk size: %d", chunkSize)
	}

	if totalSize == 0 {
		return []Span{{Index: 0, Start: 0, End: 0}}, nil
	}

	count := (totalSize + chunkSize - 1) / chunkSize
	spans := make([]Span, 0, count)
	for i := int64(0); i < count; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > totalSize {
			end = totalSize
		}
		spans = append(spans, Span{Index: int(i), Start: start, End: end})
	}

	return spans, nil
}
