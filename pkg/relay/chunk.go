package relay

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the length of the chunk header:
// frame sequence (uint32), chunk index (uint16), chunk count (uint16), big endian.
const HeaderSize = 8

// DefaultChunkSize keeps each data channel message under the 16 KiB limit
// browsers interoperate with.
const DefaultChunkSize = 16 * 1024

// ErrBadChunk is returned for malformed chunk messages.
var ErrBadChunk = errors.New("relay: malformed chunk")

// Chunk splits data into messages of at most size bytes including the header.
func Chunk(seq uint64, data []byte, size int) ([][]byte, error) {
	if size <= HeaderSize {
		return nil, fmt.Errorf("relay: chunk size %d too small", size)
	}
	payload := size - HeaderSize
	count := (len(data) + payload - 1) / payload
	if count == 0 {
		count = 1
	}
	if count > 0xFFFF {
		return nil, fmt.Errorf("relay: frame of %d bytes needs %d chunks", len(data), count)
	}

	chunks := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		start := i * payload
		end := min(start+payload, len(data))
		msg := make([]byte, HeaderSize+end-start)
		binary.BigEndian.PutUint32(msg[0:4], uint32(seq))
		binary.BigEndian.PutUint16(msg[4:6], uint16(i))
		binary.BigEndian.PutUint16(msg[6:8], uint16(count))
		copy(msg[HeaderSize:], data[start:end])
		chunks = append(chunks, msg)
	}
	return chunks, nil
}

// Reassembler rebuilds frames from chunk messages. A chunk from a newer
// frame discards any partial older frame.
type Reassembler struct {
	seq   uint32
	count int
	parts [][]byte
	have  int
	valid bool
}

// Add consumes one message and returns the frame once all chunks arrived.
func (r *Reassembler) Add(msg []byte) ([]byte, bool, error) {
	if len(msg) < HeaderSize {
		return nil, false, ErrBadChunk
	}
	seq := binary.BigEndian.Uint32(msg[0:4])
	idx := int(binary.BigEndian.Uint16(msg[4:6]))
	count := int(binary.BigEndian.Uint16(msg[6:8]))
	if count == 0 || idx >= count {
		return nil, false, ErrBadChunk
	}

	if !r.valid || seq != r.seq || count != r.count {
		r.seq = seq
		r.count = count
		r.parts = make([][]byte, count)
		r.have = 0
		r.valid = true
	}
	if r.parts[idx] == nil {
		r.parts[idx] = append([]byte(nil), msg[HeaderSize:]...)
		r.have++
	}
	if r.have < r.count {
		return nil, false, nil
	}

	var n int
	for _, p := range r.parts {
		n += len(p)
	}
	frame := make([]byte, 0, n)
	for _, p := range r.parts {
		frame = append(frame, p...)
	}
	r.valid = false
	return frame, true, nil
}
