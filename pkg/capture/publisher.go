package capture

import "sync"

// EncodedFrame is an immutable published JPEG.
type EncodedFrame struct {
	Data   []byte
	Width  int
	Height int
	Seq    uint64
}

// Publisher holds the most recent encoded frame.
// Frames are swapped whole; readers never observe a partial write.
type Publisher struct {
	mu  sync.RWMutex
	cur *EncodedFrame
	seq uint64
}

// Publish replaces the current frame and returns it with its sequence number.
// The publisher takes ownership of data.
func (p *Publisher) Publish(data []byte, width, height int) EncodedFrame {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	p.cur = &EncodedFrame{Data: data, Width: width, Height: height, Seq: p.seq}
	return *p.cur
}

// Current returns the latest frame, if any.
// The returned Data must not be modified.
func (p *Publisher) Current() (EncodedFrame, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.cur == nil {
		return EncodedFrame{}, false
	}
	return *p.cur, true
}

// Clear drops the current frame. The sequence keeps counting.
func (p *Publisher) Clear() {
	p.mu.Lock()
	p.cur = nil
	p.mu.Unlock()
}

// Seq returns the sequence number of the last published frame.
func (p *Publisher) Seq() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.seq
}
