package buffer

import "sync/atomic"

// Buffer is a sealed, reference-counted byte region produced by exactly one
// task and shared by value (the pointer) with every dependent that reads it.
// Once constructed a Buffer is immutable: producers write their bytes before
// calling New, never after.
type Buffer struct {
	tag  Tag
	data []byte
	refs int32
}

// New seals data under tag, validating that its length is a whole multiple
// of the tag's element width. The returned Buffer is safe for concurrent
// reads from any number of goroutines.
func New(tag Tag, data []byte) (*Buffer, error) {
	if err := ValidateLength(tag, len(data)); err != nil {
		return nil, err
	}
	return &Buffer{tag: tag, data: data, refs: 1}, nil
}

// Tag reports the element kind backing this buffer's bytes.
func (b *Buffer) Tag() Tag {
	return b.tag
}

// Len returns the number of bytes in the buffer.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Bytes exposes the underlying byte slice. Callers must treat it as
// read-only; a Buffer's contract is write-once, multi-reader.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Retain increments the buffer's reference count and returns the buffer,
// so a new holder can chain it at the point of capture.
func (b *Buffer) Retain() *Buffer {
	atomic.AddInt32(&b.refs, 1)
	return b
}

// Release decrements the reference count. It returns true when the count
// reaches zero, signaling the last holder has let go; Buffer itself holds
// no finalizable resources beyond the Go-managed byte slice, so callers are
// not required to act on the return value.
func (b *Buffer) Release() bool {
	return atomic.AddInt32(&b.refs, -1) == 0
}

// RefCount returns the current reference count, chiefly for tests.
func (b *Buffer) RefCount() int32 {
	return atomic.LoadInt32(&b.refs)
}
