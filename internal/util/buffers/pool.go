// Package buffers provides reusable byte buffers for the upload read loop,
// reducing GC pressure when many chunks stream through one process.
package buffers

import (
	"sync"

	"github.com/discloud/discloud/internal/constants"
)

// chunkPool holds buffers of the default chunk size. Uploads with a custom
// chunk size at or below the default slice into a pooled buffer; larger
// sizes fall back to a one-off allocation.
var chunkPool = &sync.Pool{
	New: func() interface{} {
		buf := make([]byte, constants.DefaultChunkSize)
		return &buf
	},
}

// GetChunkBuffer returns a buffer of exactly size bytes plus its pooled
// backing array. Return the backing to the pool with PutChunkBuffer.
//
// Usage:
//
//	buf, backing := buffers.GetChunkBuffer(chunkSize)
//	defer buffers.PutChunkBuffer(backing)
//	n, err := io.ReadFull(src, buf)
func GetChunkBuffer(size int64) ([]byte, *[]byte) {
	if size > constants.DefaultChunkSize {
		buf := make([]byte, size)
		return buf, nil
	}
	backing := chunkPool.Get().(*[]byte)
	return (*backing)[:size], backing
}

// PutChunkBuffer returns a pooled backing buffer. It is cleared first so
// plaintext never lingers across uses. Nil backing (an oversized one-off
// buffer) is a no-op.
func PutChunkBuffer(backing *[]byte) {
	if backing == nil || len(*backing) != constants.DefaultChunkSize {
		return
	}
	clear(*backing)
	chunkPool.Put(backing)
}
