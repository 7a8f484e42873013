package buffers

import (
	"testing"

	"github.com/discloud/discloud/internal/constants"
)

func TestGetChunkBufferPooledSize(t *testing.T) {
	buf, backing := GetChunkBuffer(1024)
	if backing == nil {
		t.Fatal("Expected pooled backing for a small buffer")
	}
	if len(buf) != 1024 {
		t.Errorf("Expected 1024-byte slice, got %d", len(buf))
	}
	PutChunkBuffer(backing)
}

func TestGetChunkBufferOversized(t *testing.T) {
	size := int64(constants.DefaultChunkSize + 1)
	buf, backing := GetChunkBuffer(size)
	if backing != nil {
		t.Error("Oversized buffers must not come from the pool")
	}
	if int64(len(buf)) != size {
		t.Errorf("Expected %d-byte slice, got %d", size, len(buf))
	}
	// Returning a nil backing must be harmless
	PutChunkBuffer(backing)
}

func TestPutChunkBufferClears(t *testing.T) {
	buf, backing := GetChunkBuffer(16)
	for i := range buf {
		buf[i] = 0xFF
	}
	PutChunkBuffer(backing)

	if backing != nil {
		for i := 0; i < 16; i++ {
			if (*backing)[i] != 0 {
				t.Fatal("Buffer was not cleared before returning to the pool")
			}
		}
	}
}
