package bincodec

import (
	"bytes"
	"sync"
)

// bytesBufPool reuses buffers for draining io.Readers in ReadFrom.
var bytesBufPool = sync.Pool{
	New: func() any {
		// A 4KB default is chosen to avoid re-allocations for common payload sizes.
		return bytes.NewBuffer(make([]byte, 0, 4096))
	},
}

// bufferPool hands out growable output buffers sized by the registry config.
type bufferPool struct {
	pool    sync.Pool
	maxSize int
}

func (p *bufferPool) init(cfg *Config) {
	initial := cfg.InitialBufferSize
	p.maxSize = cfg.MaxPooledBufferSize
	p.pool.New = func() any {
		poolAllocate.Inc()
		return NewBuffer(initial)
	}
}

// AcquireBuffer returns an empty buffer from the pool of r.
func (r *Registry) AcquireBuffer() *Buffer {
	poolAcquire.Inc()
	return r.pool.pool.Get().(*Buffer)
}

// ReleaseBuffer zeroes b and returns it to the pool of r. Buffers that grew
// beyond MaxPooledBufferSize are dropped. b must not be used afterwards.
func (r *Registry) ReleaseBuffer(b *Buffer) {
	if b == nil {
		return
	}
	if b.Cap() > r.pool.maxSize {
		poolDrop.Inc()
		return
	}
	b.Reset()
	poolRelease.Inc()
	r.pool.pool.Put(b)
}

// AcquireBuffer returns an empty buffer from the pool of the Default registry.
func AcquireBuffer() *Buffer { return Default.AcquireBuffer() }

// ReleaseBuffer returns b to the pool of the Default registry.
func ReleaseBuffer(b *Buffer) { Default.ReleaseBuffer(b) }
