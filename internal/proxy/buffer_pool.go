// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package proxy

import "sync"

const bufferSize = 32 * 1024

// BufferPool implements httputil.BufferPool with fixed size buffers
type BufferPool struct {
	pool sync.Pool
}

func NewBufferPool() *BufferPool {
	return &BufferPool{
		pool: sync.Pool{
			New: func() any {
				b := make([]byte, bufferSize)
				return &b
			},
		},
	}
}

func (p *BufferPool) Get() []byte {
	return *(p.pool.Get().(*[]byte))
}

// Put returns buf to the pool. Buffers of another size are dropped.
func (p *BufferPool) Put(buf []byte) {
	if cap(buf) != bufferSize {
		return
	}
	buf = buf[:bufferSize]
	p.pool.Put(&buf)
}
