// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestChunkQueue_CopiesData(t *testing.T) {
	q := newChunkQueue(4, zerolog.Nop())
	buf := []byte{0x01, 0x03}
	assert.True(t, q.push(buf))
	buf[0] = 0xFF

	assert.Equal(t, []byte{0x01, 0x03}, <-q.chunks())
}

func TestChunkQueue_DropsWhenFull(t *testing.T) {
	q := newChunkQueue(2, zerolog.Nop())
	assert.True(t, q.push([]byte{1}))
	assert.True(t, q.push([]byte{2}))
	assert.False(t, q.push([]byte{3}))
	assert.Equal(t, 1, q.Dropped())
}

func TestChunkQueue_CloseIsIdempotent(t *testing.T) {
	q := newChunkQueue(0, zerolog.Nop())
	assert.True(t, q.push([]byte{1}))
	q.close()
	q.close()
	assert.False(t, q.push([]byte{2}), "push after close")

	chunk, ok := <-q.chunks()
	assert.True(t, ok, "queued chunk survives close")
	assert.Equal(t, []byte{1}, chunk)
	_, ok = <-q.chunks()
	assert.False(t, ok)
}
