// Package goroutineid reports the id of the calling goroutine.
//
// The event loop records its goroutine id once at startup; callers compare
// against it to decide whether they may touch the VM directly or must post
// to the loop.
package goroutineid

import (
	"bytes"
	"runtime"
	"sync"
)

var stackBufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 64)
		return &b
	},
}

var stackPrefix = []byte("goroutine ")

// Get returns the current goroutine id, or 0 if it cannot be determined.
func Get() int64 {
	bp := stackBufPool.Get().(*[]byte)
	defer stackBufPool.Put(bp)
	// Only the header line is needed; a short buffer truncates the rest.
	n := runtime.Stack(*bp, false)
	return parse((*bp)[:n])
}

// parse reads the id from a "goroutine N [state]:" header without
// allocating.
func parse(stack []byte) int64 {
	i := bytes.Index(stack, stackPrefix)
	if i < 0 {
		return 0
	}
	var id int64
	for _, c := range stack[i+len(stackPrefix):] {
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + int64(c-'0')
	}
	return id
}
