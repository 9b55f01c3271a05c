// Package goid resolves the identity of the calling goroutine.
//
// Goroutines are the unit of execution the profiler attributes scopes to, in
// the same way native profilers attribute scopes to OS threads.
package goid

import (
	"bytes"
	"runtime"
	"strconv"
)

const prefix = "goroutine "

// Get returns the id of the calling goroutine, or 0 if it cannot be parsed.
// Ids are never reused by the runtime while the process lives.
func Get() uint64 {
	var arr [64]byte
	buf := arr[:runtime.Stack(arr[:], false)]

	// Stack format: "goroutine 123 [running]:\n..."
	if !bytes.HasPrefix(buf, []byte(prefix)) {
		return 0
	}
	buf = buf[len(prefix):]
	end := bytes.IndexByte(buf, ' ')
	if end < 0 {
		return 0
	}

	id, err := strconv.ParseUint(string(buf[:end]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
