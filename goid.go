package amux

import (
	"bytes"
	"runtime"
	"strconv"
)

var goroutinePrefix = []byte("goroutine ")

// goid returns the id of the calling goroutine, parsed from the
// runtime.Stack header ("goroutine N [running]:"). It is used only on
// slow paths: drainer identity bookkeeping and nesting detection.
func goid() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)

	b := bytes.TrimPrefix(buf[:n], goroutinePrefix)
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}

	id, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		panic("amux: malformed goroutine stack header: " + string(buf[:n]))
	}
	return id
}
