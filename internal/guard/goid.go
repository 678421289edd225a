package guard

import "runtime"

// goroutineID extracts the current goroutine's ID by parsing runtime.Stack
// output. The first line has the form "goroutine 123 [running]:".
//
// This is the portable way to key goroutine-scoped state without runtime
// internals. It costs roughly a microsecond per call, which disappears next
// to the file creation the allocation path performs anyway.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	return parseGID(buf[:n])
}

// parseGID extracts the numeric ID from stack trace bytes without string
// conversion or regex. Returns 0 if parsing fails.
func parseGID(b []byte) int64 {
	const prefix = "goroutine "
	if len(b) <= len(prefix) {
		return 0
	}
	b = b[len(prefix):]

	var id int64
	for _, c := range b {
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + int64(c-'0')
	}
	return id
}
