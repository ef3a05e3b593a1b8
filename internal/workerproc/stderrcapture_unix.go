//go:build unix

package workerproc

import (
	"os"
	"syscall"
)

// captureStderr redirects the process's fd 2 to an internal pipe for the
// duration of fn, returning fn's result and the text written to stderr
// while it ran, capped at limit bytes (a trailing marker is appended if
// truncated). The consuming goroutine drains the pipe concurrently with fn
// running, so a chatty engine can't block on a full pipe buffer.
func captureStderr(limit int, fn func() bool) (bool, string) {
	r, w, err := os.Pipe()
	if err != nil {
		return fn(), ""
	}

	origFd, dupErr := syscall.Dup(2)
	if dupErr != nil {
		r.Close()
		w.Close()
		return fn(), ""
	}
	if err := syscall.Dup2(int(w.Fd()), 2); err != nil {
		w.Close()
		r.Close()
		syscall.Close(origFd)
		return fn(), ""
	}

	captured := make(chan string, 1)
	go func() {
		captured <- drain(r, limit)
	}()

	result := fn()

	w.Close()
	syscall.Dup2(origFd, 2)
	syscall.Close(origFd)

	text := <-captured
	r.Close()
	return result, text
}

func drain(r *os.File, limit int) string {
	buf := make([]byte, 0, limit)
	chunk := make([]byte, 4096)
	truncated := false
	for {
		n, err := r.Read(chunk)
		if n > 0 && !truncated {
			remaining := limit - len(buf)
			if n > remaining {
				buf = append(buf, chunk[:remaining]...)
				buf = append(buf, []byte("\n...[truncated]")...)
				truncated = true
			} else {
				buf = append(buf, chunk[:n]...)
			}
		}
		if err != nil {
			return string(buf)
		}
	}
}
