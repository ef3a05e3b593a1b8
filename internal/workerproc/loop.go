// Package workerproc implements the child-side message loop: the
// read-dispatch-reply state machine that runs inside the slimlo-worker
// process, talking the wire protocol over stdin/stdout to its supervisor.
package workerproc

import (
	"io"
	"log/slog"

	"github.com/ocx/slimlo/internal/engine"
	"github.com/ocx/slimlo/internal/wire"
)

// stderrCaptureLimit caps how much engine stderr text a single conversion's
// diagnostics capture buffer will hold.
const stderrCaptureLimit = 256 * 1024

// Loop is the worker's read-dispatch-reply state machine. One Loop wraps
// exactly one engine instance for the process's lifetime.
type Loop struct {
	in     *wire.Reader
	out    *wire.Writer
	engine engine.Engine
	log    *slog.Logger

	initialized bool
}

// New constructs a Loop reading requests from in and writing responses to
// out, dispatching onto eng.
func New(in io.Reader, out io.Writer, eng engine.Engine, log *slog.Logger) *Loop {
	if log == nil {
		log = slog.Default()
	}
	return &Loop{
		in:     wire.NewReader(in),
		out:    wire.NewWriter(out),
		engine: eng,
		log:    log,
	}
}

// Run processes requests until EOS on stdin, an unrecoverable write error,
// or a quit request, then destroys the engine and returns. The returned
// error is nil on any of the three expected exit paths; a non-nil error
// indicates something Run could not itself recover from.
func (l *Loop) Run() error {
	defer l.engine.Destroy()

	for {
		payload, err := l.in.ReadFrame()
		if err != nil {
			l.log.Info("stdin closed, exiting")
			return nil
		}

		resp, exit := l.dispatch(payload)
		if resp != nil {
			data, encErr := wire.EncodeResponse(resp)
			if encErr != nil {
				l.log.Error("failed to encode response", "error", encErr)
				return encErr
			}
			if err := l.out.WriteFrame(data); err != nil {
				l.log.Error("failed to write response, exiting", "error", err)
				return nil
			}
		}
		if exit {
			return nil
		}
	}
}

func (l *Loop) dispatch(payload []byte) (*wire.Response, bool) {
	if len(payload) == 0 {
		return nil, false
	}

	req, err := wire.DecodeRequest(payload)
	if err != nil {
		return &wire.Response{Type: wire.TypeError, Message: "Invalid JSON"}, false
	}

	switch req.Type {
	case wire.TypeInit:
		return l.handleInit(req), false
	case wire.TypeConvert:
		if !l.initialized {
			return notInitialized(req.ID), false
		}
		return l.handleConvert(req), false
	case wire.TypeConvertBuffer:
		if !l.initialized {
			return notInitialized(req.ID), false
		}
		return l.handleConvertBuffer(req)
	case wire.TypeQuit:
		return nil, true
	default:
		l.log.Warn("dropping unknown request type", "type", req.Type)
		return nil, false
	}
}
