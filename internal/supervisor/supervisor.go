// Package supervisor manages one worker child process: spawning it with the
// environment discipline the embedded engine needs, performing the init
// handshake, running conversions against it under a timeout, and tearing it
// down (gracefully or by force). pkg/slimlo's Pool owns one Supervisor per
// slot and serializes all access to it under the slot's mutex.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ocx/slimlo/internal/convresult"
	"github.com/ocx/slimlo/internal/errcode"
	"github.com/ocx/slimlo/internal/wire"
)

// Config configures a Supervisor's child and timeouts.
type Config struct {
	WorkerPath        string
	EngineDir         string
	ResourcePath      string
	FontDirs          []string
	StartTimeout      time.Duration
	ConversionTimeout time.Duration
	DisposeGrace      time.Duration
	Logger            *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.StartTimeout <= 0 {
		c.StartTimeout = 30 * time.Second
	}
	if c.ConversionTimeout <= 0 {
		c.ConversionTimeout = 120 * time.Second
	}
	if c.DisposeGrace <= 0 {
		c.DisposeGrace = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Supervisor wraps one worker subprocess for its whole lifetime: one Start,
// any number of Convert/ConvertBuffer calls, one Dispose. It is not safe for
// concurrent conversions; the caller (pkg/slimlo.Pool) is responsible for
// serializing access to a given Supervisor.
type Supervisor struct {
	cfg   Config
	spawn spawnFunc

	proc    process
	writer  *wire.Writer
	reader  *wire.Reader
	stdin   io.WriteCloser
	stderr  *stderrGobbler
	profile string

	nextID int64

	initialized     bool
	version         string
	conversionCount int

	waitDone chan struct{}
	exitMu   sync.Mutex
	exited   bool
	exitErr  error
	exitCode int

	disposeOnce sync.Once
}

// New constructs a Supervisor that has not yet been started.
func New(cfg Config) *Supervisor {
	return &Supervisor{cfg: cfg.withDefaults(), spawn: realSpawn}
}

// Start spawns the child, performs the init handshake, and returns once the
// worker has replied ready or the attempt has definitively failed. ctx only
// bounds the handshake; once Start returns successfully the child's
// lifetime is governed by Dispose and crash detection, not ctx.
func (s *Supervisor) Start(ctx context.Context) error {
	profile, err := os.MkdirTemp("", "slimlo-profile-*")
	if err != nil {
		return fmt.Errorf("supervisor: creating profile dir: %w", err)
	}
	s.profile = profile

	proc, stdin, stdout, stderr, err := s.spawn(s.cfg, buildHints(profile, s.cfg.FontDirs))
	if err != nil {
		os.RemoveAll(profile)
		return fmt.Errorf("supervisor: spawning worker: %w", err)
	}
	s.proc = proc
	s.stdin = stdin
	s.writer = wire.NewWriter(stdin)
	s.reader = wire.NewReader(stdout)
	s.stderr = newStderrGobbler(stderr)

	s.waitDone = make(chan struct{})
	go s.reap()

	req := &wire.Request{Type: wire.TypeInit, ResourcePath: s.cfg.ResourcePath, FontPaths: s.cfg.FontDirs}
	data, err := wire.EncodeRequest(req)
	if err != nil {
		s.kill()
		return fmt.Errorf("supervisor: encoding init request: %w", err)
	}
	if err := s.writer.WriteFrame(data); err != nil {
		s.kill()
		return fmt.Errorf("supervisor: writing init request: %w", err)
	}

	payload, outcome := s.readFrameDeadline(ctx, s.cfg.StartTimeout)
	switch outcome {
	case outcomeOK:
		resp, err := wire.DecodeResponse(payload)
		if err != nil {
			s.kill()
			return fmt.Errorf("supervisor: decoding init response: %w", err)
		}
		switch resp.Type {
		case wire.TypeReady:
			s.version = resp.Version
			s.initialized = true
			return nil
		case wire.TypeError:
			s.kill()
			return s.initFailure(resp.Message)
		default:
			s.kill()
			return fmt.Errorf("supervisor: unexpected response type %q to init", resp.Type)
		}
	case outcomeEOS:
		code := s.waitExitCode()
		stderr := s.stderr.Snapshot()
		s.kill()
		return fmt.Errorf("supervisor: worker exited during init (code %d): %s", code, stderr)
	case outcomeTimeout:
		s.kill()
		return fmt.Errorf("supervisor: worker did not respond to init within %s", s.cfg.StartTimeout)
	default: // outcomeCancelled
		s.kill()
		return ctx.Err()
	}
}

// initFailure builds the structured initialization error, adding an
// enumerated package hint when the child's stderr suggests a missing
// shared library.
func (s *Supervisor) initFailure(engineMessage string) error {
	stderr := s.stderr.Snapshot()
	if containsMissingLibraryPhrase(stderr) {
		return fmt.Errorf("supervisor: init failed: %s (hint: install %s)", engineMessage, missingLibraryPackageHint)
	}
	return fmt.Errorf("supervisor: init failed: %s", engineMessage)
}

// IsAlive reports whether the child process has not yet exited.
func (s *Supervisor) IsAlive() bool {
	if s.waitDone == nil {
		return false
	}
	select {
	case <-s.waitDone:
		return false
	default:
		return true
	}
}

// Initialized reports whether the init handshake has completed successfully
// and no subsequent crash has cleared it.
func (s *Supervisor) Initialized() bool { return s.initialized }

// EngineVersion returns the version string reported by the worker's ready
// response, or "" if Start has not succeeded.
func (s *Supervisor) EngineVersion() string { return s.version }

// ConversionCount returns how many convert/convert_buffer requests this
// Supervisor's child has completed a round trip for (success or failure).
func (s *Supervisor) ConversionCount() int { return s.conversionCount }

// Dispose shuts the child down: a graceful quit frame with a grace period,
// then a forceful kill if it hasn't exited by then. Idempotent and
// best-effort; errors are ignored, never returned.
func (s *Supervisor) Dispose(ctx context.Context) {
	s.disposeOnce.Do(func() {
		if s.proc == nil {
			return
		}
		if s.IsAlive() {
			if req, err := wire.EncodeRequest(&wire.Request{Type: wire.TypeQuit}); err == nil {
				_ = s.writer.WriteFrame(req)
			}
			select {
			case <-s.waitDone:
			case <-time.After(s.cfg.DisposeGrace):
				s.kill()
				<-s.waitDone
			}
		}
		if s.stdin != nil {
			_ = s.stdin.Close()
		}
		if s.profile != "" {
			_ = os.RemoveAll(s.profile)
		}
	})
}

// kill force-kills the child and waits for the reaper to observe its exit,
// so IsAlive reports false once kill returns.
func (s *Supervisor) kill() {
	if s.proc != nil {
		_ = s.proc.Kill()
		if s.waitDone != nil {
			<-s.waitDone
		}
	}
}

func (s *Supervisor) markCrashed() {
	s.initialized = false
}

func (s *Supervisor) reap() {
	err := s.proc.Wait()
	s.exitMu.Lock()
	s.exited = true
	s.exitErr = err
	s.exitCode = s.proc.ExitCode()
	s.exitMu.Unlock()
	close(s.waitDone)
}

func (s *Supervisor) waitExitCode() int {
	s.exitMu.Lock()
	defer s.exitMu.Unlock()
	if !s.exited {
		return -1
	}
	return s.exitCode
}

func (s *Supervisor) nextRequestID() int64 {
	return atomic.AddInt64(&s.nextID, 1)
}

// crashResult builds a Result for a child that died mid-conversion.
func crashResult(code errcode.Code, message string) *convresult.Result {
	return &convresult.Result{Success: false, ErrorCode: code, ErrorMessage: message}
}

func workerDirOf(workerPath string) string {
	return filepath.Dir(workerPath)
}
