package slimlo

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ocx/slimlo/internal/engine/enginetest"
	"github.com/ocx/slimlo/internal/supervisor"
	"github.com/ocx/slimlo/internal/workerproc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProcess runs workerproc.Loop in-process over pipes, standing in for
// a real subprocess so these tests don't need a built worker binary.
type fakeProcess struct {
	done chan struct{}
	err  error

	mu      sync.Mutex
	closers []io.Closer
}

func (p *fakeProcess) Wait() error { <-p.done; return p.err }

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	closers := append([]io.Closer(nil), p.closers...)
	p.mu.Unlock()
	for _, c := range closers {
		_ = c.Close()
	}
	return nil
}

func (p *fakeProcess) ExitCode() int {
	if p.err != nil {
		return 1
	}
	return 0
}

// newFakeSpawn returns a supervisor.SpawnFunc wiring straight to an
// in-process workerproc.Loop, with a fresh enginetest.Fake per call so
// each spawned "child" behaves independently.
func newFakeSpawn(newEngine func() *enginetest.Fake) supervisor.SpawnFunc {
	return func(cfg supervisor.Config, hints map[string]string) (supervisor.Process, io.WriteCloser, io.Reader, io.Reader, error) {
		hostToWorkerR, hostToWorkerW := io.Pipe()
		workerToHostR, workerToHostW := io.Pipe()
		stderrR, stderrW := io.Pipe()

		proc := &fakeProcess{
			done:    make(chan struct{}),
			closers: []io.Closer{hostToWorkerW, hostToWorkerR, workerToHostW, workerToHostR, stderrW, stderrR},
		}

		loop := workerproc.New(hostToWorkerR, workerToHostW, newEngine(), nil)
		go func() {
			proc.err = loop.Run()
			_ = workerToHostW.Close()
			close(proc.done)
		}()

		return proc, hostToWorkerW, workerToHostR, stderrR, nil
	}
}

// newTestPool builds a Pool backed entirely by in-process fake workers.
func newTestPool(t *testing.T, cfg PoolConfig, newEngine func() *enginetest.Fake) *Pool {
	t.Helper()
	dir := t.TempDir()
	workerPath := filepath.Join(dir, "fake-worker")
	require.NoError(t, os.WriteFile(workerPath, []byte("#!/bin/sh\n"), 0o755))

	cfg.WorkerPath = workerPath
	cfg.StartTimeout = time.Second
	cfg.ConversionTimeout = time.Second
	cfg.DisposeGrace = 50 * time.Millisecond

	pool, err := NewPool(cfg)
	require.NoError(t, err)

	spawn := newFakeSpawn(newEngine)
	pool.newSupervisor = func(supCfg supervisor.Config) *supervisor.Supervisor {
		return supervisor.NewWithSpawn(supCfg, spawn)
	}
	return pool
}

func TestExecuteSucceeds(t *testing.T) {
	pool := newTestPool(t, PoolConfig{MaxWorkers: 2}, enginetest.New)
	defer pool.Dispose(context.Background())

	dir := t.TempDir()
	input := filepath.Join(dir, "in.docx")
	output := filepath.Join(dir, "out.pdf")
	require.NoError(t, os.WriteFile(input, []byte("fake"), 0o644))

	result, err := pool.Execute(context.Background(), input, output, FormatDOCX, nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.FileExists(t, output)
}

func TestRoundRobinSpreadsAcrossWorkers(t *testing.T) {
	const workers = 3
	const requests = 9

	var mu sync.Mutex
	counts := map[*enginetest.Fake]int{}
	newEngine := func() *enginetest.Fake {
		f := enginetest.New()
		mu.Lock()
		counts[f] = 0
		mu.Unlock()
		return f
	}

	pool := newTestPool(t, PoolConfig{MaxWorkers: workers}, newEngine)
	defer pool.Dispose(context.Background())
	require.NoError(t, pool.WarmUp(context.Background()))

	dir := t.TempDir()
	input := filepath.Join(dir, "in.docx")
	require.NoError(t, os.WriteFile(input, []byte("fake"), 0o644))

	for i := 0; i < requests; i++ {
		output := filepath.Join(dir, "out.pdf")
		result, err := pool.Execute(context.Background(), input, output, FormatDOCX, nil)
		require.NoError(t, err)
		require.True(t, result.Success)
	}

	stats := pool.Stats()
	assert.Equal(t, workers, stats.Workers)
	assert.Equal(t, requests, stats.TotalConversions)
	// Each of the N slots should have taken its fair ceil(M/N) share.
	for _, slot := range pool.slots {
		slot.mu.Lock()
		if slot.sup != nil {
			assert.LessOrEqual(t, slot.sup.ConversionCount(), (requests+workers-1)/workers)
		}
		slot.mu.Unlock()
	}
}

func TestRecycleAfterKRestartsWorker(t *testing.T) {
	pool := newTestPool(t, PoolConfig{MaxWorkers: 1, RecycleAfter: 2}, enginetest.New)
	defer pool.Dispose(context.Background())

	dir := t.TempDir()
	input := filepath.Join(dir, "in.docx")
	require.NoError(t, os.WriteFile(input, []byte("fake"), 0o644))

	for i := 0; i < 2; i++ {
		result, err := pool.Execute(context.Background(), input, filepath.Join(dir, "out.pdf"), FormatDOCX, nil)
		require.NoError(t, err)
		require.True(t, result.Success)
	}

	pool.slots[0].mu.Lock()
	recycled := pool.slots[0].sup == nil
	pool.slots[0].mu.Unlock()
	assert.True(t, recycled, "worker should have been torn down after hitting RecycleAfter")

	// The next conversion transparently spins up a fresh child.
	result, err := pool.Execute(context.Background(), input, filepath.Join(dir, "out.pdf"), FormatDOCX, nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestCrashedWorkerIsReplacedOnNextExecute(t *testing.T) {
	pool := newTestPool(t, PoolConfig{MaxWorkers: 1}, enginetest.New)
	defer pool.Dispose(context.Background())

	dir := t.TempDir()
	input := filepath.Join(dir, "in.docx")
	require.NoError(t, os.WriteFile(input, []byte("fake"), 0o644))
	require.NoError(t, pool.WarmUp(context.Background()))

	pool.slots[0].mu.Lock()
	pool.slots[0].sup.Dispose(context.Background()) // simulate an external crash/kill
	pool.slots[0].mu.Unlock()

	result, err := pool.Execute(context.Background(), input, filepath.Join(dir, "out.pdf"), FormatDOCX, nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestDisposeStopsAllWorkers(t *testing.T) {
	pool := newTestPool(t, PoolConfig{MaxWorkers: 2}, enginetest.New)
	require.NoError(t, pool.WarmUp(context.Background()))

	pool.Dispose(context.Background())
	pool.Dispose(context.Background()) // idempotent

	for _, slot := range pool.slots {
		slot.mu.Lock()
		assert.Nil(t, slot.sup)
		slot.mu.Unlock()
	}
}

func TestExecuteAfterDisposePanics(t *testing.T) {
	pool := newTestPool(t, PoolConfig{MaxWorkers: 1}, enginetest.New)
	pool.Dispose(context.Background())

	assert.PanicsWithValue(t, ErrDisposed, func() {
		_, _ = pool.Execute(context.Background(), "in", "out", FormatDOCX, nil)
	})
}

func TestNewPoolRejectsMissingWorkerBinary(t *testing.T) {
	_, err := NewPool(PoolConfig{MaxWorkers: 1, WorkerPath: "/nonexistent/slimlo-worker"})
	assert.Error(t, err)
}

func TestNewPoolRejectsZeroWorkers(t *testing.T) {
	dir := t.TempDir()
	workerPath := filepath.Join(dir, "fake-worker")
	require.NoError(t, os.WriteFile(workerPath, []byte("x"), 0o755))

	_, err := NewPool(PoolConfig{MaxWorkers: 0, WorkerPath: workerPath})
	assert.Error(t, err)
}
