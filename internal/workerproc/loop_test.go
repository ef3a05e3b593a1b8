package workerproc

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/ocx/slimlo/internal/engine/enginetest"
	"github.com/ocx/slimlo/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// harness wires a Loop to in-memory pipes so a test can drive it frame by
// frame without a real subprocess.
type harness struct {
	toWorker   bytes.Buffer
	fromWorker bytes.Buffer
	reader     *wire.Reader
	writer     *wire.Writer
	loop       *Loop
	eng        *enginetest.Fake
}

func newHarness() *harness {
	h := &harness{eng: enginetest.New()}
	h.loop = New(&h.toWorker, &h.fromWorker, h.eng, nil)
	h.writer = wire.NewWriter(&h.toWorker)
	h.reader = wire.NewReader(&h.fromWorker)
	return h
}

func (h *harness) send(req *wire.Request) {
	data, err := wire.EncodeRequest(req)
	if err != nil {
		panic(err)
	}
	if err := h.writer.WriteFrame(data); err != nil {
		panic(err)
	}
}

func (h *harness) sendRaw(payload []byte) {
	if err := h.writer.WriteFrame(payload); err != nil {
		panic(err)
	}
}

func (h *harness) recvResponse(t *testing.T) *wire.Response {
	t.Helper()
	payload, err := h.reader.ReadFrame()
	require.NoError(t, err)
	resp, err := wire.DecodeResponse(payload)
	require.NoError(t, err)
	return resp
}

func TestInitThenConvertSucceeds(t *testing.T) {
	h := newHarness()
	dir := t.TempDir()
	input := filepath.Join(dir, "in.docx")
	output := filepath.Join(dir, "out.pdf")
	require.NoError(t, os.WriteFile(input, []byte("fake docx"), 0o644))

	h.send(&wire.Request{Type: wire.TypeInit, ResourcePath: "/resources"})
	h.send(&wire.Request{Type: wire.TypeConvert, ID: 1, Input: input, Output: output, Format: int(wire.FormatDOCX)})
	h.send(&wire.Request{Type: wire.TypeQuit})

	require.NoError(t, h.loop.Run())

	ready := h.recvResponse(t)
	assert.Equal(t, wire.TypeReady, ready.Type)
	assert.Equal(t, "fake-engine-1.0", ready.Version)

	result := h.recvResponse(t)
	assert.Equal(t, wire.TypeResult, result.Type)
	assert.True(t, result.Success)
	assert.FileExists(t, output)
}

func TestConvertBeforeInitRepliesNotInitialized(t *testing.T) {
	h := newHarness()
	h.send(&wire.Request{Type: wire.TypeConvert, ID: 5, Input: "x", Output: "y"})
	h.send(&wire.Request{Type: wire.TypeQuit})

	require.NoError(t, h.loop.Run())

	result := h.recvResponse(t)
	assert.False(t, result.Success)
	require.NotNil(t, result.ErrorCode)
	assert.Equal(t, 9, *result.ErrorCode)
}

func TestDoubleInitReturnsError(t *testing.T) {
	h := newHarness()
	h.send(&wire.Request{Type: wire.TypeInit, ResourcePath: "/resources"})
	h.send(&wire.Request{Type: wire.TypeInit, ResourcePath: "/resources"})
	h.send(&wire.Request{Type: wire.TypeQuit})

	require.NoError(t, h.loop.Run())

	ready := h.recvResponse(t)
	assert.Equal(t, wire.TypeReady, ready.Type)
	second := h.recvResponse(t)
	assert.Equal(t, wire.TypeError, second.Type)
}

func TestInvalidJSONRepliesErrorAndContinues(t *testing.T) {
	h := newHarness()
	h.send(&wire.Request{Type: wire.TypeInit, ResourcePath: "/resources"})
	h.sendRaw([]byte("{not json"))
	h.send(&wire.Request{Type: wire.TypeQuit})

	require.NoError(t, h.loop.Run())

	h.recvResponse(t) // ready
	errResp := h.recvResponse(t)
	assert.Equal(t, wire.TypeError, errResp.Type)
	assert.Equal(t, "Invalid JSON", errResp.Message)
}

func TestUnknownTypeIsDropped(t *testing.T) {
	h := newHarness()
	h.send(&wire.Request{Type: wire.TypeInit, ResourcePath: "/resources"})
	h.send(&wire.Request{Type: "frobnicate"})
	h.send(&wire.Request{Type: wire.TypeQuit})

	require.NoError(t, h.loop.Run())

	h.recvResponse(t) // ready, nothing for the unknown type
	_, err := h.reader.ReadFrame()
	assert.ErrorIs(t, err, wire.ErrEndOfStream)
}

func TestConvertBufferRoundTrip(t *testing.T) {
	h := newHarness()
	h.send(&wire.Request{Type: wire.TypeInit, ResourcePath: "/resources"})
	doc := []byte("fake docx bytes")
	h.send(&wire.Request{Type: wire.TypeConvertBuffer, ID: 2, Format: int(wire.FormatDOCX), DataSize: int64(len(doc))})
	h.sendRaw(doc)
	h.send(&wire.Request{Type: wire.TypeQuit})

	require.NoError(t, h.loop.Run())

	h.recvResponse(t) // ready
	result := h.recvResponse(t)
	assert.Equal(t, wire.TypeBufferResult, result.Type)
	assert.True(t, result.Success)
	require.NotNil(t, result.DataSize)
	assert.Greater(t, *result.DataSize, int64(0))

	pdf, err := h.reader.ReadFrame()
	require.NoError(t, err)
	assert.EqualValues(t, *result.DataSize, len(pdf))
}

func TestConvertBufferDataSizeMismatch(t *testing.T) {
	h := newHarness()
	h.send(&wire.Request{Type: wire.TypeInit, ResourcePath: "/resources"})
	h.send(&wire.Request{Type: wire.TypeConvertBuffer, ID: 3, Format: int(wire.FormatDOCX), DataSize: 999})
	h.sendRaw([]byte("short"))
	h.send(&wire.Request{Type: wire.TypeQuit})

	require.NoError(t, h.loop.Run())

	h.recvResponse(t) // ready
	result := h.recvResponse(t)
	assert.False(t, result.Success)
	require.NotNil(t, result.ErrorCode)
	assert.Equal(t, 10, *result.ErrorCode)
}

func TestConvertFailureSurfacesDiagnosticsAndEngineError(t *testing.T) {
	h := newHarness()
	h.eng.SaveAsErr = "export failed: unsupported feature"
	h.eng.Stderr = `warn:vcl.fonts:1:could not select font "Calibri", using "Carlito"`

	dir := t.TempDir()
	input := filepath.Join(dir, "in.docx")
	require.NoError(t, os.WriteFile(input, []byte("fake"), 0o644))

	h.send(&wire.Request{Type: wire.TypeInit, ResourcePath: "/resources"})
	h.send(&wire.Request{Type: wire.TypeConvert, ID: 9, Input: input, Output: filepath.Join(dir, "out.pdf")})
	h.send(&wire.Request{Type: wire.TypeQuit})

	require.NoError(t, h.loop.Run())

	h.recvResponse(t) // ready
	result := h.recvResponse(t)
	assert.False(t, result.Success)
	require.NotNil(t, result.ErrorMessage)
	assert.Contains(t, *result.ErrorMessage, "export failed")
	require.Len(t, result.Diagnostics, 1)
	assert.Equal(t, "Calibri", result.Diagnostics[0].Font)
}
