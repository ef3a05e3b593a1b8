package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	r := NewReader(&buf)

	payloads := [][]byte{
		[]byte("hello"),
		{},
		bytes.Repeat([]byte{0xAB}, 70000),
	}

	for _, p := range payloads {
		require.NoError(t, w.WriteFrame(p))
		got, err := r.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
}

func TestReadFrameTruncatedHeader(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0x01, 0x00})
	r := NewReader(buf)
	_, err := r.ReadFrame()
	assert.ErrorIs(t, err, ErrEndOfStream)
}

func TestReadFrameTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteFrame([]byte("0123456789")))
	truncated := buf.Bytes()[:len(buf.Bytes())-3]
	r := NewReader(bytes.NewReader(truncated))
	_, err := r.ReadFrame()
	assert.ErrorIs(t, err, ErrEndOfStream)
}

func TestReadFrameCleanEOS(t *testing.T) {
	r := NewReader(bytes.NewReader(nil))
	_, err := r.ReadFrame()
	assert.ErrorIs(t, err, ErrEndOfStream)
}

func TestReadFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	hdr := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	buf.Write(hdr)
	r := NewReader(&buf)
	_, err := r.ReadFrame()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestWriteFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	err := w.WriteFrame(make([]byte, MaxFrameLength+1))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
	assert.Zero(t, buf.Len())
}

func TestRequestResponseCodec(t *testing.T) {
	req := &Request{Type: TypeConvert, ID: 7, Input: "in.docx", Output: "out.pdf", Format: int(FormatDOCX)}
	data, err := EncodeRequest(req)
	require.NoError(t, err)
	decoded, err := DecodeRequest(data)
	require.NoError(t, err)
	assert.Equal(t, req, decoded)

	code := 3
	msg := "export failed"
	resp := &Response{Type: TypeResult, ID: 7, Success: false, ErrorCode: &code, ErrorMessage: &msg}
	data, err = EncodeResponse(resp)
	require.NoError(t, err)
	decodedResp, err := DecodeResponse(data)
	require.NoError(t, err)
	assert.Equal(t, resp, decodedResp)
}
