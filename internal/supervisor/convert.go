package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/ocx/slimlo/internal/convresult"
	"github.com/ocx/slimlo/internal/errcode"
	"github.com/ocx/slimlo/internal/wire"
)

type readOutcome int

const (
	outcomeOK readOutcome = iota
	outcomeEOS
	outcomeTimeout
	outcomeCancelled
)

type frameResult struct {
	payload []byte
	err     error
}

// readFrameDeadline reads one frame, racing it against timeout and ctx
// cancellation. The read itself is not interruptible, so on timeout or
// cancellation the caller must kill the child to unblock the leaked
// goroutine; it will observe EOS on the now-dead pipe and exit quietly.
func (s *Supervisor) readFrameDeadline(ctx context.Context, timeout time.Duration) ([]byte, readOutcome) {
	ch := make(chan frameResult, 1)
	go func() {
		payload, err := s.reader.ReadFrame()
		ch <- frameResult{payload, err}
	}()

	var timerC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timerC = timer.C
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, outcomeEOS
		}
		return res.payload, outcomeOK
	case <-timerC:
		return nil, outcomeTimeout
	case <-ctx.Done():
		return nil, outcomeCancelled
	}
}

// Convert runs one file-path conversion. The returned error is non-nil only
// when ctx was cancelled (not on timeout); every other failure mode is
// reported as a Result with Success=false.
func (s *Supervisor) Convert(ctx context.Context, input, output string, format wire.Format, opts *wire.Options) (*convresult.Result, error) {
	s.stderr.Clear()

	req := &wire.Request{
		Type:    wire.TypeConvert,
		ID:      s.nextRequestID(),
		Input:   input,
		Output:  output,
		Format:  int(format),
		Options: opts,
	}
	data, err := wire.EncodeRequest(req)
	if err != nil {
		return crashResult(errcode.Unknown, fmt.Sprintf("encoding request: %v", err)), nil
	}
	if err := s.writer.WriteFrame(data); err != nil {
		s.markCrashed()
		return crashResult(errcode.Unknown, "failed to send request to worker"), nil
	}

	payload, outcome := s.readFrameDeadline(ctx, s.cfg.ConversionTimeout)
	switch outcome {
	case outcomeOK:
		resp, err := wire.DecodeResponse(payload)
		if err != nil {
			s.markCrashed()
			return crashResult(errcode.Unknown, "invalid response from worker"), nil
		}
		s.conversionCount++
		return resultFromResponse(resp), nil
	case outcomeEOS:
		code := s.waitExitCode()
		s.markCrashed()
		return crashResult(errcode.Unknown, fmt.Sprintf("worker crashed (exit code %d); document may be malformed", code)), nil
	case outcomeTimeout:
		s.kill()
		s.markCrashed()
		return crashResult(errcode.Timeout, fmt.Sprintf("conversion exceeded %s timeout", s.cfg.ConversionTimeout)), nil
	default: // outcomeCancelled
		s.kill()
		s.markCrashed()
		return nil, ctx.Err()
	}
}

// ConvertBuffer runs one in-memory conversion: the document bytes are sent
// as a second frame after the request, and on success the PDF bytes come
// back as a second frame after the buffer_result.
func (s *Supervisor) ConvertBuffer(ctx context.Context, docBytes []byte, format wire.Format, opts *wire.Options) (*convresult.Result, error) {
	s.stderr.Clear()

	req := &wire.Request{
		Type:     wire.TypeConvertBuffer,
		ID:       s.nextRequestID(),
		Format:   int(format),
		DataSize: int64(len(docBytes)),
		Options:  opts,
	}
	data, err := wire.EncodeRequest(req)
	if err != nil {
		return crashResult(errcode.Unknown, fmt.Sprintf("encoding request: %v", err)), nil
	}
	if err := s.writer.WriteFrame(data); err != nil {
		s.markCrashed()
		return crashResult(errcode.Unknown, "failed to send request to worker"), nil
	}
	if err := s.writer.WriteFrame(docBytes); err != nil {
		s.markCrashed()
		return crashResult(errcode.Unknown, "failed to send document payload to worker"), nil
	}

	payload, outcome := s.readFrameDeadline(ctx, s.cfg.ConversionTimeout)
	switch outcome {
	case outcomeOK:
		resp, err := wire.DecodeResponse(payload)
		if err != nil {
			s.markCrashed()
			return crashResult(errcode.Unknown, "invalid response from worker"), nil
		}
		s.conversionCount++
		result := resultFromResponse(resp)
		if !result.Success {
			return result, nil
		}
		pdfPayload, outcome := s.readFrameDeadline(ctx, s.cfg.ConversionTimeout)
		switch outcome {
		case outcomeOK:
			result.PDF = pdfPayload
			return result, nil
		case outcomeEOS:
			s.markCrashed()
			return crashResult(errcode.Unknown, "worker crashed while streaming converted document"), nil
		case outcomeTimeout:
			s.kill()
			s.markCrashed()
			return crashResult(errcode.Timeout, fmt.Sprintf("conversion exceeded %s timeout", s.cfg.ConversionTimeout)), nil
		default:
			s.kill()
			s.markCrashed()
			return nil, ctx.Err()
		}
	case outcomeEOS:
		code := s.waitExitCode()
		s.markCrashed()
		return crashResult(errcode.Unknown, fmt.Sprintf("worker crashed (exit code %d); document may be malformed", code)), nil
	case outcomeTimeout:
		s.kill()
		s.markCrashed()
		return crashResult(errcode.Timeout, fmt.Sprintf("conversion exceeded %s timeout", s.cfg.ConversionTimeout)), nil
	default: // outcomeCancelled
		s.kill()
		s.markCrashed()
		return nil, ctx.Err()
	}
}

func resultFromResponse(resp *wire.Response) *convresult.Result {
	result := &convresult.Result{
		Success:     resp.Success,
		Diagnostics: toConvDiagnostics(resp.Diagnostics),
	}
	if !resp.Success {
		if resp.ErrorCode != nil {
			result.ErrorCode = errcode.Code(*resp.ErrorCode)
		} else {
			result.ErrorCode = errcode.Unknown
		}
		if resp.ErrorMessage != nil {
			result.ErrorMessage = *resp.ErrorMessage
		}
	}
	return result
}

func toConvDiagnostics(in []wire.Diagnostic) []convresult.Diagnostic {
	if len(in) == 0 {
		return nil
	}
	out := make([]convresult.Diagnostic, len(in))
	for i, d := range in {
		out[i] = convresult.Diagnostic{
			Severity:        d.Severity,
			Category:        d.Category,
			Message:         d.Message,
			Font:            d.Font,
			SubstitutedWith: d.SubstitutedWith,
		}
	}
	return out
}
