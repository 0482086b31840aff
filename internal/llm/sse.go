package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
)

const maxSSELine = 1024 * 1024

type sseFrame struct {
	event string
	data  string
}

// sseReader splits a server-sent event body into frames.
type sseReader struct {
	scanner *bufio.Scanner
}

func newSSEReader(r io.Reader) *sseReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxSSELine)
	return &sseReader{scanner: s}
}

// next returns the next frame with data, or io.EOF.
func (r *sseReader) next() (sseFrame, error) {
	var (
		event string
		data  strings.Builder
	)
	for r.scanner.Scan() {
		line := r.scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				return sseFrame{event: event, data: data.String()}, nil
			}
			event = ""
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(line[len("event:"):])
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(line[len("data:"):]))
		}
	}
	if err := r.scanner.Err(); err != nil {
		return sseFrame{}, err
	}
	if data.Len() > 0 {
		return sseFrame{event: event, data: data.String()}, nil
	}
	return sseFrame{}, io.EOF
}

type streamEnvelope struct {
	Type         string          `json:"type"`
	Index        int             `json:"index"`
	ContentBlock json.RawMessage `json:"content_block"`
	Delta        json.RawMessage `json:"delta"`
	Error        *apiErrorBody   `json:"error"`
}

type streamDelta struct {
	Type        string  `json:"type"`
	Text        string  `json:"text"`
	PartialJSON string  `json:"partial_json"`
	StopReason  *string `json:"stop_reason"`
}

// sseStream decodes Messages API streaming events on demand.
type sseStream struct {
	ctx      context.Context
	provider string
	body     io.ReadCloser
	reader   *sseReader

	stopReason string
	finished   bool

	closeOnce sync.Once
	closeErr  error
}

func newSSEStream(ctx context.Context, provider string, body io.ReadCloser) *sseStream {
	return &sseStream{ctx: ctx, provider: provider, body: body, reader: newSSEReader(body)}
}

func (s *sseStream) Recv() (Event, error) {
	for {
		if s.finished {
			return Event{}, io.EOF
		}
		if err := s.ctx.Err(); err != nil {
			return Event{}, err
		}

		frame, err := s.reader.next()
		if err != nil {
			if ctxErr := s.ctx.Err(); ctxErr != nil {
				return Event{}, ctxErr
			}
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return Event{}, &ProviderError{Provider: s.provider, Message: "stream ended before message_stop", Err: err}
		}

		var env streamEnvelope
		if err := json.Unmarshal([]byte(frame.data), &env); err != nil {
			return Event{}, &MalformedResponseError{Reason: "undecodable stream event", Err: err}
		}
		if env.Type == "" {
			env.Type = frame.event
		}

		ev, ok, err := s.decode(env)
		if err != nil {
			return Event{}, err
		}
		if ok {
			return ev, nil
		}
	}
}

// decode maps one envelope onto an Event. ok is false for envelopes that
// produce no event.
func (s *sseStream) decode(env streamEnvelope) (Event, bool, error) {
	switch env.Type {
	case "message_start", "ping":
		return Event{}, false, nil

	case "content_block_start":
		var block ContentBlock
		if err := json.Unmarshal(env.ContentBlock, &block); err != nil {
			return Event{}, false, err
		}
		block.Text, block.Input = "", nil
		return Event{Type: EventBlockStart, Index: env.Index, Block: block}, true, nil

	case "content_block_delta":
		var d streamDelta
		if err := json.Unmarshal(env.Delta, &d); err != nil {
			return Event{}, false, &MalformedResponseError{Reason: "undecodable block delta", Err: err}
		}
		switch d.Type {
		case "text_delta":
			return Event{Type: EventBlockDelta, Index: env.Index, Text: d.Text}, true, nil
		case "input_json_delta":
			return Event{Type: EventBlockDelta, Index: env.Index, PartialJSON: d.PartialJSON}, true, nil
		default:
			// citations and signature deltas carry nothing the loop uses
			return Event{}, false, nil
		}

	case "content_block_stop":
		return Event{Type: EventBlockStop, Index: env.Index}, true, nil

	case "message_delta":
		var d streamDelta
		if len(env.Delta) > 0 {
			if err := json.Unmarshal(env.Delta, &d); err != nil {
				return Event{}, false, &MalformedResponseError{Reason: "undecodable message delta", Err: err}
			}
		}
		if d.StopReason != nil {
			s.stopReason = *d.StopReason
		}
		return Event{}, false, nil

	case "message_stop":
		s.finished = true
		return Event{Type: EventMessageStop, StopReason: s.stopReason}, true, nil

	case "error":
		pe := &ProviderError{Provider: s.provider, Message: "stream error"}
		if env.Error != nil {
			pe.Type, pe.Message = env.Error.Type, env.Error.Message
		}
		return Event{}, false, pe

	default:
		// new event types are ignored
		return Event{}, false, nil
	}
}

func (s *sseStream) Close() error {
	s.closeOnce.Do(func() {
		s.finished = true
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
