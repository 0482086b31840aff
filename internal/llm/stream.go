package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// EventType discriminates Event.
type EventType int

const (
	// EventBlockStart opens a block. Block carries its type and, for tool
	// uses, the id and name.
	EventBlockStart EventType = iota + 1

	// EventBlockDelta extends the open block at Index with Text or
	// PartialJSON.
	EventBlockDelta

	// EventBlockStop finalizes the block at Index.
	EventBlockStop

	// EventMessageStop ends the response and carries StopReason.
	EventMessageStop
)

func (t EventType) String() string {
	switch t {
	case EventBlockStart:
		return "block_start"
	case EventBlockDelta:
		return "block_delta"
	case EventBlockStop:
		return "block_stop"
	case EventMessageStop:
		return "message_stop"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is one structural step of a model response.
type Event struct {
	Type        EventType
	Index       int
	Block       ContentBlock
	Text        string
	PartialJSON string
	StopReason  string
}

// Stream yields the events of one response. Recv returns io.EOF after the
// EventMessageStop event. Close releases the underlying transport and is
// safe to call more than once.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

// Gateway sends a conversation to the model.
type Gateway interface {
	Converse(ctx context.Context, req Request) (Stream, error)
}

// replayStream serves a complete Response as events.
type replayStream struct {
	events []Event
	pos    int
}

// NewReplayStream returns a Stream producing the events that a streaming
// response with resp's content would produce.
func NewReplayStream(resp Response) Stream {
	events := make([]Event, 0, 3*len(resp.Content)+1)
	for i, b := range resp.Content {
		start := b
		start.Text, start.Input = "", nil
		events = append(events, Event{Type: EventBlockStart, Index: i, Block: start})
		switch b.Type {
		case BlockText:
			if b.Text != "" {
				events = append(events, Event{Type: EventBlockDelta, Index: i, Text: b.Text})
			}
		case BlockToolUse:
			if len(b.Input) > 0 {
				raw, _ := json.Marshal(b.Input)
				events = append(events, Event{Type: EventBlockDelta, Index: i, PartialJSON: string(raw)})
			}
		}
		events = append(events, Event{Type: EventBlockStop, Index: i})
	}
	events = append(events, Event{Type: EventMessageStop, StopReason: resp.StopReason})
	return &replayStream{events: events}
}

func (s *replayStream) Recv() (Event, error) {
	if s.pos >= len(s.events) {
		return Event{}, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}

func (s *replayStream) Close() error {
	s.pos = len(s.events)
	return nil
}

type openBlock struct {
	block ContentBlock
	text  strings.Builder
	json  strings.Builder
}

// Collect reads stream to the end and assembles the Response. onText, when
// non-nil, receives every text delta as it is read. Tool input fragments are
// parsed only when their block stops. If Recv fails, blocks still open are
// discarded and the error is returned.
func Collect(stream Stream, onText func(string)) (Response, error) {
	var (
		resp  Response
		open  = map[int]*openBlock{}
		order []int
		done  = map[int]ContentBlock{}
	)

	for {
		ev, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Response{}, err
		}

		switch ev.Type {
		case EventBlockStart:
			switch ev.Block.Type {
			case BlockText, BlockToolUse:
			default:
				return Response{}, &MalformedResponseError{Reason: fmt.Sprintf("unknown content block type %q", ev.Block.Type)}
			}
			if _, dup := open[ev.Index]; dup {
				return Response{}, &MalformedResponseError{Reason: fmt.Sprintf("block %d started twice", ev.Index)}
			}
			open[ev.Index] = &openBlock{block: ev.Block}
			order = append(order, ev.Index)
		case EventBlockDelta:
			ob, ok := open[ev.Index]
			if !ok {
				return Response{}, &MalformedResponseError{Reason: fmt.Sprintf("delta for unopened block %d", ev.Index)}
			}
			if ev.Text != "" {
				ob.text.WriteString(ev.Text)
				if onText != nil {
					onText(ev.Text)
				}
			}
			ob.json.WriteString(ev.PartialJSON)
		case EventBlockStop:
			ob, ok := open[ev.Index]
			if !ok {
				return Response{}, &MalformedResponseError{Reason: fmt.Sprintf("stop for unopened block %d", ev.Index)}
			}
			delete(open, ev.Index)
			block := ob.block
			switch block.Type {
			case BlockText:
				block.Text = ob.text.String()
			case BlockToolUse:
				input, err := decodeInput([]byte(ob.json.String()))
				if err != nil {
					return Response{}, err
				}
				block.Input = input
			}
			done[ev.Index] = block
		case EventMessageStop:
			resp.StopReason = ev.StopReason
		}
	}

	for _, idx := range order {
		if b, ok := done[idx]; ok {
			resp.Content = append(resp.Content, b)
		}
	}
	return resp, nil
}
