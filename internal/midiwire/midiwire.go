// Package midiwire decodes and encodes raw three-byte MIDI messages and
// fans rendered note events out to Output implementations. It is kept
// free of any real transport so it can be tested without hardware.
package midiwire

import "github.com/schollz/tonewheel/internal/events"

// Message is a raw three-byte channel or system real-time MIDI message.
type Message struct {
	Status uint8
	Data1  uint8
	Data2  uint8
}

type DecodedKind int

const (
	DecodedNoteOn DecodedKind = iota
	DecodedNoteOff
	DecodedStart
	DecodedStop
	DecodedContinue
	DecodedClock
	DecodedUnknown
)

// Decoded is the dispatch-friendly result of decoding a raw Message.
type Decoded struct {
	Kind     DecodedKind
	Channel  uint8
	Note     uint8
	Velocity uint8
}

// Input is polled for newly arrived messages.
type Input interface {
	Poll() []Message
}

// Output accepts outgoing messages one at a time.
type Output interface {
	Send(msg Message)
}

// NoopInput always reports no pending messages.
type NoopInput struct{}

func (NoopInput) Poll() []Message { return nil }

// NoopOutput discards messages but counts how many it received.
type NoopOutput struct {
	sentCount int
}

func (o *NoopOutput) Send(Message) { o.sentCount++ }

func (o *NoopOutput) SentCount() int { return o.sentCount }

// BufferedInput queues messages pushed onto it for later Poll calls.
type BufferedInput struct {
	queue []Message
}

func (b *BufferedInput) PushMessage(msg Message) {
	b.queue = append(b.queue, msg)
}

func (b *BufferedInput) PushMessages(msgs []Message) {
	b.queue = append(b.queue, msgs...)
}

func (b *BufferedInput) Pending() int { return len(b.queue) }

func (b *BufferedInput) Poll() []Message {
	drained := b.queue
	b.queue = nil
	return drained
}

// BufferedOutput records every message sent to it, in order.
type BufferedOutput struct {
	sent []Message
}

func (b *BufferedOutput) Send(msg Message) { b.sent = append(b.sent, msg) }

func (b *BufferedOutput) SentMessages() []Message { return b.sent }

func (b *BufferedOutput) SentCount() int { return len(b.sent) }

func (b *BufferedOutput) TakeAll() []Message {
	taken := b.sent
	b.sent = nil
	return taken
}

// DecodeMessage classifies a raw message as a note event or transport byte.
func DecodeMessage(msg Message) Decoded {
	upperStatus := msg.Status & 0xF0
	channel := msg.Status & 0x0F

	switch upperStatus {
	case 0x90:
		if msg.Data2 == 0 {
			return Decoded{Kind: DecodedNoteOff, Channel: channel, Note: msg.Data1, Velocity: msg.Data2}
		}
		return Decoded{Kind: DecodedNoteOn, Channel: channel, Note: msg.Data1, Velocity: msg.Data2}
	case 0x80:
		return Decoded{Kind: DecodedNoteOff, Channel: channel, Note: msg.Data1, Velocity: msg.Data2}
	}

	switch msg.Status {
	case 0xFA:
		return Decoded{Kind: DecodedStart}
	case 0xFC:
		return Decoded{Kind: DecodedStop}
	case 0xFB:
		return Decoded{Kind: DecodedContinue}
	case 0xF8:
		return Decoded{Kind: DecodedClock}
	default:
		return Decoded{Kind: DecodedUnknown}
	}
}

// RenderEventToMidi maps a render event to the MIDI message it implies.
func RenderEventToMidi(event events.RenderEvent) Message {
	switch event.Kind {
	case events.RenderEventNoteOn:
		return Message{Status: 0x90 | (event.TrackID & 0x0F), Data1: event.Note, Data2: event.Velocity}
	default:
		return Message{Status: 0x80 | (event.TrackID & 0x0F), Data1: event.Note, Data2: 0}
	}
}

// ForwardRenderEvents encodes and sends each event in order, returning how
// many were sent.
func ForwardRenderEvents(evs []events.RenderEvent, output Output) int {
	sent := 0
	for _, event := range evs {
		output.Send(RenderEventToMidi(event))
		sent++
	}
	return sent
}
