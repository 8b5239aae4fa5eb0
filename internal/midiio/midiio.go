//go:build !windows

// Package midiio adapts gomidi's rtmidi driver to the midiwire.Input/Output
// interfaces so the runtime can drive real hardware the same way it drives
// the buffered test doubles.
package midiio

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/schollz/tonewheel/internal/midiwire"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

var mutex sync.Mutex

var outputsOpen map[string]drivers.Out
var inputsOpen map[string]drivers.In

func init() {
	outputsOpen = make(map[string]drivers.Out)
	inputsOpen = make(map[string]drivers.In)
}

func filterName(names []string, name string) (foundName string, foundNum int, err error) {
	foundNum = -1

	words := strings.Fields(name)
	if len(words) > 3 {
		words = words[:3]
	}
	truncatedName := strings.Join(words, " ")

	for i, n := range names {
		if strings.EqualFold(n, truncatedName) {
			return n, i, nil
		}
	}
	for i, n := range names {
		if strings.HasPrefix(strings.ToLower(n), strings.ToLower(truncatedName)) {
			return n, i, nil
		}
	}
	for i, n := range names {
		if strings.Contains(strings.ToLower(n), strings.ToLower(truncatedName)) {
			return n, i, nil
		}
	}

	return "", -1, fmt.Errorf("could not find MIDI device matching %q", truncatedName)
}

// OutputDevices lists the names of every available hardware MIDI output.
func OutputDevices() []string {
	var names []string
	for _, out := range midi.GetOutPorts() {
		names = append(names, out.String())
	}
	return names
}

// InputDevices lists the names of every available hardware MIDI input.
func InputDevices() []string {
	var names []string
	for _, in := range midi.GetInPorts() {
		names = append(names, in.String())
	}
	return names
}

// CloseAll closes every port this process has opened. It is safe to call
// more than once.
func CloseAll() {
	mutex.Lock()
	defer mutex.Unlock()
	for _, out := range outputsOpen {
		out.Close()
	}
	for _, in := range inputsOpen {
		in.Close()
	}
}

// Output is a midiwire.Output backed by a real hardware MIDI out port.
type Output struct {
	name       string
	notesOnKey map[uint16]bool
}

// NewOutput resolves name against the available output ports and opens it.
// name is cut to its first three words and compared case-insensitively:
// whole-name match first, then by prefix, then by substring, so a caller
// can pass a short label instead of the full port string.
func NewOutput(name string) (*Output, error) {
	resolved, _, err := filterName(OutputDevices(), name)
	if err != nil {
		return nil, err
	}

	if err := openOutput(resolved); err != nil {
		return nil, err
	}

	return &Output{name: resolved, notesOnKey: make(map[uint16]bool)}, nil
}

func openOutput(name string) error {
	mutex.Lock()
	defer mutex.Unlock()
	if _, ok := outputsOpen[name]; ok {
		return nil
	}
	out, err := midi.FindOutPort(name)
	if err != nil {
		return err
	}
	if err := out.Open(); err != nil {
		return err
	}
	outputsOpen[name] = out
	return nil
}

// Send implements midiwire.Output by writing the raw three-byte message to
// the hardware port.
func (o *Output) Send(msg midiwire.Message) {
	mutex.Lock()
	out, ok := outputsOpen[o.name]
	mutex.Unlock()
	if !ok {
		return
	}

	if err := out.Send([]byte{msg.Status, msg.Data1, msg.Data2}); err != nil {
		log.Printf("midiio: send error on %s: %v", o.name, err)
		return
	}

	key := uint16(msg.Status&0x0F)<<8 | uint16(msg.Data1)
	switch msg.Status & 0xF0 {
	case 0x90:
		if msg.Data2 == 0 {
			delete(o.notesOnKey, key)
		} else {
			o.notesOnKey[key] = true
		}
	case 0x80:
		delete(o.notesOnKey, key)
	}
}

// Close sends a note-off for every note this output believes is still
// sounding, then closes the underlying port.
func (o *Output) Close() error {
	for key := range o.notesOnKey {
		channel := uint8(key >> 8)
		note := uint8(key & 0xFF)
		o.Send(midiwire.Message{Status: 0x80 | channel, Data1: note, Data2: 0})
	}

	mutex.Lock()
	defer mutex.Unlock()
	out, ok := outputsOpen[o.name]
	if !ok {
		return nil
	}
	err := out.Close()
	delete(outputsOpen, o.name)
	return err
}

// Input is a midiwire.Input backed by a real hardware MIDI in port. Messages
// arrive asynchronously on gomidi's listener goroutine and are buffered
// until Poll is called.
type Input struct {
	name    string
	mu      sync.Mutex
	pending []midiwire.Message
	stop    func()
}

// NewInput resolves name against the available input ports, opens it and
// starts listening.
func NewInput(name string) (*Input, error) {
	resolved, _, err := filterName(InputDevices(), name)
	if err != nil {
		return nil, err
	}

	in, err := midi.FindInPort(resolved)
	if err != nil {
		return nil, err
	}

	input := &Input{name: resolved}

	if err := in.Open(); err != nil {
		return nil, err
	}

	stop, err := in.Listen(func(data []byte, _ int32) {
		if len(data) == 0 {
			return
		}
		msg := midiwire.Message{Status: data[0]}
		if len(data) >= 2 {
			msg.Data1 = data[1]
		}
		if len(data) >= 3 {
			msg.Data2 = data[2]
		}
		input.push(msg)
	})
	if err != nil {
		return nil, err
	}
	input.stop = stop

	mutex.Lock()
	inputsOpen[resolved] = in
	mutex.Unlock()

	return input, nil
}

func (i *Input) push(msg midiwire.Message) {
	i.mu.Lock()
	i.pending = append(i.pending, msg)
	i.mu.Unlock()
}

// Poll implements midiwire.Input by draining the buffered messages received
// since the last call.
func (i *Input) Poll() []midiwire.Message {
	i.mu.Lock()
	defer i.mu.Unlock()
	drained := i.pending
	i.pending = nil
	return drained
}

// Close stops listening and closes the underlying port.
func (i *Input) Close() error {
	if i.stop != nil {
		i.stop()
	}
	mutex.Lock()
	defer mutex.Unlock()
	in, ok := inputsOpen[i.name]
	if !ok {
		return nil
	}
	err := in.Close()
	delete(inputsOpen, i.name)
	return err
}
