// Command tonewheelctl is a thin CLI front end over internal/renderwav. It
// builds a small demo project and renders it to a WAV file; it does not
// read or write any project file format.
package main

import (
	"fmt"
	"os"

	"github.com/schollz/tonewheel/internal/engine"
	"github.com/schollz/tonewheel/internal/midiutil"
	"github.com/schollz/tonewheel/internal/model"
	"github.com/schollz/tonewheel/internal/renderwav"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tonewheelctl",
	Short: "Render a tonewheel project to a WAV file",
	Long: `tonewheelctl drives the tracker engine from the command line.

It has no project file format of its own: "render" builds a small demo
arrangement in memory and writes it out as audio, which is enough to
exercise the full scheduling and synthesis path without a UI.`,
}

var (
	outPath      string
	sampleRateHz uint32
	ppq          uint16
	ticks        uint64
	tempo        uint16
	note         uint8
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render a small demo project to a WAV file",
	RunE:  runRender,
}

func init() {
	renderCmd.Flags().StringVarP(&outPath, "out", "o", "tonewheel.wav", "output WAV file path")
	renderCmd.Flags().Uint32Var(&sampleRateHz, "sample-rate", 48000, "output sample rate in Hz")
	renderCmd.Flags().Uint16Var(&ppq, "ppq", 24, "scheduler pulses per quarter note")
	renderCmd.Flags().Uint64Var(&ticks, "ticks", 96, "number of scheduler ticks to render")
	renderCmd.Flags().Uint16Var(&tempo, "tempo", 120, "song tempo in BPM")
	renderCmd.Flags().Uint8Var(&note, "note", 60, "MIDI note number for the demo phrase's first step")

	rootCmd.AddCommand(renderCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runRender(cmd *cobra.Command, args []string) error {
	project, err := buildDemoProject(tempo, note)
	if err != nil {
		return err
	}

	report, err := renderwav.RenderToFile(project, outPath, renderwav.Config{
		SampleRateHz: sampleRateHz,
		PPQ:          ppq,
		Ticks:        ticks,
	})
	if err != nil {
		return err
	}

	fmt.Printf("wrote %s: %d ticks, %d events, %d samples, note %s, peak %d\n",
		outPath, report.TicksRendered, report.EventsRendered, report.SamplesRendered,
		midiutil.NoteName(note), report.PeakAbsSample)
	return nil
}

// buildDemoProject wires a single synth instrument into track 0's first
// song row, playing the given note on the phrase's first step. It exists so
// "render" has something to drive without a project file to load.
func buildDemoProject(tempo uint16, note uint8) (*model.ProjectData, error) {
	e := engine.New("tonewheelctl-demo")

	if err := e.Apply(engine.SetTempo(tempo)); err != nil {
		return nil, err
	}

	instrumentID := model.InstrumentID(0)
	instrument := model.NewInstrument(instrumentID, model.InstrumentSynth, "demo-synth")
	if err := e.Apply(engine.UpsertInstrument(instrument)); err != nil {
		return nil, err
	}

	chainID := model.ChainID(0)
	phraseID := model.PhraseID(0)

	chain := model.NewChain(chainID)
	chain.Rows[0].PhraseID = &phraseID
	if err := e.Apply(engine.UpsertChain(chain)); err != nil {
		return nil, err
	}

	phrase := model.NewPhrase(phraseID)
	phrase.Steps[0] = model.Step{Note: &note, Velocity: 100, InstrumentID: &instrumentID}
	if err := e.Apply(engine.UpsertPhrase(phrase)); err != nil {
		return nil, err
	}

	if err := e.Apply(engine.SetSongRowChain(0, 0, &chainID)); err != nil {
		return nil, err
	}

	return e.Snapshot(), nil
}
