package model

// ConversionMode selects what the remote service does with the raw audio.
type ConversionMode string

const (
	ModeInstrument ConversionMode = "instrument"
	ModeAutoTune   ConversionMode = "tune"
)

// InstrumentType identifies the target instrument for instrument mode.
type InstrumentType string

const (
	InstrumentDrum   InstrumentType = "drum"
	InstrumentPiano  InstrumentType = "piano"
	InstrumentBass   InstrumentType = "bass"
	InstrumentGuitar InstrumentType = "guitar"
)

// TunePreset selects the pitch-correction character for auto-tune mode.
type TunePreset string

const (
	TuneNatural TunePreset = "natural"
	TuneClassic TunePreset = "classic"
	TuneHard    TunePreset = "hard"
)

// KeyHintAuto lets the remote service detect the key itself.
const KeyHintAuto = "auto"

// KeyScaleOptions are the keys a user may pin for auto-tune, plus auto.
var KeyScaleOptions = []string{
	KeyHintAuto,
	"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B",
}

const (
	MinBPM = 60
	MaxBPM = 180
)

// ClampBPM bounds a tempo to the supported range.
func ClampBPM(bpm int) int {
	if bpm < MinBPM {
		return MinBPM
	}
	if bpm > MaxBPM {
		return MaxBPM
	}
	return bpm
}

// ConversionRequest is built from the current mode configuration plus the
// recording attempt at conversion time, and consumed once.
type ConversionRequest struct {
	Mode             ConversionMode
	TargetInstrument InstrumentType // Instrument mode
	StylePrompt      string         // Instrument mode, optional free text
	KeyHint          string         // AutoTune mode, a key or KeyHintAuto
	TunePreset       TunePreset     // AutoTune mode
	BPM              int
	AudioPath        string // The attempt's raw audio
}
