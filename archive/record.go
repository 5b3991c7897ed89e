// Package archive defines the self-contained minute archive record
// (spec.md §3, §6.1) and writes/reads it as a zip-of-.npy container
// (the .npz convention spec.md §6.5 names), so downstream Python/NumPy
// consumers of the directory layout can open it unmodified.
package archive

// Gaps holds the parallel gap-provenance arrays; all four slices have
// equal length, spec.md §6.1's `gaps_count`.
type Gaps struct {
	RTPTimestamps []uint32
	SampleIndices []uint32
	SamplesFilled []uint32
	PacketsLost   []uint32
}

func (g Gaps) Count() int { return len(g.RTPTimestamps) }

// Record is one complete, gap-filled minute of I/Q samples plus the
// embedded timing/quality metadata of spec.md §6.1.
type Record struct {
	IQ            []complex64
	RTPTimestamp  uint32
	RTPSSRC       uint32
	SampleRate    uint32
	FrequencyHz   float64
	ChannelName   string
	UnixTimestamp float64

	TimeSnapRTP         uint32
	TimeSnapUTC         float64
	TimeSnapSource      string
	TimeSnapConfidence  float64
	TimeSnapStation     string

	TonePower1000HzDb       float64
	TonePower1200HzDb       float64
	WWVHDifferentialDelayMs float64

	NTPWallClockTime float64
	NTPOffsetMs      float64

	GapsCount       uint32
	GapsFilled      uint32
	PacketsReceived uint32
	PacketsExpected uint32
	Gaps            Gaps

	// CompletenessPct is 1 - gaps_filled/(SR*60) expressed as a
	// percentage. Named in the GLOSSARY but missing from spec.md §6.1's
	// literal field table; added per SPEC_FULL.md §4.1.
	CompletenessPct float64

	RecorderVersion  string
	CreatedTimestamp float64
}

// ToneSentinel is the sentinel value for undetected tone powers
// (spec.md §6.1).
const ToneSentinel = -999.0

// Validate checks the two invariants every consumer of a minute archive
// depends on (spec.md §8): exact sample count and gap-provenance closure.
func (r *Record) Validate(samplesPerPacket uint32) error {
	want := int(r.SampleRate) * 60
	if len(r.IQ) != want {
		return &InvariantError{Msg: "sample count mismatch", Want: want, Got: len(r.IQ)}
	}
	closure := r.GapsFilled + r.PacketsReceived*samplesPerPacket
	if closure != r.SampleRate*60 {
		return &InvariantError{Msg: "gap provenance closure failed", Want: int(r.SampleRate) * 60, Got: int(closure)}
	}
	return nil
}

type InvariantError struct {
	Msg      string
	Want, Got int
}

func (e *InvariantError) Error() string {
	return e.Msg
}
