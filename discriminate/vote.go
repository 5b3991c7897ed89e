package discriminate

import "math"

// Vote is the sum-typed per-method contribution the combiner consumes
// (spec.md §9's "model as a sum-typed vote" redesign guidance, replacing
// dynamic dispatch across the individual methods).
type Vote struct {
	Kind     string // "tone440", "bcd", "tick", "tonepower"
	Station  Dominance
	Weight   float64
	MarginDb float64
}

// voteWeight is the minute-specific weight table of spec.md §4.11.
type voteWeight struct {
	primary, secondary, tertiary float64
}

const (
	weightPrimary   = 10.0
	weightSecondary = 5.0
	weightTertiary  = 2.0
)

// defaultMinMarginDb is the margin a vote must clear to count for either station
// rather than contribute to neither (spec.md §4.11, config default 3dB).
const defaultMinMarginDb = 3.0

// CombinerInputs collects everything the combiner may use for one minute;
// any subset may be zero-valued/absent (spec.md §7: the combiner tolerates
// missing method inputs).
type CombinerInputs struct {
	MinuteOfHour int

	Tone440WWV  Tone440Result
	Tone440WWVH Tone440Result

	TickWindows []TickWindow

	BCDWWVAmplitude  float64
	BCDWWVHAmplitude float64
	HasBCD           bool

	WWVPowerDb  float64
	WWVHPowerDb float64
	HaveTone    bool

	MinMarginDb      float64
	BalanceThreshold float64
	HighConfidence   float64
	MediumConfidence float64
}

// isBCDRichMinute reports whether m is one of the BCD-rich minutes of
// spec.md §4.11's weight table (0, 8-10, 29-30).
func isBCDRichMinute(m int) bool {
	switch {
	case m == 0:
		return true
	case m >= 8 && m <= 10:
		return true
	case m == 29 || m == 30:
		return true
	default:
		return false
	}
}

// Combine fuses CombinerInputs into a dominance decision per spec.md
// §4.11's minute-specific weight table and balance/confidence thresholds.
func Combine(in CombinerInputs) (Dominance, Confidence) {
	minMargin := in.MinMarginDb
	if minMargin == 0 {
		minMargin = defaultMinMarginDb
	}

	var votes []Vote

	switch {
	case in.MinuteOfHour == 1 || in.MinuteOfHour == 2:
		votes = append(votes, tone440Vote(in, minMargin, weightPrimary))
		votes = append(votes, tickVote(in, minMargin, weightSecondary))
		votes = append(votes, bcdVote(in, minMargin, weightTertiary))
	case isBCDRichMinute(in.MinuteOfHour):
		votes = append(votes, bcdVote(in, minMargin, weightPrimary))
		votes = append(votes, tickVote(in, minMargin, weightSecondary))
		votes = append(votes, tonePowerVote(in, minMargin, weightTertiary))
	default:
		votes = append(votes, tonePowerVote(in, minMargin, weightPrimary))
		votes = append(votes, tickVote(in, minMargin, weightSecondary))
		votes = append(votes, bcdVote(in, minMargin, weightTertiary))
	}

	var scoreWWV, scoreWWVH, total float64
	for _, v := range votes {
		if v.Station == "" {
			continue
		}
		total += v.Weight
		switch v.Station {
		case DominantWWV:
			scoreWWV += v.Weight
		case DominantWWVH:
			scoreWWVH += v.Weight
		}
	}

	if total == 0 {
		return DominantBalanced, ConfidenceLow
	}

	normWWV := scoreWWV / total
	normWWVH := scoreWWVH / total

	balanceThreshold := in.BalanceThreshold
	if balanceThreshold == 0 {
		balanceThreshold = 0.15
	}

	if math.Abs(normWWV-normWWVH) < balanceThreshold {
		return DominantBalanced, confidenceFor(math.Max(normWWV, normWWVH), in)
	}

	if normWWV > normWWVH {
		return DominantWWV, confidenceFor(normWWV, in)
	}
	return DominantWWVH, confidenceFor(normWWVH, in)
}

func confidenceFor(score float64, in CombinerInputs) Confidence {
	high := in.HighConfidence
	if high == 0 {
		high = 0.7
	}
	medium := in.MediumConfidence
	if medium == 0 {
		medium = 0.4
	}
	switch {
	case score >= high:
		return ConfidenceHigh
	case score >= medium:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func tone440Vote(in CombinerInputs, minMargin, weight float64) Vote {
	marginDb := in.Tone440WWVH.PowerDb - in.Tone440WWV.PowerDb
	return marginVote("tone440", marginDb, minMargin, weight)
}

func tonePowerVote(in CombinerInputs, minMargin, weight float64) Vote {
	if !in.HaveTone {
		return Vote{}
	}
	marginDb := in.WWVPowerDb - in.WWVHPowerDb
	return marginVote("tonepower", marginDb, minMargin, weight)
}

func bcdVote(in CombinerInputs, minMargin, weight float64) Vote {
	if !in.HasBCD || (in.BCDWWVAmplitude == 0 && in.BCDWWVHAmplitude == 0) {
		return Vote{}
	}
	ampRatioDb := 20 * math.Log10(math.Max(in.BCDWWVAmplitude, 1e-9)/math.Max(in.BCDWWVHAmplitude, 1e-9))
	return marginVote("bcd", ampRatioDb, minMargin, weight)
}

func tickVote(in CombinerInputs, minMargin, weight float64) Vote {
	if len(in.TickWindows) == 0 {
		return Vote{}
	}
	var sumWWV, sumWWVH float64
	for _, w := range in.TickWindows {
		sumWWV += w.WWVSnrDb
		sumWWVH += w.WWVHSnrDb
	}
	n := float64(len(in.TickWindows))
	marginDb := sumWWV/n - sumWWVH/n
	return marginVote("tick", marginDb, minMargin, weight)
}

// marginVote contributes weight to whichever side of marginDb (positive
// favors WWV, negative favors WWVH) exceeds minMargin; a vote within the
// margin contributes to neither (spec.md §4.11).
func marginVote(kind string, marginDb, minMargin, weight float64) Vote {
	switch {
	case marginDb > minMargin:
		return Vote{Kind: kind, Station: DominantWWV, Weight: weight, MarginDb: marginDb}
	case marginDb < -minMargin:
		return Vote{Kind: kind, Station: DominantWWVH, Weight: weight, MarginDb: marginDb}
	default:
		return Vote{Kind: kind, Weight: 0, MarginDb: marginDb}
	}
}
