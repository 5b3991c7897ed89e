package discriminate

// MinuteInputs collects one full-rate minute of I/Q plus the receiver
// geometry and tunables AnalyzeMinute needs to run every discrimination
// method and fuse them (spec.md §4.8-§4.12). The 1000/1200/440 Hz tones
// and the 100 Hz BCD subcarrier all sit well above a 10 Hz Nyquist, so
// this must be the minute archive's native-rate I/Q, not a decimated
// product — cmd/analytics wires the archive's own rec.IQ/rec.SampleRate
// in here directly.
type MinuteInputs struct {
	MinuteIQ        []complex64
	SampleRate      float64 // the minute archive's native sample rate
	MinuteTimestamp int64   // unix seconds, start of this minute
	MinuteOfHour    int

	ReceiverLatDeg float64
	ReceiverLonDeg float64

	BCDWindowS     int
	BCDStepS       int
	BCDQuality     float64

	MinMarginDb      float64
	BalanceThreshold float64
	HighConfidence   float64
	MediumConfidence float64
}

// AnalyzeMinute runs tone metrics, 440 Hz station ID, BCD correlation,
// and tick analysis over one minute, then fuses them through Combine
// into a CSV-ready Record (spec.md §4.8-§4.12, §6.3).
func AnalyzeMinute(in MinuteInputs) Record {
	wwv, wwvh := ToneMetrics(in.MinuteIQ, in.SampleRate, 0.8, 0.8)

	var tone440WWV, tone440WWVH Tone440Result
	switch in.MinuteOfHour {
	case 1:
		tone440WWVH = Detect440(in.MinuteIQ, in.SampleRate)
	case 2:
		tone440WWV = Detect440(in.MinuteIQ, in.SampleRate)
	}

	tickWindows := AnalyzeTicks(in.MinuteIQ, in.SampleRate)

	bcdWindows, bcdAgg := analyzeBCDWindows(in)

	combinerIn := CombinerInputs{
		MinuteOfHour: in.MinuteOfHour,
		Tone440WWV:   tone440WWV,
		Tone440WWVH:  tone440WWVH,
		TickWindows:  tickWindows,

		BCDWWVAmplitude:  bcdAgg.WWVAmplitude,
		BCDWWVHAmplitude: bcdAgg.WWVHAmplitude,
		HasBCD:           bcdAgg.Quality > 0,

		WWVPowerDb:  wwv.PowerDb,
		WWVHPowerDb: wwvh.PowerDb,
		HaveTone:    wwv.Detected || wwvh.Detected,

		MinMarginDb:      in.MinMarginDb,
		BalanceThreshold: in.BalanceThreshold,
		HighConfidence:   in.HighConfidence,
		MediumConfidence: in.MediumConfidence,
	}
	dominant, confidence := Combine(combinerIn)

	return Record{
		TimestampUTC:    float64(in.MinuteTimestamp),
		MinuteTimestamp: in.MinuteTimestamp,
		MinuteNumber:    in.MinuteOfHour,

		WWVDetected:  wwv.Detected,
		WWVHDetected: wwvh.Detected,

		WWVPowerDb:          wwv.PowerDb,
		WWVHPowerDb:         wwvh.PowerDb,
		PowerRatioDb:        wwv.PowerDb - wwvh.PowerDb,
		DifferentialDelayMs: bcdAgg.DifferentialDelayMs,

		Tone440WWVDetected:  tone440WWV.Detected,
		Tone440WWVPowerDb:   tone440WWV.PowerDb,
		Tone440WWVHDetected: tone440WWVH.Detected,
		Tone440WWVHPowerDb:  tone440WWVH.PowerDb,

		DominantStation: dominant,
		Confidence:      confidence,

		TickWindows: tickWindows,

		BCDWWVAmplitude:        bcdAgg.WWVAmplitude,
		BCDWWVHAmplitude:       bcdAgg.WWVHAmplitude,
		BCDDifferentialDelayMs: bcdAgg.DifferentialDelayMs,
		BCDCorrelationQuality:  bcdAgg.Quality,
		BCDWindows:             bcdWindows,
	}
}

// analyzeBCDWindows slides AnalyzeBCDWindow across the minute at the
// configured step, resolving any single-peak window via geographic ToA
// classification, and returns both the per-window detail and the
// highest-quality window's result as the minute's summary figures
// (spec.md §4.9, §6.3).
func analyzeBCDWindows(in MinuteInputs) ([]BCDWindow, BCDResult) {
	windowS := in.BCDWindowS
	if windowS <= 0 {
		windowS = 60
	}
	stepS := in.BCDStepS
	if stepS <= 0 {
		stepS = windowS
	}

	tmpl := NewBCDTemplate(in.SampleRate, float64(windowS))

	var windows []BCDWindow
	var best BCDResult
	for start := 0; start+windowS <= 60; start += stepS {
		res := AnalyzeBCDWindow(in.MinuteIQ, in.SampleRate, start, windowS, tmpl, in.BCDQuality)
		if res.Dropped {
			continue
		}
		if res.SinglePeak {
			station, ambiguous := ClassifySinglePeak(res.SinglePeakLagMs, in.ReceiverLatDeg, in.ReceiverLonDeg)
			if !ambiguous {
				switch station {
				case DominantWWV:
					// amplitude already in WWVAmplitude
				case DominantWWVH:
					res.WWVHAmplitude, res.WWVAmplitude = res.WWVAmplitude, 0
				}
			}
		}

		windows = append(windows, BCDWindow{
			WindowStartSec:      start,
			WWVAmplitude:        res.WWVAmplitude,
			WWVHAmplitude:       res.WWVHAmplitude,
			DifferentialDelayMs: res.DifferentialDelayMs,
			CorrelationQuality:  res.Quality,
		})

		if res.Quality > best.Quality {
			best = res
		}
	}
	return windows, best
}
