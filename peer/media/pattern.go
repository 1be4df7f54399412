package media

import "time"

const (
	patternFrameSize = 1200
	patternFrameRate = 15
)

// PatternSource is a synthetic frame generator used when no real capture
// device is wired in. Frames carry a rolling byte pattern, enough to keep
// a negotiated track flowing.
type PatternSource struct {
	seq byte
}

func NewPatternSource() *PatternSource {
	return &PatternSource{}
}

func (p *PatternSource) NextFrame() ([]byte, time.Duration) {
	frame := make([]byte, patternFrameSize)
	for i := range frame {
		frame[i] = p.seq
	}
	p.seq++
	return frame, time.Second / patternFrameRate
}
