package banner

import (
	portalbanner "finitefield.org/hanko-portal/internal/portal/banner"
)

// Data encapsulates what the typing banner renders.
type Data struct {
	Headings []string
	Timeline portalbanner.Timeline
}

// FromSequence plans seq. An invalid sequence falls back to its last step text
// without animation.
func FromSequence(seq portalbanner.Sequence) Data {
	data := Data{Headings: seq.Headings}
	timeline, err := seq.Plan()
	if err != nil {
		if n := len(seq.Steps); n > 0 {
			timeline = portalbanner.Timeline{Final: seq.Steps[n-1].Text, Cursor: seq.Cursor}
		}
	}
	data.Timeline = timeline
	return data
}
