// Package banner plans the typing animation shown next to the sign-in form.
package banner

import (
	"errors"
	"fmt"
	"time"
)

const (
	defaultTypeSpeed   = 60 * time.Millisecond
	defaultDeleteSpeed = 30 * time.Millisecond
)

// ErrEmptySequence is returned when a sequence has nothing to type.
var ErrEmptySequence = errors.New("banner: sequence has no steps")

// Step is a single string in the sequence and the pause held once it is fully typed.
type Step struct {
	Text  string
	Delay time.Duration
}

// Sequence describes the static headings and the animated region.
type Sequence struct {
	Headings    []string
	Steps       []Step
	Repeat      int
	Cursor      bool
	TypeSpeed   time.Duration
	DeleteSpeed time.Duration
}

// Frame is one visible state of the animated region, offset from the start of the animation.
type Frame struct {
	Text string
	At   time.Duration
}

// Timeline is the expanded, deterministic form of a Sequence.
type Timeline struct {
	Frames   []Frame
	Final    string
	Cursor   bool
	Duration time.Duration
}

// Default returns the landing page banner.
func Default() Sequence {
	return Sequence{
		Headings: []string{"Create.", "Post."},
		Steps: []Step{
			{Text: "Inteaction", Delay: 2 * time.Second},
			{Text: "Interaction"},
		},
		Repeat: 1,
		Cursor: true,
	}
}

// Validate reports whether the sequence can be planned.
func (s Sequence) Validate() error {
	if len(s.Steps) == 0 {
		return ErrEmptySequence
	}
	if s.Repeat < 1 {
		return fmt.Errorf("banner: repeat must be at least 1, got %d", s.Repeat)
	}
	if s.TypeSpeed < 0 || s.DeleteSpeed < 0 {
		return errors.New("banner: speeds must not be negative")
	}
	for i, step := range s.Steps {
		if step.Delay < 0 {
			return fmt.Errorf("banner: step %d has a negative delay", i)
		}
	}
	return nil
}

// Plan expands the sequence into key frames. Moving from one string to the next
// deletes back to their common prefix a rune at a time and then types the rest.
// Each repeat is a full cycle; the hold after the very last step is dropped so the
// timeline stops on the final string.
func (s Sequence) Plan() (Timeline, error) {
	if err := s.Validate(); err != nil {
		return Timeline{}, err
	}

	typeSpeed := s.TypeSpeed
	if typeSpeed == 0 {
		typeSpeed = defaultTypeSpeed
	}
	deleteSpeed := s.DeleteSpeed
	if deleteSpeed == 0 {
		deleteSpeed = defaultDeleteSpeed
	}

	var (
		frames  []Frame
		at      time.Duration
		current []rune
	)
	for cycle := 0; cycle < s.Repeat; cycle++ {
		for i, step := range s.Steps {
			target := []rune(step.Text)
			keep := commonPrefix(current, target)
			for len(current) > keep {
				current = current[:len(current)-1]
				at += deleteSpeed
				frames = append(frames, Frame{Text: string(current), At: at})
			}
			for len(current) < len(target) {
				current = append(current, target[len(current)])
				at += typeSpeed
				frames = append(frames, Frame{Text: string(current), At: at})
			}
			if cycle == s.Repeat-1 && i == len(s.Steps)-1 {
				continue
			}
			at += step.Delay
		}
	}

	return Timeline{
		Frames:   frames,
		Final:    string(current),
		Cursor:   s.Cursor,
		Duration: at,
	}, nil
}

// TextAt returns the text visible after elapsed time.
func (t Timeline) TextAt(elapsed time.Duration) string {
	text := ""
	for _, f := range t.Frames {
		if f.At > elapsed {
			break
		}
		text = f.Text
	}
	return text
}

func commonPrefix(a, b []rune) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}
