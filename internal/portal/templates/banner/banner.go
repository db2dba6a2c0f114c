// Package banner renders the typing banner beside the sign-in form.
package banner

import (
	"context"
	"encoding/json"
	"io"

	"github.com/a-h/templ"

	portalbanner "finitefield.org/hanko-portal/internal/portal/banner"
	"finitefield.org/hanko-portal/internal/portal/templates/helpers"
)

type frameJSON struct {
	Text string `json:"t"`
	At   int64  `json:"at"`
}

// FramesJSON encodes the key frames for typing.js, offsets in milliseconds.
func FramesJSON(frames []portalbanner.Frame) (string, error) {
	out := make([]frameJSON, len(frames))
	for i, f := range frames {
		out[i] = frameJSON{Text: f.Text, At: f.At.Milliseconds()}
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Banner renders the static headings and the animated region. The server
// renders the final text so the banner reads correctly without JavaScript.
func Banner(data Data) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		frames, err := FramesJSON(data.Timeline.Frames)
		if err != nil {
			return err
		}

		m := helpers.NewMarkup(w)
		m.Raw(`<section class="typing-banner" data-typing-banner>`)
		for _, heading := range data.Headings {
			m.Raw(`<h1 class="typing-heading">`)
			m.Text(heading)
			m.Raw(`</h1>`)
		}
		m.Raw(`<p class="typing-line"><span class="typing-text" data-typing-text`)
		m.Attr("data-typing-frames", frames)
		m.Attr("aria-label", data.Timeline.Final)
		m.Raw(`>`)
		m.Text(data.Timeline.Final)
		m.Raw(`</span>`)
		if data.Timeline.Cursor {
			m.Raw(`<span class="typing-caret" data-typing-caret aria-hidden="true">|</span>`)
		}
		m.Raw(`</p></section>`)
		return m.Err()
	})
}
