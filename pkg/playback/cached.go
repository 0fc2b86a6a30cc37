package playback

import (
	"context"
	"regexp"
	"time"
	"unicode"
	"unicode/utf8"
)

var paragraphRe = regexp.MustCompile(`\n\s*\n`)

type boundary int

const (
	noBoundary boundary = iota
	sentenceBoundary
	paragraphBoundary
)

// step reveals answer[:end], waits delay, then pauses at a boundary.
type step struct {
	end      int
	delay    time.Duration
	boundary boundary
}

// Cached replays answer word by word. Every frame is a prefix of answer and
// the last frame is answer itself. It returns ctx.Err() when interrupted.
func (e *Engine) Cached(ctx context.Context, answer string, sink Sink) error {
	shown := -1
	for _, st := range plan(answer, e.timing) {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.Show(sink, answer[:st.end])
		shown = st.end

		if err := sleep(ctx, st.delay); err != nil {
			return err
		}
		if st.boundary == noBoundary {
			continue
		}
		if e.suspended() {
			if err := e.waitResumed(ctx); err != nil {
				return err
			}
			continue
		}
		if err := sleep(ctx, e.pause(st.boundary)); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if shown != len(answer) {
		e.Show(sink, answer)
	}
	return nil
}

func (e *Engine) pause(b boundary) time.Duration {
	if b == paragraphBoundary {
		return 3 * e.timing.Chunk
	}
	return 2 * e.timing.Chunk
}

// plan splits answer into paragraphs, sentences and words using byte
// offsets into answer.
func plan(answer string, t Timing) []step {
	var steps []step
	start := 0
	seps := paragraphRe.FindAllStringIndex(answer, -1)
	for i := 0; i <= len(seps); i++ {
		end := len(answer)
		if i < len(seps) {
			end = seps[i][0]
		}
		steps = appendWords(steps, answer, start, end, t)
		if i < len(seps) {
			steps = append(steps, step{end: seps[i][1], boundary: paragraphBoundary})
			start = seps[i][1]
		}
	}
	return steps
}

func appendWords(steps []step, answer string, start, end int, t Timing) []step {
	first := len(steps)
	i := start
	for i < end {
		r, size := utf8.DecodeRuneInString(answer[i:])
		if unicode.IsSpace(r) {
			i += size
			continue
		}
		j, runes := i, 0
		var last rune
		for j < end {
			r, size := utf8.DecodeRuneInString(answer[j:])
			if unicode.IsSpace(r) {
				break
			}
			last = r
			runes++
			j += size
		}
		st := step{end: j, delay: typingDelay(t.Typing, runes)}
		if endsSentence(last) {
			st.boundary = sentenceBoundary
		}
		steps = append(steps, st)
		i = j
	}
	if len(steps) > first {
		steps[len(steps)-1].boundary = sentenceBoundary
	}
	return steps
}

func typingDelay(typing time.Duration, runes int) time.Duration {
	return typing * time.Duration(runes) / 5
}

func endsSentence(r rune) bool {
	switch r {
	case '.', '!', '?', '।':
		return true
	}
	return false
}
