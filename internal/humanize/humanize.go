// Package humanize paces keyboard and pointer activity so the login
// form sees keystroke timing a human could plausibly produce. The
// jittered per-character delay is a behavioral contract against
// automation-detection heuristics, not cosmetics.
package humanize

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/mkuran/shopbot/internal/driver"
)

const (
	baseKeyDelay  = 80 * time.Millisecond
	minKeyDelay   = 20 * time.Millisecond
	pauseChance   = 0.05
	pauseMin      = 150 * time.Millisecond
	pauseMax      = 300 * time.Millisecond
)

// Typer fills inputs one keystroke at a time with jittered delays.
type Typer struct {
	rand  *rand.Rand
	base  time.Duration
	sleep func(time.Duration)
}

// NewTyper seeds a typer from the wall clock.
func NewTyper() *Typer {
	return &Typer{
		rand:  rand.New(rand.NewSource(time.Now().UnixNano())),
		base:  baseKeyDelay,
		sleep: time.Sleep,
	}
}

// Type focuses the element, clears it, then presses the text character
// by character with a human-paced delay between keystrokes.
func (t *Typer) Type(el driver.Element, text string) error {
	if err := el.Click(); err != nil {
		return fmt.Errorf("focus failed: %w", err)
	}
	if err := el.Fill(""); err != nil {
		return fmt.Errorf("clear failed: %w", err)
	}
	for _, r := range text {
		if err := el.Press(string(r)); err != nil {
			return fmt.Errorf("keystroke failed: %w", err)
		}
		t.sleep(t.keyDelay())
	}
	return nil
}

// keyDelay is the base interval with ±50% jitter, a 5% chance of an
// extended pause, and a hard floor.
func (t *Typer) keyDelay() time.Duration {
	if t.rand.Float64() < pauseChance {
		return pauseMin + time.Duration(t.rand.Int63n(int64(pauseMax-pauseMin)))
	}
	jitter := 0.5 + t.rand.Float64() // 0.5x .. 1.5x
	d := time.Duration(float64(t.base) * jitter)
	if d < minKeyDelay {
		d = minKeyDelay
	}
	return d
}

// Idle dispatches a short burst of mouse movement and a small scroll so
// the session has interaction history before sensitive actions.
func Idle(page driver.Page, r *rand.Rand) {
	movements := 2 + r.Intn(3)
	for i := 0; i < movements; i++ {
		x := r.Intn(1200) + 100
		y := r.Intn(700) + 100
		page.Eval(fmt.Sprintf(`() => {
			document.dispatchEvent(new MouseEvent('mousemove', {
				view: window, bubbles: true, cancelable: true,
				clientX: %d, clientY: %d
			}));
		}`, x, y))
		time.Sleep(time.Duration(5+r.Intn(10)) * time.Millisecond)
	}
	page.Eval(fmt.Sprintf(`() => window.scrollBy(0, %d)`, 50+r.Intn(150)))
	time.Sleep(time.Duration(30+r.Intn(50)) * time.Millisecond)
}
