// Package dashboard renders runtime snapshots for terminals: one frame per
// commit with phase, queue occupancy, running subscriptions, and the state
// itself as YAML. Output is colored when the writer is a terminal.
package dashboard

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"

	"github.com/comalice/dispatchx"
)

const (
	ansiReset  = "\x1b[0m"
	ansiBold   = "\x1b[1m"
	ansiDim    = "\x1b[2m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

// IsTTY reports whether w is attached to a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Renderer writes snapshot frames to a single writer.
type Renderer struct {
	w     io.Writer
	color bool
}

// New builds a Renderer for w with color enabled iff w is a terminal.
func New(w io.Writer) *Renderer {
	return &Renderer{w: w, color: IsTTY(w)}
}

// WithColor overrides terminal detection.
func (r *Renderer) WithColor(on bool) *Renderer {
	r.color = on
	return r
}

// Frame renders one snapshot together with the state it captured. The state
// may be nil to render runtime internals only.
func (r *Renderer) Frame(snap dispatchx.RuntimeSnapshot, state any) error {
	var b strings.Builder
	b.WriteString(r.paint(ansiBold, fmt.Sprintf("commit %d", snap.Seq)))
	b.WriteString("  phase=")
	b.WriteString(r.phase(snap.Phase))
	fmt.Fprintf(&b, "  queue=%d/%d  inflight=%d\n", snap.QueueLen, snap.QueueCap, snap.InFlight)

	if len(snap.Subscriptions) > 0 {
		b.WriteString(r.paint(ansiDim, "subscriptions:"))
		b.WriteByte('\n')
		for _, key := range snap.Subscriptions {
			fmt.Fprintf(&b, "  - %s\n", key)
		}
	}

	if state != nil {
		encoded, err := yaml.Marshal(state)
		if err != nil {
			return fmt.Errorf("render state: %w", err)
		}
		b.WriteString(r.paint(ansiDim, "state:"))
		b.WriteByte('\n')
		for _, line := range strings.Split(strings.TrimRight(string(encoded), "\n"), "\n") {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}

	_, err := io.WriteString(r.w, b.String())
	return err
}

func (r *Renderer) phase(phase string) string {
	if !r.color {
		return phase
	}
	switch phase {
	case "running":
		return ansiGreen + phase + ansiReset
	case "stopped":
		return ansiRed + phase + ansiReset
	default:
		return ansiYellow + phase + ansiReset
	}
}

func (r *Renderer) paint(code, s string) string {
	if !r.color {
		return s
	}
	return code + s + ansiReset
}
