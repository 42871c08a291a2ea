package overlay

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"golang.org/x/term"
)

const (
	clearScreen = "\033[H\033[2J"
	hideCursor  = "\033[?25l"
	showCursor  = "\033[?25h"
)

// TerminalPublisher redraws the overlay on a terminal. When the output is
// not a TTY each publish is appended as plain text.
type TerminalPublisher struct {
	out   io.Writer
	fd    int
	tty   bool
	color bool

	mu      sync.Mutex
	started bool
}

var _ Publisher = (*TerminalPublisher)(nil)

// NewTerminalPublisher writes to stdout.
func NewTerminalPublisher(cfg TerminalConfig) *TerminalPublisher {
	return NewTerminalPublisherTo(os.Stdout, int(os.Stdout.Fd()), cfg)
}

// NewTerminalPublisherTo writes to out, probing fd for terminal support.
func NewTerminalPublisherTo(out io.Writer, fd int, cfg TerminalConfig) *TerminalPublisher {
	tty := term.IsTerminal(fd)

	return &TerminalPublisher{
		out:   out,
		fd:    fd,
		tty:   tty,
		color: cfg.Color && tty && !color.NoColor,
	}
}

func (p *TerminalPublisher) Name() string { return "terminal" }

func (p *TerminalPublisher) Publish(_ context.Context, slot, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.tty {
		_, err := fmt.Fprintf(p.out, "--- %s ---\n%s", slot, text)

		return err
	}

	var b strings.Builder

	if !p.started {
		b.WriteString(hideCursor)
		p.started = true
	}

	b.WriteString(clearScreen)

	width, height, err := term.GetSize(p.fd)
	if err != nil {
		width, height = 0, 0
	}

	for i, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		if height > 0 && i >= height-1 {
			break
		}

		if width > 0 && len(line) > width {
			line = line[:width]
		}

		if p.color {
			line = colorize(line)
		}

		b.WriteString(line)
		b.WriteString("\r\n")
	}

	_, err = io.WriteString(p.out, b.String())

	return err
}

// Close restores the cursor.
func (p *TerminalPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return nil
	}

	p.started = false

	_, err := io.WriteString(p.out, showCursor)

	return err
}

var (
	cpuColor      = color.New(color.FgCyan).SprintFunc()
	ioColor       = color.New(color.FgYellow).SprintFunc()
	memoryColor   = color.New(color.FgMagenta).SprintFunc()
	diskColor     = color.New(color.FgGreen).SprintFunc()
	pagefileColor = color.New(color.FgBlue).SprintFunc()
	frameColor    = color.New(color.FgWhite, color.Bold).SprintFunc()
)

// colorize picks a colour from the line's leading label.
func colorize(line string) string {
	label := strings.TrimSpace(line)

	switch {
	case label == "":
		return line
	case strings.HasPrefix(label, "Total"), strings.HasPrefix(label, "CPU"):
		return cpuColor(line)
	case strings.HasPrefix(label, "Read"), strings.HasPrefix(label, "Write"),
		strings.HasPrefix(label, "Other"):
		return ioColor(line)
	case strings.HasPrefix(label, "Working Set"), strings.HasPrefix(label, "*Peak"),
		strings.HasPrefix(label, "System"):
		return memoryColor(line)
	case strings.HasPrefix(label, "Disk"):
		return diskColor(line)
	case strings.HasPrefix(label, "Pagefile"):
		return pagefileColor(line)
	case strings.Contains(label, " FPS,"):
		return frameColor(line)
	default:
		return line
	}
}
