package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// SpinnerFrames defines the custom animation frames (◐ ◓ ◑ ◒) used while
// targets are in flight.
var SpinnerFrames = spinner.Spinner{
	Frames: []string{"◐", "◓", "◑", "◒"},
	FPS:    time.Second / 10, // 100ms per frame
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

type advanceMsg int

type stopMsg struct{}

// progressModel is the Bubble Tea model behind an interactive Progress.
type progressModel struct {
	label     string
	spin      spinner.Model
	bar       progress.Model
	total     int
	completed int
	started   time.Time
	done      bool
}

func newProgressModel(label string, total int) progressModel {
	sp := spinner.New()
	sp.Spinner = SpinnerFrames
	sp.Style = lipgloss.NewStyle().Foreground(ColorSecondary)

	return progressModel{
		label:   label,
		spin:    sp,
		bar:     progress.New(progress.WithSolidFill(string(ColorSecondary)), progress.WithWidth(30), progress.WithoutPercentage()),
		total:   total,
		started: time.Now(),
	}
}

func (m progressModel) Init() tea.Cmd {
	return m.spin.Tick
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case advanceMsg:
		m.completed += int(msg)
		if m.completed > m.total {
			m.completed = m.total
		}
		return m, nil
	case stopMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m progressModel) fraction() float64 {
	if m.total <= 0 {
		return 1
	}
	return float64(m.completed) / float64(m.total)
}

func (m progressModel) View() string {
	if m.done {
		return ""
	}
	return fmt.Sprintf("%s %s %s %d/%d %s\n",
		m.spin.View(), m.label, m.bar.ViewAs(m.fraction()), m.completed, m.total,
		MutedStyle().Render(formatDuration(time.Since(m.started))))
}

// Progress reports a run over many targets. On a terminal it keeps a
// spinner and a progress bar at the bottom of the screen with chunk lines
// scrolling above it; elsewhere it only prints the chunk lines.
type Progress struct {
	mu      sync.Mutex
	out     io.Writer
	program *tea.Program
	done    chan struct{}
	stopped bool
}

// NewProgress starts reporting on out. interactive is normally IsTerminal(out).
func NewProgress(out io.Writer, label string, total int, interactive bool) *Progress {
	p := &Progress{out: out}
	if !interactive {
		return p
	}

	p.program = tea.NewProgram(newProgressModel(label, total),
		tea.WithOutput(out),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)
	p.done = make(chan struct{})
	go func() {
		defer close(p.done)
		_, _ = p.program.Run()
	}()
	return p
}

// Chunk announces a chunk of targets being launched.
func (p *Progress) Chunk(size int, first, last string, remaining int) {
	p.Println(ChunkLine(size, first, last, remaining))
}

// Advance marks n more targets as finished.
func (p *Progress) Advance(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.program != nil && !p.stopped {
		p.program.Send(advanceMsg(n))
	}
}

// Println prints a line above the progress display.
func (p *Progress) Println(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.program != nil && !p.stopped {
		p.program.Println(line)
		return
	}
	fmt.Fprintln(p.out, line)
}

// Stop removes the progress display. It is safe to call more than once.
func (p *Progress) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	program := p.program
	p.mu.Unlock()

	if program != nil {
		program.Send(stopMsg{})
		<-p.done
	}
}

// formatDuration renders elapsed time for status lines.
func formatDuration(d time.Duration) string {
	secs := d.Seconds()
	if secs < 0.1 {
		return fmt.Sprintf("%.2fs", secs)
	}
	return fmt.Sprintf("%.1fs", secs)
}
