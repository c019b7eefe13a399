package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tanq16/splitdl/internal/progress"
	"github.com/tanq16/splitdl/internal/utils"
)

type jobOutput struct {
	ID          string
	Label       string
	Status      string
	Message     string
	StreamLines []string
	Complete    bool
	StartTime   time.Time
	LastUpdated time.Time
	Error       error
	Index       int
}

type errorReport struct {
	Label string
	Error error
	Time  time.Time
}

// Manager renders one block per job: a status line and, while the job
// runs, its progress bar and recent warnings. Without a terminal it prints
// only final results.
type Manager struct {
	out         io.Writer
	interactive bool
	height      int
	width       int
	jobs        map[string]*jobOutput
	mutex       sync.RWMutex
	numLines    int
	maxStreams  int
	errors      []errorReport
	doneCh      chan struct{}
	displayTick time.Duration
	count       int
	displayWg   sync.WaitGroup
	stopOnce    sync.Once
}

func NewManager() *Manager {
	m := newManager(os.Stdout, isTerminal(os.Stdout))
	if m.interactive {
		m.height = terminalHeight(os.Stdout)
		m.width = terminalWidth(os.Stdout)
	}
	return m
}

// NewPlainManager writes only final results to out.
func NewPlainManager(out io.Writer) *Manager {
	return newManager(out, false)
}

func newManager(out io.Writer, interactive bool) *Manager {
	return &Manager{
		out:         out,
		interactive: interactive,
		height:      24,
		width:       80,
		jobs:        make(map[string]*jobOutput),
		maxStreams:  4,
		doneCh:      make(chan struct{}),
		displayTick: 300 * time.Millisecond,
	}
}

func (m *Manager) Register(id, label string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.count++
	m.jobs[id] = &jobOutput{
		ID:          id,
		Label:       label,
		Status:      statusPending,
		StartTime:   time.Now(),
		LastUpdated: time.Now(),
		Index:       m.count,
	}
}

func (m *Manager) SetMessage(id, message string) {
	m.update(id, func(j *jobOutput) {
		j.Message = message
		if j.Status == statusPending {
			j.Status = statusActive
			j.StartTime = time.Now()
		}
	})
}

// SetProgress replaces the job's stream with a progress bar, keeping any
// warnings below it.
func (m *Manager) SetProgress(id string, state progress.State) {
	line := progressLine(state, 30)
	m.update(id, func(j *jobOutput) {
		if j.Status == statusPending {
			j.Status = statusActive
		}
		if len(j.StreamLines) > 0 && strings.HasPrefix(j.StreamLines[0], StyleSymbols["bullet"]) {
			j.StreamLines[0] = line
			return
		}
		j.StreamLines = append([]string{line}, j.StreamLines...)
	})
}

func (m *Manager) AddStreamLine(id, line string) {
	m.update(id, func(j *jobOutput) {
		j.StreamLines = append(j.StreamLines, truncate(line, m.width-8))
		if len(j.StreamLines) > m.maxStreams {
			j.StreamLines = append(j.StreamLines[:1], j.StreamLines[len(j.StreamLines)-m.maxStreams+1:]...)
		}
	})
}

func (m *Manager) Complete(id, message string) {
	m.update(id, func(j *jobOutput) {
		j.StreamLines = nil
		j.Message = message
		if message == "" {
			j.Message = fmt.Sprintf("Completed %s", j.Label)
		}
		j.Complete = true
		j.Status = statusSuccess
	})
}

func (m *Manager) ReportError(id string, err error) {
	m.update(id, func(j *jobOutput) {
		j.Complete = true
		j.Status = statusError
		j.Error = err
		j.Message = fmt.Sprintf("Failed %s", j.Label)
		m.errors = append(m.errors, errorReport{Label: j.Label, Error: err, Time: time.Now()})
	})
}

func (m *Manager) update(id string, fn func(*jobOutput)) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if j, ok := m.jobs[id]; ok {
		fn(j)
		j.LastUpdated = time.Now()
	}
}

// Observer bridges a download's notifications into the job's lines.
// Per-chunk errors show as warnings; the job's final state is set by the caller.
func (m *Manager) Observer(id string) utils.Observer {
	return utils.ObserverFuncs{
		OnProgress: func(state progress.State) {
			m.SetProgress(id, state)
		},
		OnError: func(err error, comment string) {
			m.AddStreamLine(id, fmt.Sprintf("%s: %v", comment, err))
		},
	}
}

func (m *Manager) statusIndicator(status string) string {
	switch status {
	case statusSuccess:
		return successStyle.Render(StyleSymbols["pass"])
	case statusError:
		return errorStyle.Render(StyleSymbols["fail"])
	case statusPending:
		return pendingStyle.Render(StyleSymbols["pending"])
	default:
		return warningStyle.Render(StyleSymbols["pending"])
	}
}

func (m *Manager) styledMessage(j *jobOutput) string {
	switch j.Status {
	case statusSuccess:
		return successStyle.Render(j.Message)
	case statusError:
		return errorStyle.Render(j.Message)
	case statusPending:
		return pendingStyle.Render("Waiting...")
	default:
		return pendingStyle.Render(j.Message)
	}
}

func (m *Manager) sortJobs() (active, completed []*jobOutput) {
	all := make([]*jobOutput, 0, len(m.jobs))
	for _, j := range m.jobs {
		all = append(all, j)
	}
	sort.Slice(all, func(i, k int) bool {
		return all[i].Index < all[k].Index
	})
	for _, j := range all {
		if j.Complete {
			completed = append(completed, j)
		} else {
			active = append(active, j)
		}
	}
	return active, completed
}

func (m *Manager) writeJob(b *strings.Builder, j *jobOutput, withStreams bool) int {
	elapsed := time.Since(j.StartTime)
	if j.Complete {
		elapsed = j.LastUpdated.Sub(j.StartTime)
	}
	fmt.Fprintf(b, "  %s %s %s\n", m.statusIndicator(j.Status), debugStyle.Render(elapsed.Round(time.Second).String()), m.styledMessage(j))
	lines := 1
	if withStreams {
		for _, line := range j.StreamLines {
			fmt.Fprintf(b, "      %s\n", streamStyle.Render(line))
			lines++
		}
	}
	return lines
}

func (m *Manager) render() string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	var b strings.Builder
	available := m.height - 3
	if m.numLines > 0 {
		fmt.Fprintf(&b, "\033[%dA\033[J", m.numLines)
	}
	active, completed := m.sortJobs()
	lineCount := 0
	if len(completed) > 8 {
		fmt.Fprintf(&b, "  %s\n", infoStyle.Render(fmt.Sprintf("%d jobs completed ...", len(completed)-8)))
		completed = completed[len(completed)-8:]
		lineCount++
	}
	for _, j := range completed {
		if lineCount >= available {
			break
		}
		lineCount += m.writeJob(&b, j, false)
	}
	for _, j := range active {
		if lineCount >= available {
			break
		}
		lineCount += m.writeJob(&b, j, true)
	}
	m.numLines = lineCount
	return b.String()
}

func (m *Manager) StartDisplay() {
	if !m.interactive {
		return
	}
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				io.WriteString(m.out, m.render())
			case <-m.doneCh:
				io.WriteString(m.out, m.render())
				return
			}
		}
	}()
}

// StopDisplay draws the final frame and the summary.
func (m *Manager) StopDisplay() {
	m.stopOnce.Do(func() {
		close(m.doneCh)
		m.displayWg.Wait()
		if !m.interactive {
			m.printFinal()
		}
		m.ShowSummary()
	})
}

func (m *Manager) printFinal() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	active, completed := m.sortJobs()
	var b strings.Builder
	for _, j := range append(completed, active...) {
		m.writeJob(&b, j, false)
	}
	io.WriteString(m.out, b.String())
}

func (m *Manager) ShowSummary() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	var success, failures int
	for _, j := range m.jobs {
		switch j.Status {
		case statusSuccess:
			success++
		case statusError:
			failures++
		}
	}
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, "  "+summaryStyle.Render(fmt.Sprintf("Completed %d of %d", success, len(m.jobs))))
	if failures > 0 {
		fmt.Fprintln(m.out, "  "+errorStyle.Render(fmt.Sprintf("Failed %d of %d", failures, len(m.jobs))))
	}
	if len(m.errors) > 0 {
		fmt.Fprintln(m.out)
		fmt.Fprintln(m.out, "  "+errorStyle.Bold(true).Render("Errors:"))
		for i, e := range m.errors {
			fmt.Fprintf(m.out, "    %s %s %s\n",
				errorStyle.Render(fmt.Sprintf("%d.", i+1)),
				debugStyle.Render(fmt.Sprintf("[%s]", e.Time.Format("15:04:05"))),
				errorStyle.Render(e.Label))
			fmt.Fprintf(m.out, "      %s\n", errorStyle.Render(fmt.Sprintf("Error: %v", e.Error)))
		}
	}
	fmt.Fprintln(m.out)
}
