// Package human implements the agent that reads replies from a person at the
// terminal.
package human

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"parley/internal/config"
	"parley/internal/message"
)

// ID is the speaker name of the local human.
const ID = "localHuman"

const (
	doneMarker = "[DONE]"
	exitMarker = "[EXIT]"
	banner     = "Enter [DONE] if you want to end the episode, [EXIT] to quit."
)

var (
	promptStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8BC34A"))
	partnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#2196F3"))
	bannerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107"))
)

// Agent reads one line of input per act.
type Agent struct {
	scanner    *bufio.Scanner
	lines      chan string
	readErr    error
	startRead  sync.Once
	out        io.Writer
	singleTurn bool
	candidates []string
	display    message.DisplayOptions
	finished   bool
}

// New creates the human agent. Label candidates are loaded from
// opts.LocalHumanCandidatesFile when set.
func New(opts config.Options, in io.Reader, out io.Writer) (*Agent, error) {
	candidates, err := loadCandidates(opts.LocalHumanCandidatesFile)
	if err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return &Agent{
		scanner:    scanner,
		lines:      make(chan string),
		out:        out,
		singleTurn: opts.SingleTurn,
		candidates: candidates,
		display: message.DisplayOptions{
			IgnoreFields: opts.IgnoreFields,
			Prettify:     opts.DisplayPrettify,
		},
	}, nil
}

func loadCandidates(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open candidates file: %w", err)
	}
	defer f.Close()

	var candidates []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			candidates = append(candidates, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read candidates file: %w", err)
	}
	return candidates, nil
}

func (a *Agent) ID() string { return ID }

// Banner prints the usage hint shown before the first prompt.
func (a *Agent) Banner() {
	fmt.Fprintln(a.out, bannerStyle.Render(banner))
}

// Observe prints the partner's act.
func (a *Agent) Observe(msg message.Message) {
	if text := message.Display([]message.Message{msg}, a.display); text != "" {
		fmt.Fprintln(a.out, partnerStyle.Render(text))
	}
}

// Act prompts for and reads one line. "[DONE]" ends the episode; "[EXIT]",
// the end of input or a cancelled context finishes the agent.
func (a *Agent) Act(ctx context.Context) (message.Message, error) {
	if a.finished {
		return message.Message{ID: ID, EpisodeDone: true}, nil
	}
	if ctx.Err() != nil {
		return a.finish(), nil
	}

	a.startRead.Do(func() { go a.readLines() })
	fmt.Fprint(a.out, promptStyle.Render("Enter Your Message:")+" ")

	var line string
	select {
	case <-ctx.Done():
		return a.finish(), nil
	case l, ok := <-a.lines:
		if !ok {
			msg := a.finish()
			if a.readErr != nil {
				return message.Message{}, fmt.Errorf("read input: %w", a.readErr)
			}
			return msg, nil
		}
		line = l
	}

	text := strings.ReplaceAll(line, `\n`, "\n")
	reply := message.Message{
		ID:              ID,
		EpisodeDone:     a.singleTurn,
		LabelCandidates: a.candidates,
	}
	if strings.Contains(text, doneMarker) {
		reply.EpisodeDone = true
		text = strings.ReplaceAll(text, doneMarker, "")
	}
	if strings.Contains(text, exitMarker) {
		a.finished = true
		return message.Message{ID: ID, EpisodeDone: true}, nil
	}
	reply.Text = strings.TrimSpace(text)
	return reply, nil
}

// readLines feeds input lines to Act until the input ends. When Act is
// cancelled a pending terminal read is left behind.
func (a *Agent) readLines() {
	defer close(a.lines)
	for a.scanner.Scan() {
		a.lines <- a.scanner.Text()
	}
	a.readErr = a.scanner.Err()
}

func (a *Agent) finish() message.Message {
	a.finished = true
	fmt.Fprintln(a.out)
	return message.Message{ID: ID, EpisodeDone: true}
}

// Finished reports whether the human asked to quit or input ran out.
func (a *Agent) Finished() bool { return a.finished }

func (a *Agent) Reset() {}

func (a *Agent) Shutdown() error { return nil }
