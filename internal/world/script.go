package world

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"parley/internal/config"
	"parley/internal/message"
)

var scriptEscaper = strings.NewReplacer(`\`, `\\`, "\t", `\t`, "\n", `\n`, "\r", `\r`)

// scriptLine is an utterance, or a conversation break when brk is set.
type scriptLine struct {
	text string
	brk  bool
}

type scriptState struct {
	lines  []scriptLine
	next   int
	inConv int
	done   bool

	w      *bufio.Writer
	closer io.Closer
}

func loadScript(path string, multi bool) ([]scriptLine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open script input: %w", err)
	}
	defer f.Close()

	var lines []scriptLine
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(text, "#"):
		case text == "":
			if multi && len(lines) > 0 && !lines[len(lines)-1].brk {
				lines = append(lines, scriptLine{brk: true})
			}
		default:
			lines = append(lines, scriptLine{text: strings.ReplaceAll(text, `\n`, "\n")})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read script input: %w", err)
	}
	return lines, nil
}

func (w *DialogPartnerWorld) openScript(req ScriptRequest) error {
	if req.InputPath == "" {
		return config.ErrNoScriptInput
	}
	lines, err := loadScript(req.InputPath, req.Multi)
	if err != nil {
		return err
	}

	st := &scriptState{lines: lines}
	out := w.out
	if req.OutputPath != "" {
		if dir := filepath.Dir(req.OutputPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create script output directory: %w", err)
			}
		}
		f, err := os.Create(req.OutputPath)
		if err != nil {
			return fmt.Errorf("create script output: %w", err)
		}
		out, st.closer = f, f
	}
	st.w = bufio.NewWriter(out)
	fmt.Fprintf(st.w, "# model_file: %s\n", req.ModelFile)

	w.script = st
	w.logger.Info("loaded chat script", "input", req.InputPath, "output", req.OutputPath,
		"utterances", st.remaining(), "multi", req.Multi, "multi_num", req.MultiNum)
	return nil
}

// remaining counts the utterances not yet sent.
func (s *scriptState) remaining() int {
	n := 0
	for _, l := range s.lines[s.next:] {
		if !l.brk {
			n++
		}
	}
	return n
}

func (s *scriptState) write(input, response string) error {
	if _, err := fmt.Fprintf(s.w, "%s\t%s\n", scriptEscaper.Replace(input), scriptEscaper.Replace(response)); err != nil {
		return fmt.Errorf("write script output: %w", err)
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flush script output: %w", err)
	}
	return nil
}

// close flushes the output and closes it when it is a file. Safe to call twice.
func (s *scriptState) close() error {
	if s.w != nil {
		if err := s.w.Flush(); err != nil {
			return err
		}
	}
	if s.closer == nil {
		return nil
	}
	c := s.closer
	s.closer = nil
	return c.Close()
}

func (s *scriptState) finish() error {
	s.done = true
	return s.close()
}

// ParleyScript sends the next scripted utterance to the model agent and
// writes the input and the reply as one tab separated line.
//
// In single-turn mode the agent is reset before every utterance and each
// utterance ends its episode. In multi-turn mode utterances build up one
// conversation until a blank line in the input or, when req.MultiNum is
// positive, until MultiNum turns have been sent.
func (w *DialogPartnerWorld) ParleyScript(ctx context.Context, req ScriptRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if w.script == nil {
		if err := w.openScript(req); err != nil {
			return err
		}
	}
	st := w.script
	if st.done {
		return nil
	}

	model := w.agents[1]
	for st.next < len(st.lines) && st.lines[st.next].brk {
		model.Reset()
		st.inConv = 0
		st.next++
	}
	if st.next >= len(st.lines) {
		return st.finish()
	}

	ctx, span := w.tracer.Start(ctx, "world.parley_script",
		trace.WithAttributes(attribute.Int("script.line", st.next)))
	defer span.End()

	line := st.lines[st.next]
	st.next++

	if !req.Multi || (req.MultiNum > 0 && st.inConv >= req.MultiNum) {
		model.Reset()
		st.inConv = 0
	}
	act := message.Message{ID: w.agents[0].ID(), Text: line.text, EpisodeDone: !req.Multi}

	model.Observe(act)
	reply, err := model.Act(ctx)
	if err != nil {
		return w.fail(span, fmt.Errorf("%s act: %w", model.ID(), err))
	}
	w.acts = [2]message.Message{act, reply}
	st.inConv++

	if err := st.write(act.Text, reply.Text); err != nil {
		return w.fail(span, err)
	}
	w.record(ctx, w.acts[:]...)
	w.turns++

	if st.remaining() == 0 {
		return st.finish()
	}
	return nil
}
