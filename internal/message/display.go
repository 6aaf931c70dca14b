package message

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

const (
	maxShownCandidates = 10
	episodeDoneLine    = "- - - - - - - END OF EPISODE - - - - - - - - - -"
)

// DisplayOptions controls how acts are rendered.
type DisplayOptions struct {
	IgnoreFields []string
	Prettify     bool
}

func (o DisplayOptions) ignored(field string) bool {
	for _, f := range o.IgnoreFields {
		if f == field {
			return true
		}
	}
	return false
}

// Display renders the given acts one after another. Empty acts are skipped.
func Display(msgs []Message, opts DisplayOptions) string {
	var lines []string
	for _, m := range msgs {
		if m.IsEmpty() {
			continue
		}
		lines = append(lines, displayOne(m, opts)...)
	}
	return strings.Join(lines, "\n")
}

func displayOne(m Message, opts DisplayOptions) []string {
	var lines []string
	id := m.ID
	if id == "" {
		id = "unknown"
	}
	if m.Text != "" || !m.EpisodeDone {
		lines = append(lines, fmt.Sprintf("[%s]: %s", id, m.Text))
	}

	if len(m.Labels) > 0 && !opts.ignored(FieldLabels) {
		lines = append(lines, fmt.Sprintf("[%s]: %s", FieldLabels, strings.Join(m.Labels, "|")))
	}
	for _, c := range []struct {
		field string
		items []string
	}{
		{FieldLabelCandidates, m.LabelCandidates},
		{FieldTextCandidates, m.TextCandidates},
	} {
		if len(c.items) == 0 || opts.ignored(c.field) {
			continue
		}
		if opts.Prettify {
			lines = append(lines, fmt.Sprintf("[%s]:", c.field), candidateTable(c.items))
		} else {
			lines = append(lines, fmt.Sprintf("[%s]: %s", c.field, joinCandidates(c.items)))
		}
	}
	if m.Reward != nil && !opts.ignored(FieldReward) {
		lines = append(lines, fmt.Sprintf("[%s]: %s", FieldReward, strconv.FormatFloat(*m.Reward, 'g', -1, 64)))
	}

	keys := make([]string, 0, len(m.Extra))
	for k := range m.Extra {
		if !opts.ignored(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("[%s]: %s", k, m.Extra[k]))
	}

	if m.EpisodeDone {
		lines = append(lines, episodeDoneLine)
	}
	return lines
}

func joinCandidates(items []string) string {
	if len(items) <= maxShownCandidates {
		return strings.Join(items, "| ")
	}
	return fmt.Sprintf("%s| ... and %d more", strings.Join(items[:maxShownCandidates], "| "), len(items)-maxShownCandidates)
}

func candidateTable(items []string) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("rank", "candidate")
	shown := items
	if len(shown) > maxShownCandidates {
		shown = shown[:maxShownCandidates]
	}
	for i, c := range shown {
		t.Row(strconv.Itoa(i+1), c)
	}
	if rest := len(items) - len(shown); rest > 0 {
		t.Row("...", fmt.Sprintf("and %d more", rest))
	}
	return t.String()
}
