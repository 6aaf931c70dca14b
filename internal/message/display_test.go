package message

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayBasicTurn(t *testing.T) {
	out := Display([]Message{
		{ID: "localHuman", Text: "hello there"},
		{ID: "repeat_query", Text: "hello there"},
	}, DisplayOptions{})

	assert.Equal(t, "[localHuman]: hello there\n[repeat_query]: hello there", out)
}

func TestDisplaySkipsEmptyActs(t *testing.T) {
	out := Display([]Message{{}, {ID: "bot", Text: "hi"}}, DisplayOptions{})
	assert.Equal(t, "[bot]: hi", out)
}

func TestDisplayEpisodeDone(t *testing.T) {
	out := Display([]Message{{ID: "localHuman", EpisodeDone: true}}, DisplayOptions{})
	assert.Equal(t, episodeDoneLine, out)

	out = Display([]Message{{ID: "bot", Text: "bye", EpisodeDone: true}}, DisplayOptions{})
	assert.Equal(t, "[bot]: bye\n"+episodeDoneLine, out)
}

func TestDisplayIgnoreFields(t *testing.T) {
	reward := 0.5
	msg := Message{
		ID:              "bot",
		Text:            "pick one",
		Labels:          []string{"a"},
		LabelCandidates: []string{"a", "b"},
		TextCandidates:  []string{"c"},
		Reward:          &reward,
		Extra:           map[string]string{"zeta": "z", "alpha": "a"},
	}

	out := Display([]Message{msg}, DisplayOptions{IgnoreFields: []string{FieldLabelCandidates, FieldTextCandidates, "zeta"}})
	assert.Equal(t, "[bot]: pick one\n[labels]: a\n[reward]: 0.5\n[alpha]: a", out)

	out = Display([]Message{msg}, DisplayOptions{})
	assert.Contains(t, out, "[label_candidates]: a| b")
	assert.Contains(t, out, "[text_candidates]: c")
	assert.Less(t, strings.Index(out, "[alpha]"), strings.Index(out, "[zeta]"))
}

func TestDisplayTruncatesCandidates(t *testing.T) {
	var cands []string
	for i := 0; i < 13; i++ {
		cands = append(cands, fmt.Sprintf("c%d", i))
	}
	out := Display([]Message{{ID: "bot", Text: "x", LabelCandidates: cands}}, DisplayOptions{})

	assert.Contains(t, out, "c9| ... and 3 more")
	assert.NotContains(t, out, "c10")
}

func TestDisplayPrettify(t *testing.T) {
	out := Display([]Message{{ID: "bot", Text: "x", TextCandidates: []string{"first", "second"}}}, DisplayOptions{Prettify: true})

	assert.Contains(t, out, "[text_candidates]:")
	assert.Contains(t, out, "rank")
	assert.Contains(t, out, "first")
	assert.Contains(t, out, "second")
	assert.NotContains(t, out, "first| second")
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, Message{}.IsEmpty())
	assert.True(t, Message{Text: "   "}.IsEmpty())
	assert.False(t, Message{EpisodeDone: true}.IsEmpty())
	assert.False(t, Message{ID: "x"}.IsEmpty())
}
