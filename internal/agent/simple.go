package agent

import (
	"context"
	"math/rand"

	"parley/internal/config"
	"parley/internal/message"
)

// repeatQuery echoes whatever it observed.
type repeatQuery struct {
	observation *message.Message
}

func newRepeatQuery(context.Context, config.Options, config.ModelFile, Deps) (Agent, error) {
	return &repeatQuery{}, nil
}

func (a *repeatQuery) ID() string { return config.ModelRepeatQuery }

func (a *repeatQuery) Observe(msg message.Message) { a.observation = &msg }

func (a *repeatQuery) Act(context.Context) (message.Message, error) {
	if a.observation == nil {
		return message.Message{ID: a.ID(), Text: "Nothing to repeat yet."}, nil
	}
	text := a.observation.Text
	if text == "" {
		text = "I don't know"
	}
	return message.Message{ID: a.ID(), Text: text}, nil
}

func (a *repeatQuery) Reset() { a.observation = nil }

func (a *repeatQuery) Shutdown() error { return nil }

// randomCandidate answers with a shuffled pick from the label candidates it
// observed, or from the model file's candidate list.
type randomCandidate struct {
	rng         *rand.Rand
	fallback    []string
	observation *message.Message
}

func newRandomCandidate(_ context.Context, opts config.Options, mf config.ModelFile, _ Deps) (Agent, error) {
	return &randomCandidate{
		rng:      rand.New(rand.NewSource(opts.Seed)),
		fallback: mf.Candidates,
	}, nil
}

func (a *randomCandidate) ID() string { return config.ModelRandomCandidate }

func (a *randomCandidate) Observe(msg message.Message) { a.observation = &msg }

func (a *randomCandidate) Act(context.Context) (message.Message, error) {
	if a.observation == nil {
		return message.Message{ID: a.ID(), Text: "Nothing to say yet."}, nil
	}

	candidates := a.observation.LabelCandidates
	if len(candidates) == 0 {
		candidates = a.fallback
	}
	if len(candidates) == 0 {
		return message.Message{ID: a.ID(), Text: "I don't know."}, nil
	}

	shuffled := append([]string(nil), candidates...)
	a.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return message.Message{
		ID:             a.ID(),
		Text:           shuffled[0],
		TextCandidates: shuffled,
	}, nil
}

func (a *randomCandidate) Reset() { a.observation = nil }

func (a *randomCandidate) Shutdown() error { return nil }
