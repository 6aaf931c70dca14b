package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"parley/internal/config"
	"parley/internal/message"
	"parley/internal/remote"
)

const resetTimeout = 10 * time.Second

var errNoEndpoint = errors.New("remote agents need an endpoint in the model file")

// remoteAgent forwards observations and acts to an agent in another process.
// Observations are queued and delivered right before the next act.
type remoteAgent struct {
	id      string
	client  remote.Client
	pending []message.Message
	logger  *slog.Logger
}

func newRemoteAgent(ctx context.Context, _ config.Options, mf config.ModelFile, deps Deps) (Agent, error) {
	if mf.Endpoint == "" {
		return nil, errNoEndpoint
	}

	client, err := remote.Dial(ctx, mf.Endpoint, deps.Logger)
	if err != nil {
		return nil, err
	}

	var init remote.InitializeResult
	err = client.Call(ctx, remote.MethodInitialize, remote.InitializeParams{
		ClientName: "parley",
		ModelFile:  mf.Path,
	}, &init)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("initialize remote agent: %w", err)
	}

	id := init.AgentID
	if id == "" {
		id = config.ModelRemote
	}
	return &remoteAgent{id: id, client: client, logger: deps.Logger}, nil
}

func (a *remoteAgent) ID() string { return a.id }

func (a *remoteAgent) Observe(msg message.Message) {
	a.pending = append(a.pending, msg)
}

func (a *remoteAgent) Act(ctx context.Context) (message.Message, error) {
	for len(a.pending) > 0 {
		if err := a.client.Call(ctx, remote.MethodObserve, remote.ObserveParams{Message: a.pending[0]}, nil); err != nil {
			return message.Message{}, fmt.Errorf("deliver observation: %w", err)
		}
		a.pending = a.pending[1:]
	}

	var result remote.ActResult
	if err := a.client.Call(ctx, remote.MethodAct, nil, &result); err != nil {
		return message.Message{}, fmt.Errorf("remote act: %w", err)
	}
	if result.Message.ID == "" {
		result.Message.ID = a.id
	}
	return result.Message, nil
}

func (a *remoteAgent) Reset() {
	a.pending = nil
	ctx, cancel := context.WithTimeout(context.Background(), resetTimeout)
	defer cancel()
	if err := a.client.Call(ctx, remote.MethodReset, nil, nil); err != nil {
		a.logger.Warn("failed to reset remote agent", "id", a.id, "error", err)
	}
}

func (a *remoteAgent) Shutdown() error {
	return a.client.Close()
}
