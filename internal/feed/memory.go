package feed

import "context"

// Memory is an in-process broker. Publish delivers synchronously to the
// subscribers of this process only.
type Memory struct {
	*hub
}

func NewMemory() *Memory {
	return &Memory{hub: newHub()}
}

func (m *Memory) Publish(_ context.Context, topic, payload string) error {
	m.dispatch(Message{Topic: topic, Payload: payload})
	return nil
}

func (m *Memory) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}
