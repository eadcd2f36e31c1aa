package runtime

import (
	"context"

	"go.uber.org/zap"

	"github.com/groupkit-ai/groupkit/types"
)

// ParticipantTopic returns the private topic of a participant within a
// group.
func ParticipantTopic(groupTopic, name string) string {
	return groupTopic + "/" + name
}

// AgentContainer hosts one participant on the fabric. It subscribes to the
// group topic to record the shared conversation and to its private topic to
// receive turn requests; on a request it invokes the agent with the recorded
// history and publishes the response back to the group topic.
//
// A container's envelopes arrive through a single router mailbox, so its
// history buffer needs no locking: broadcasts and requests are handled one
// at a time, in publish order.
type AgentContainer struct {
	agent      types.Agent
	router     *Router
	groupTopic string
	topic      string
	buffer     []types.Message
	logger     *zap.Logger
}

// NewAgentContainer creates a container for the agent in the given group.
func NewAgentContainer(agent types.Agent, router *Router, groupTopic string, logger *zap.Logger) *AgentContainer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentContainer{
		agent:      agent,
		router:     router,
		groupTopic: groupTopic,
		topic:      ParticipantTopic(groupTopic, agent.Name()),
		logger: logger.With(
			zap.String("component", "agent_container"),
			zap.String("agent", agent.Name()),
		),
	}
}

// Topic returns the container's private request topic.
func (c *AgentContainer) Topic() string {
	return c.topic
}

// Start registers the container on the router and subscribes it to the
// group and private topics.
func (c *AgentContainer) Start(ctx context.Context) error {
	if err := c.router.Register(ctx, c.topic, c.handle); err != nil {
		return err
	}
	if err := c.router.Subscribe(c.groupTopic, c.topic); err != nil {
		return err
	}
	return c.router.Subscribe(c.topic, c.topic)
}

func (c *AgentContainer) handle(ctx context.Context, env Envelope) {
	switch env.Kind {
	case EnvelopeStart, EnvelopeResponse:
		c.buffer = append(c.buffer, env.Message)
	case EnvelopeReset:
		c.buffer = nil
	case EnvelopeRequest:
		c.produceTurn(ctx)
	case EnvelopeTermination:
		// Nothing to do; the buffer survives for checkpoint inspection
		// until the next reset.
	}
}

// produceTurn invokes the agent and publishes its turn on the group topic.
// Agent failures are published as error envelopes so the manager ends the
// run observably instead of waiting forever.
func (c *AgentContainer) produceTurn(ctx context.Context) {
	history := make([]types.Message, len(c.buffer))
	copy(history, c.buffer)

	resp, err := c.agent.OnMessages(ctx, history)
	if err != nil {
		c.logger.Error("agent turn failed", zap.Error(err))
		c.publish(ctx, Envelope{
			Topic:  c.groupTopic,
			Kind:   EnvelopeResponse,
			Sender: c.agent.Name(),
			Err:    err.Error(),
		})
		return
	}

	msg := resp.Message
	if msg.Source == "" {
		msg.Source = c.agent.Name()
	}
	c.publish(ctx, Envelope{
		Topic:   c.groupTopic,
		Kind:    EnvelopeResponse,
		Sender:  c.agent.Name(),
		Message: msg,
	})
}

func (c *AgentContainer) publish(ctx context.Context, env Envelope) {
	if err := c.router.Publish(ctx, env); err != nil {
		c.logger.Error("failed to publish response", zap.Error(err))
	}
}
