package responder

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-ai/advisor-platform/internal/llm"
)

type stubLLM struct {
	reply string
	err   error
	reqs  []*llm.CompletionRequest
}

func (s *stubLLM) Name() string { return "stub" }

func (s *stubLLM) Complete(_ context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return nil, s.err
	}
	return &llm.CompletionResponse{Content: s.reply}, nil
}

func TestLLMResponderSendsCurrentMessage(t *testing.T) {
	client := &stubLLM{reply: "diversify across sectors"}
	r := NewLLMResponder(client)

	reply, err := r.Respond(context.Background(), Query{
		Message: "how should I invest?", ActorID: "u1", SessionID: "chat-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "diversify across sectors", reply.Response)
	assert.Equal(t, DefaultSuggestions, reply.Suggestions)
	assert.False(t, reply.ShowChart)

	require.Len(t, client.reqs, 1)
	require.Len(t, client.reqs[0].Messages, 1)
	assert.Equal(t, "user", client.reqs[0].Messages[0].Role)
	assert.Equal(t, "how should I invest?", client.reqs[0].Messages[0].Content)
}

func TestLLMResponderChartDetection(t *testing.T) {
	client := &stubLLM{reply: "here you go"}
	r := NewLLMResponder(client)

	reply, err := r.Respond(context.Background(), Query{Message: "show me a CHART of TCS"})
	require.NoError(t, err)
	assert.True(t, reply.ShowChart)
}

func TestLLMResponderPropagatesFailure(t *testing.T) {
	client := &stubLLM{err: errors.New("provider down")}
	r := NewLLMResponder(client)

	_, err := r.Respond(context.Background(), Query{Message: "hello"})
	assert.Error(t, err)
}
