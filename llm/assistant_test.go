package llm

import (
	"context"
	"errors"
	"testing"

	"paper-auditor/config"
	"paper-auditor/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClient struct {
	answer string
	err    error
	prompt string
}

func (f *fakeClient) Complete(_ context.Context, _, prompt string) (string, error) {
	f.prompt = prompt
	return f.answer, f.err
}

func (f *fakeClient) Model() string { return "fake" }
func (f *fakeClient) Close() error  { return nil }

func TestParseRelevance(t *testing.T) {
	v, err := ParseRelevance("SCORE: 4\nEXPLANATION: Directly on the same topic.")
	require.NoError(t, err)
	assert.Equal(t, 4, v.Score)
	assert.Equal(t, "Directly on the same topic.", v.Explanation)

	v, err = ParseRelevance("**Score:** 9\n**Explanation:** over the top")
	require.NoError(t, err)
	assert.Equal(t, 5, v.Score)
	assert.Equal(t, "over the top", v.Explanation)

	_, err = ParseRelevance("I think it is relevant.")
	assert.ErrorIs(t, err, ErrUnparseable)
}

func TestParseJustification(t *testing.T) {
	v, err := ParseJustification("JUSTIFIED: YES\nRATIONALE: The paper reports this result.")
	require.NoError(t, err)
	assert.True(t, v.Justified)
	assert.Equal(t, "The paper reports this result.", v.Rationale)

	v, err = ParseJustification("Justified: [NO]\nRationale: Different organism.")
	require.NoError(t, err)
	assert.False(t, v.Justified)

	_, err = ParseJustification("RATIONALE: missing verdict")
	assert.ErrorIs(t, err, ErrUnparseable)
}

func TestChatAssistantUsesPrompts(t *testing.T) {
	client := &fakeClient{answer: "JUSTIFIED: NO\nRATIONALE: unrelated"}
	a := NewChatAssistant(client, zap.NewNop())

	v, err := a.Justification(context.Background(), JustificationInput{
		Context: models.CitationContext{ClaimStatement: "Coffee improves memory.", SurroundingText: "We note that coffee improves memory."},
		Cited:   models.CitationMetadata{Title: "Soil bacteria in Iceland", Journal: "Microbiology"},
	})
	require.NoError(t, err)
	assert.False(t, v.Justified)
	assert.Contains(t, client.prompt, `"Coffee improves memory."`)
	assert.Contains(t, client.prompt, "Journal: Microbiology")

	client.err = errors.New("rate limited")
	_, err = a.Relevance(context.Background(), RelevanceInput{PaperTitle: "Coffee"})
	assert.Error(t, err)
}

func TestNewAssistant(t *testing.T) {
	cfg := &config.Config{}

	a, closeFn, err := NewAssistant(context.Background(), cfg, "", zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, Noop{}, a)
	assert.NoError(t, closeFn())

	_, _, err = NewAssistant(context.Background(), cfg, "gpt-99", zap.NewNop())
	assert.ErrorIs(t, err, config.ErrModelNotAllowed)

	// Allowed model without a key degrades to the heuristic-only assistant.
	a, _, err = NewAssistant(context.Background(), cfg, "openai/gpt-4o", zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, Noop{}, a)

	_, err = Noop{}.Relevance(context.Background(), RelevanceInput{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float64{1, 2}, []float64{2, 4}), 1e-9)
	assert.Zero(t, Cosine([]float64{1, 0}, []float64{-1, 0}))
	assert.Zero(t, Cosine(nil, nil))
}
