package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"paper-auditor/config"
	"paper-auditor/models"

	"go.uber.org/zap"
)

// RelevanceInput describes a cited work against the citing paper.
type RelevanceInput struct {
	PaperTitle    string
	PaperAbstract string
	Cited         models.CitationMetadata
}

// JustificationInput describes one claim and the work cited for it.
type JustificationInput struct {
	Context models.CitationContext
	Cited   models.CitationMetadata
}

// RelevanceVerdict is the model's 0-5 relevance rating.
type RelevanceVerdict struct {
	Score       int
	Explanation string
}

// JustificationVerdict is the model's support decision for a claim.
type JustificationVerdict struct {
	Justified bool
	Rationale string
}

// Assistant rates relevance and justification with a language model.
type Assistant interface {
	Relevance(ctx context.Context, in RelevanceInput) (RelevanceVerdict, error)
	Justification(ctx context.Context, in JustificationInput) (JustificationVerdict, error)
}

// Noop is the assistant used when no model is configured.
type Noop struct{}

func (Noop) Relevance(context.Context, RelevanceInput) (RelevanceVerdict, error) {
	return RelevanceVerdict{}, ErrUnavailable
}

func (Noop) Justification(context.Context, JustificationInput) (JustificationVerdict, error) {
	return JustificationVerdict{}, ErrUnavailable
}

// ChatAssistant implements Assistant on top of a chat Client.
type ChatAssistant struct {
	client Client
	logger *zap.Logger
}

// NewChatAssistant wraps client.
func NewChatAssistant(client Client, logger *zap.Logger) *ChatAssistant {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatAssistant{client: client, logger: logger.With(zap.String("model", client.Model()))}
}

// NewAssistant returns the assistant for modelID. An empty id yields Noop.
// An id outside the allow-list is an error; a missing API key degrades to
// Noop with a warning. The returned close function releases the client.
func NewAssistant(ctx context.Context, cfg *config.Config, modelID string, logger *zap.Logger) (Assistant, func() error, error) {
	noClose := func() error { return nil }
	if strings.TrimSpace(modelID) == "" {
		return Noop{}, noClose, nil
	}
	spec, err := config.ResolveModel(modelID)
	if err != nil {
		return nil, noClose, err
	}
	client, err := NewClient(ctx, cfg, spec)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			logger.Warn("Language model unavailable, using heuristic evaluation only",
				zap.String("model", spec.ID()), zap.Error(err))
			return Noop{}, noClose, nil
		}
		return nil, noClose, err
	}
	return NewChatAssistant(client, logger), client.Close, nil
}

const systemPrompt = "You are a careful reviewer checking citations in scientific papers. Answer only in the requested format."

func (a *ChatAssistant) Relevance(ctx context.Context, in RelevanceInput) (RelevanceVerdict, error) {
	out, err := a.client.Complete(ctx, systemPrompt, RelevancePrompt(in))
	if err != nil {
		return RelevanceVerdict{}, err
	}
	v, err := ParseRelevance(out)
	if err != nil {
		a.logger.Debug("Unparseable relevance answer", zap.String("answer", out))
	}
	return v, err
}

func (a *ChatAssistant) Justification(ctx context.Context, in JustificationInput) (JustificationVerdict, error) {
	out, err := a.client.Complete(ctx, systemPrompt, JustificationPrompt(in))
	if err != nil {
		return JustificationVerdict{}, err
	}
	v, err := ParseJustification(out)
	if err != nil {
		a.logger.Debug("Unparseable justification answer", zap.String("answer", out))
	}
	return v, err
}

func citedInfo(m models.CitationMetadata, withAuthors bool) string {
	var b strings.Builder
	title := m.Title
	if title == "" {
		title = "Unknown"
	}
	fmt.Fprintf(&b, "Title: %s\n", title)
	if withAuthors && len(m.Authors) > 0 {
		authors := m.Authors
		if len(authors) > 3 {
			authors = authors[:3]
		}
		fmt.Fprintf(&b, "Authors: %s\n", strings.Join(authors, ", "))
	}
	switch {
	case m.Abstract != "":
		fmt.Fprintf(&b, "Abstract: %s\n", clip(m.Abstract, 500))
	case m.Journal != "":
		fmt.Fprintf(&b, "Journal: %s\n", m.Journal)
	}
	if withAuthors && m.Year > 0 {
		fmt.Fprintf(&b, "Year: %d\n", m.Year)
	}
	return b.String()
}

// RelevancePrompt builds the 0-5 relevance rating prompt.
func RelevancePrompt(in RelevanceInput) string {
	return fmt.Sprintf(`Please evaluate the topical relevance of the following citation to the target paper on a scale of 0-5:

0 = Completely irrelevant
1 = Tangentially related
2 = Somewhat related but not directly relevant
3 = Moderately relevant
4 = Highly relevant
5 = Extremely relevant and directly on-topic

TARGET PAPER:
Title: %s
Abstract: %s

CITATION TO EVALUATE:
%s
Please provide your evaluation in this exact format:
SCORE: [0-5]
EXPLANATION: [Brief explanation of why you gave this score]
`, in.PaperTitle, clip(in.PaperAbstract, 1000), citedInfo(in.Cited, true))
}

// JustificationPrompt builds the claim support prompt.
func JustificationPrompt(in JustificationInput) string {
	return fmt.Sprintf(`Please evaluate whether the following citation appropriately supports the claim being made in the paper.

CLAIM FROM PAPER:
"%s"

CITATION BEING USED:
%s
SURROUNDING CONTEXT:
%s

Does this citation appropriately support the claim being made? Consider:
1. Does the citation provide evidence for the specific claim?
2. Is the citation being used accurately (not misrepresented)?
3. Is the citation sufficient to support the claim?

Please provide your evaluation in this exact format:
JUSTIFIED: [YES/NO]
RATIONALE: [Brief explanation of your decision]
`, in.Context.ClaimStatement, citedInfo(in.Cited, false), in.Context.SurroundingText)
}

var (
	scoreLineRe = regexp.MustCompile(`(?i)^score\s*:\s*\[?\s*(\d)`)
	fieldLineRe = regexp.MustCompile(`(?i)^(explanation|rationale|justified)\s*:\s*(.*)$`)
)

// ErrUnparseable is returned when a model answer lacks the requested fields.
var ErrUnparseable = errors.New("unparseable model answer")

func answerLines(text string) []string {
	var out []string
	for _, l := range strings.Split(text, "\n") {
		l = strings.TrimSpace(strings.ReplaceAll(l, "*", ""))
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

// ParseRelevance reads "SCORE: n" and "EXPLANATION: ..." lines. The score
// is clamped to 0-5.
func ParseRelevance(text string) (RelevanceVerdict, error) {
	var v RelevanceVerdict
	found := false
	for _, l := range answerLines(text) {
		if m := scoreLineRe.FindStringSubmatch(l); m != nil {
			n, _ := strconv.Atoi(m[1])
			v.Score = min(max(n, 0), 5)
			found = true
			continue
		}
		if m := fieldLineRe.FindStringSubmatch(l); m != nil && strings.EqualFold(m[1], "explanation") {
			v.Explanation = strings.TrimSpace(m[2])
		}
	}
	if !found {
		return v, fmt.Errorf("%w: no SCORE line", ErrUnparseable)
	}
	return v, nil
}

// ParseJustification reads "JUSTIFIED: YES|NO" and "RATIONALE: ..." lines.
func ParseJustification(text string) (JustificationVerdict, error) {
	var v JustificationVerdict
	found := false
	for _, l := range answerLines(text) {
		m := fieldLineRe.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		switch strings.ToLower(m[1]) {
		case "justified":
			answer := strings.ToUpper(strings.Trim(strings.TrimSpace(m[2]), "[]"))
			v.Justified = strings.HasPrefix(answer, "YES")
			found = strings.HasPrefix(answer, "YES") || strings.HasPrefix(answer, "NO")
		case "rationale":
			v.Rationale = strings.TrimSpace(m[2])
		}
	}
	if !found {
		return v, fmt.Errorf("%w: no JUSTIFIED line", ErrUnparseable)
	}
	return v, nil
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
