package config

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Scoring collects every tunable threshold and weight used while matching
// references and rating relevance. Defaults come from DefaultScoring and
// can be overridden by a YAML file.
type Scoring struct {
	Match     MatchScoring     `yaml:"match"`
	Relevance RelevanceScoring `yaml:"relevance"`
}

// MatchScoring configures deduplication and the match resolver.
type MatchScoring struct {
	DedupThreshold    float64 `yaml:"dedup_threshold"`
	PrimaryThreshold  float64 `yaml:"primary_threshold"`
	FallbackThreshold float64 `yaml:"fallback_threshold"`
	AuthorSimilarity  float64 `yaml:"author_similarity"`

	TitleWeight  float64 `yaml:"title_weight"`
	YearWeight   float64 `yaml:"year_weight"`
	AuthorWeight float64 `yaml:"author_weight"`

	// Blend used by the title similarity measure.
	SequenceWeight    float64 `yaml:"sequence_weight"`
	JaroWinklerWeight float64 `yaml:"jaro_winkler_weight"`
	JaccardWeight     float64 `yaml:"jaccard_weight"`

	// Credit for a year that is off by one.
	NearYearCredit float64 `yaml:"near_year_credit"`
}

// RelevanceScoring configures the relevance and justification evaluator.
type RelevanceScoring struct {
	TitleWeight    float64 `yaml:"title_weight"`
	ContentWeight  float64 `yaml:"content_weight"`
	KeywordWeight  float64 `yaml:"keyword_weight"`
	DomainWeight   float64 `yaml:"domain_weight"`
	QualityWeight  float64 `yaml:"quality_weight"`
	SemanticWeight float64 `yaml:"semantic_weight"`

	Buckets []Bucket `yaml:"buckets"`

	JustifiedMinScore       int     `yaml:"justified_min_score"`
	JustifiedMinContainment float64 `yaml:"justified_min_containment"`
}

// Bucket maps a composite relevance signal to a 0-5 score. A composite
// signal at or above Min earns Score.
type Bucket struct {
	Min   float64 `yaml:"min"`
	Score int     `yaml:"score"`
}

// DefaultScoring returns the documented default constants.
func DefaultScoring() Scoring {
	return Scoring{
		Match: MatchScoring{
			DedupThreshold:    0.85,
			PrimaryThreshold:  0.7,
			FallbackThreshold: 0.6,
			AuthorSimilarity:  0.8,
			TitleWeight:       0.6,
			YearWeight:        0.2,
			AuthorWeight:      0.2,
			SequenceWeight:    0.4,
			JaroWinklerWeight: 0.3,
			JaccardWeight:     0.3,
			NearYearCredit:    0.5,
		},
		Relevance: RelevanceScoring{
			TitleWeight:    0.20,
			ContentWeight:  0.25,
			KeywordWeight:  0.20,
			DomainWeight:   0.15,
			QualityWeight:  0.20,
			SemanticWeight: 0.15,
			Buckets: []Bucket{
				{Min: 0.65, Score: 5},
				{Min: 0.50, Score: 4},
				{Min: 0.35, Score: 3},
				{Min: 0.22, Score: 2},
				{Min: 0.10, Score: 1},
			},
			JustifiedMinScore:       3,
			JustifiedMinContainment: 0.2,
		},
	}
}

// LoadScoring returns the defaults overlaid with the YAML file at path.
// An empty path yields the defaults.
func LoadScoring(path string) (Scoring, error) {
	s := DefaultScoring()
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("reading scoring file: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parsing scoring file: %w", err)
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Validate checks thresholds are in range and sorts the buckets so the
// highest lower bound comes first.
func (s *Scoring) Validate() error {
	m := s.Match
	for name, v := range map[string]float64{
		"dedup_threshold":    m.DedupThreshold,
		"primary_threshold":  m.PrimaryThreshold,
		"fallback_threshold": m.FallbackThreshold,
		"author_similarity":  m.AuthorSimilarity,
	} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("match.%s must be in (0,1], got %v", name, v)
		}
	}
	if m.FallbackThreshold > m.PrimaryThreshold {
		return errors.New("match.fallback_threshold must not exceed match.primary_threshold")
	}
	if m.TitleWeight+m.YearWeight+m.AuthorWeight <= 0 {
		return errors.New("match weights must not all be zero")
	}
	if m.SequenceWeight+m.JaroWinklerWeight+m.JaccardWeight <= 0 {
		return errors.New("title similarity weights must not all be zero")
	}
	if len(s.Relevance.Buckets) == 0 {
		return errors.New("relevance.buckets must not be empty")
	}
	for _, b := range s.Relevance.Buckets {
		if b.Score < 0 || b.Score > 5 {
			return fmt.Errorf("bucket score %d outside 0-5", b.Score)
		}
	}
	sort.SliceStable(s.Relevance.Buckets, func(i, j int) bool {
		return s.Relevance.Buckets[i].Min > s.Relevance.Buckets[j].Min
	})
	return nil
}

// BucketScore maps a composite signal in [0,1] to the 0-5 scale.
func (r RelevanceScoring) BucketScore(composite float64) int {
	for _, b := range r.Buckets {
		if composite >= b.Min {
			return b.Score
		}
	}
	return 0
}
