package utcp

import (
	"context"
	"regexp"
	"sort"
	"strings"
)

var searchWordRegex = regexp.MustCompile(`\w+`)

// SearchStrategy ranks tools against a free-text query (C9).
type SearchStrategy interface {
	SearchTools(ctx context.Context, query string, limit int) ([]Tool, error)
}

// TagSearchStrategy scores tools by tag-substring match and tag/description
// token overlap with the query's word set, grounded on the teacher's
// tag_search.go.
type TagSearchStrategy struct {
	repository        ToolRepository
	descriptionWeight float64
}

// NewTagSearchStrategy builds a TagSearchStrategy. descriptionWeight is the
// constructor-time constant w_desc from spec.md §4.5 (the teacher defaults
// it to 1.0).
func NewTagSearchStrategy(repository ToolRepository, descriptionWeight float64) *TagSearchStrategy {
	return &TagSearchStrategy{repository: repository, descriptionWeight: descriptionWeight}
}

type scoredTool struct {
	tool  Tool
	score float64
	order int
}

func (s *TagSearchStrategy) SearchTools(ctx context.Context, query string, limit int) ([]Tool, error) {
	tools, err := s.repository.GetTools(ctx)
	if err != nil {
		return nil, err
	}

	queryLower := strings.ToLower(query)
	words := make(map[string]struct{})
	for _, w := range searchWordRegex.FindAllString(queryLower, -1) {
		words[w] = struct{}{}
	}

	scored := make([]scoredTool, len(tools))
	for i, t := range tools {
		scored[i] = scoredTool{tool: t, score: s.score(t, queryLower, words), order: i}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	anyPositive := false
	for _, st := range scored {
		if st.score > 0 {
			anyPositive = true
			break
		}
	}
	if !anyPositive {
		sort.SliceStable(scored, func(i, j int) bool { return scored[i].order < scored[j].order })
	}

	if limit > 0 && limit < len(scored) {
		scored = scored[:limit]
	}

	out := make([]Tool, 0, len(scored))
	for _, st := range scored {
		if anyPositive && st.score <= 0 {
			continue
		}
		out = append(out, st.tool)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *TagSearchStrategy) score(t Tool, queryLower string, words map[string]struct{}) float64 {
	var score float64
	for _, tag := range t.Tags {
		tagLower := strings.ToLower(tag)
		if tagLower != "" && strings.Contains(queryLower, tagLower) {
			score += 1.0
		}
		for _, tok := range searchWordRegex.FindAllString(tagLower, -1) {
			if _, ok := words[tok]; ok {
				score += s.descriptionWeight
			}
		}
	}
	for _, tok := range searchWordRegex.FindAllString(strings.ToLower(t.Description), -1) {
		if len(tok) <= 2 {
			continue
		}
		if _, ok := words[tok]; ok {
			score += s.descriptionWeight
		}
	}
	return score
}
