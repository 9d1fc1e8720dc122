package utcp

import (
	"context"
	"testing"
)

func newSearchRepo(t *testing.T, tools ...Tool) ToolRepository {
	t.Helper()
	repo := NewInMemoryToolRepository()
	prov := &CliProvider{BaseProvider: BaseProvider{Name: "p"}}
	if err := repo.SaveProviderWithTools(context.Background(), prov, tools); err != nil {
		t.Fatalf("seeding repo: %v", err)
	}
	return repo
}

func TestTagSearchStrategyScoresTagMatchAboveNoMatch(t *testing.T) {
	repo := newSearchRepo(t,
		Tool{Name: "p.weather", Description: "current conditions", Tags: []string{"weather", "forecast"}},
		Tool{Name: "p.unrelated", Description: "does something else entirely", Tags: []string{"misc"}},
	)
	strategy := NewTagSearchStrategy(repo, 1.0)

	results, err := strategy.SearchTools(context.Background(), "weather forecast", 0)
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(results) == 0 || results[0].Name != "p.weather" {
		t.Fatalf("expected weather tool first, got %#v", results)
	}
}

func TestTagSearchStrategyFallsBackToInsertionOrderWhenAllZero(t *testing.T) {
	repo := newSearchRepo(t,
		Tool{Name: "p.first", Description: "alpha"},
		Tool{Name: "p.second", Description: "beta"},
	)
	strategy := NewTagSearchStrategy(repo, 1.0)

	results, err := strategy.SearchTools(context.Background(), "nothing matches anything here", 0)
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(results) != 2 || results[0].Name != "p.first" || results[1].Name != "p.second" {
		t.Fatalf("expected insertion-order fallback, got %#v", results)
	}
}

func TestTagSearchStrategyLimit(t *testing.T) {
	repo := newSearchRepo(t,
		Tool{Name: "p.a", Tags: []string{"x"}},
		Tool{Name: "p.b", Tags: []string{"x"}},
		Tool{Name: "p.c", Tags: []string{"x"}},
	)
	strategy := NewTagSearchStrategy(repo, 1.0)

	results, err := strategy.SearchTools(context.Background(), "x", 2)
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected limit to cap results at 2, got %d", len(results))
	}
}

func TestTagSearchStrategyShortDescriptionTokensIgnored(t *testing.T) {
	repo := newSearchRepo(t,
		Tool{Name: "p.short", Description: "to do it"},
	)
	strategy := NewTagSearchStrategy(repo, 1.0)

	results, err := strategy.SearchTools(context.Background(), "to do it", 0)
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	// every description token here is length <= 2, so none should score,
	// and the single tool should still come back via the zero-score fallback.
	if len(results) != 1 {
		t.Fatalf("expected fallback to still return the tool, got %#v", results)
	}
}
