package utcp

import (
	"context"
	"testing"
)

func TestInMemoryToolRepositoryCRUD(t *testing.T) {
	repo := NewInMemoryToolRepository()
	ctx := context.Background()
	prov := &CliProvider{BaseProvider: BaseProvider{Name: "cli"}}
	tools := []Tool{{Name: "cli.echo"}}

	if err := repo.SaveProviderWithTools(ctx, prov, tools); err != nil {
		t.Fatalf("save error: %v", err)
	}
	if p, err := repo.GetProvider(ctx, "cli"); err != nil || p == nil {
		t.Fatalf("get provider failed: %v", err)
	}
	if ts, err := repo.GetTools(ctx); err != nil || len(ts) != 1 {
		t.Fatalf("get tools failed: %v, %d tools", err, len(ts))
	}
	if ts, err := repo.GetToolsByProvider(ctx, "cli"); err != nil || len(ts) != 1 {
		t.Fatalf("get tools by provider failed: %v", err)
	}
	if tl, err := repo.GetTool(ctx, "cli.echo"); err != nil || tl.Name != "cli.echo" {
		t.Fatalf("get tool failed: %v", err)
	}

	if err := repo.RemoveTool(ctx, "cli.echo"); err != nil {
		t.Fatalf("remove tool failed: %v", err)
	}
	if ts, _ := repo.GetToolsByProvider(ctx, "cli"); len(ts) != 0 {
		t.Fatalf("expected no tools after removal, got %d", len(ts))
	}
	if err := repo.RemoveProvider(ctx, "cli"); err != nil {
		t.Fatalf("remove provider failed: %v", err)
	}
	if _, err := repo.GetProvider(ctx, "cli"); err == nil {
		t.Fatalf("expected error getting removed provider")
	}
}

func TestInMemoryToolRepositoryRemoveMissingProvider(t *testing.T) {
	repo := NewInMemoryToolRepository()
	if err := repo.RemoveProvider(context.Background(), "nope"); err == nil {
		t.Fatalf("expected ProviderNotFoundError")
	}
}

func TestInMemoryToolRepositoryInvalidToolName(t *testing.T) {
	repo := NewInMemoryToolRepository()
	ctx := context.Background()
	if _, err := repo.GetTool(ctx, "no-dot"); err == nil {
		t.Fatalf("expected InvalidToolNameError for a name with no provider prefix")
	}
	if err := repo.RemoveTool(ctx, ".leadingdot"); err == nil {
		t.Fatalf("expected InvalidToolNameError for an empty provider component")
	}
}

func TestInMemoryToolRepositorySaveReplacesToolList(t *testing.T) {
	repo := NewInMemoryToolRepository()
	ctx := context.Background()
	prov := &CliProvider{BaseProvider: BaseProvider{Name: "cli"}}

	if err := repo.SaveProviderWithTools(ctx, prov, []Tool{{Name: "cli.a"}, {Name: "cli.b"}}); err != nil {
		t.Fatalf("save error: %v", err)
	}
	if err := repo.SaveProviderWithTools(ctx, prov, []Tool{{Name: "cli.c"}}); err != nil {
		t.Fatalf("save error: %v", err)
	}
	ts, err := repo.GetToolsByProvider(ctx, "cli")
	if err != nil || len(ts) != 1 || ts[0].Name != "cli.c" {
		t.Fatalf("expected save to replace the tool list wholesale, got %#v, err=%v", ts, err)
	}
}
