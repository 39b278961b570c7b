package catalog

import (
	"context"
	"strings"
	"testing"

	"github.com/haasonsaas/overseer/pkg/models"
)

func staticWith(name, reply string) *StaticClient {
	c := NewStaticClient()
	c.Register(models.ToolDescriptor{Name: name}, func(ctx context.Context, params map[string]any) (any, error) {
		return reply, nil
	})
	return c
}

func TestMultiClientMergesAndRoutes(t *testing.T) {
	multi := NewMultiClient(staticWith("alpha", "from-a"), staticWith("beta", "from-b"))

	catalog, err := multi.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(catalog.Tools) != 2 {
		t.Fatalf("merged tools = %d, want 2", len(catalog.Tools))
	}

	outcome, err := multi.ExecuteTool(context.Background(), "beta", nil)
	if err != nil {
		t.Fatalf("ExecuteTool: %v", err)
	}
	if !outcome.OK || outcome.Data != "from-b" {
		t.Errorf("outcome = %+v", outcome)
	}
}

func TestMultiClientFirstMemberOwnsDuplicates(t *testing.T) {
	multi := NewMultiClient(staticWith("echo", "first"), staticWith("echo", "second"))

	catalog, err := multi.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(catalog.Tools) != 1 {
		t.Fatalf("merged tools = %d, want 1", len(catalog.Tools))
	}
	outcome, err := multi.ExecuteTool(context.Background(), "echo", nil)
	if err != nil {
		t.Fatalf("ExecuteTool: %v", err)
	}
	if outcome.Data != "first" {
		t.Errorf("routed to %v, want first member", outcome.Data)
	}
}

func TestMultiClientUnknownTool(t *testing.T) {
	multi := NewMultiClient(staticWith("alpha", "a"))
	if _, err := multi.ExecuteTool(context.Background(), "missing", nil); err == nil || !strings.Contains(err.Error(), "unknown tool") {
		t.Errorf("err = %v, want unknown tool", err)
	}
}
