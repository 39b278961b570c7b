package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/haasonsaas/overseer/pkg/models"
)

var echoSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"message": {"type": "string"},
		"count": {"type": "integer", "minimum": 1}
	},
	"required": ["message"]
}`)

func newTestClient() *StaticClient {
	c := NewStaticClient()
	c.Register(models.ToolDescriptor{
		Name:        "echo",
		Description: "echoes the message",
		Parameters:  echoSchema,
	}, func(ctx context.Context, params map[string]any) (any, error) {
		return params["message"], nil
	})
	c.Register(models.ToolDescriptor{
		Name: "fail",
	}, func(ctx context.Context, params map[string]any) (any, error) {
		return nil, errors.New("tool broke")
	})
	return c
}

func TestStaticClientListTools(t *testing.T) {
	c := newTestClient()
	cat, err := c.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if cat.Len() != 2 {
		t.Fatalf("catalog size = %d, want 2", cat.Len())
	}
	if _, ok := cat.Get("echo"); !ok {
		t.Errorf("echo not in catalog")
	}
}

func TestStaticClientExecute(t *testing.T) {
	c := newTestClient()

	outcome, err := c.ExecuteTool(context.Background(), "echo", map[string]any{"message": "hi"})
	if err != nil {
		t.Fatalf("ExecuteTool: %v", err)
	}
	if !outcome.OK || outcome.Data != "hi" {
		t.Errorf("outcome = %+v, want ok with data hi", outcome)
	}
}

func TestStaticClientExecuteToolError(t *testing.T) {
	c := newTestClient()
	outcome, err := c.ExecuteTool(context.Background(), "fail", nil)
	if err != nil {
		t.Fatalf("ExecuteTool: %v", err)
	}
	if outcome.OK || outcome.Error != "tool broke" {
		t.Errorf("outcome = %+v, want tool broke error", outcome)
	}
}

func TestStaticClientToolNotFound(t *testing.T) {
	c := newTestClient()
	outcome, err := c.ExecuteTool(context.Background(), "missing", nil)
	if err != nil {
		t.Fatalf("ExecuteTool: %v", err)
	}
	if outcome.OK || !strings.Contains(outcome.Error, "tool not found") {
		t.Errorf("outcome = %+v, want tool-not-found error", outcome)
	}
}

func TestValidateParams(t *testing.T) {
	tool := models.ToolDescriptor{Name: "echo", Parameters: echoSchema}

	tests := []struct {
		name    string
		params  map[string]any
		wantErr bool
	}{
		{"valid", map[string]any{"message": "hi"}, false},
		{"valid with int", map[string]any{"message": "hi", "count": 3}, false},
		{"missing required", map[string]any{"count": 3}, true},
		{"wrong type", map[string]any{"message": 7}, true},
		{"below minimum", map[string]any{"message": "hi", "count": 0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParams(tool, tt.params)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateParams() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateParamsNoSchema(t *testing.T) {
	tool := models.ToolDescriptor{Name: "anything"}
	if err := ValidateParams(tool, map[string]any{"whatever": true}); err != nil {
		t.Errorf("schema-less tool rejected params: %v", err)
	}
}
