package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/haasonsaas/overseer/internal/checkpoint/sources"
	"github.com/haasonsaas/overseer/pkg/models"
)

func taskDatum(id string, payload map[string]any) models.MonitoringDatum {
	return models.MonitoringDatum{
		ID:        id,
		Type:      models.DatumTask,
		Source:    "tracker",
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

func chatDatum(id, text, user string) models.MonitoringDatum {
	return models.MonitoringDatum{
		ID:      id,
		Type:    models.DatumChatMessage,
		Source:  "slack:C123",
		Payload: map[string]any{"text": text, "user": user, "channel": "C123"},
	}
}

func TestRegistryHasBuiltinTypes(t *testing.T) {
	want := []string{
		"tracker_urgent", "tracker_overdue", "tracker_smart_assignment",
		"chat_bot_mention", "chat_help_request", "chat_vip_user",
		"email_alert",
	}
	types := Default().Types()
	have := make(map[string]bool, len(types))
	for _, typ := range types {
		have[typ] = true
	}
	for _, typ := range want {
		if !have[typ] {
			t.Errorf("type %s not registered", typ)
		}
	}
}

func TestRegisterRejectsIncomplete(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("", nil); err == nil {
		t.Error("empty type accepted")
	}
	if err := r.Register("broken", nil); err == nil {
		t.Error("nil factory accepted")
	}
	if err := r.Register("broken", func(name string, config PointConfig, source sources.Source) (CheckingPoint, error) {
		return nil, nil
	}); err == nil {
		t.Error("nil-producing factory accepted")
	}
	if err := r.Register("mislabeled", func(name string, config PointConfig, source sources.Source) (CheckingPoint, error) {
		return &EmailAlertPoint{BasePoint: NewBasePoint(name, "email_alert", config, source)}, nil
	}); err == nil {
		t.Error("factory with mismatched type accepted")
	}
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	factory := func(name string, config PointConfig, source sources.Source) (CheckingPoint, error) {
		return &EmailAlertPoint{BasePoint: NewBasePoint(name, "email_alert", config, source)}, nil
	}
	if err := r.Register("email_alert", factory); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := r.Register("email_alert", factory); err == nil {
		t.Error("duplicate type accepted")
	}
}

func TestTrackerUrgentEvaluate(t *testing.T) {
	point, err := Default().Instantiate("tracker_urgent", "urgent", DefaultPointConfig(), nil)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}

	tests := []struct {
		name      string
		payload   map[string]any
		shouldAct bool
	}{
		{"critical", map[string]any{"priority": "critical", "title": "db down"}, true},
		{"urgent", map[string]any{"priority": "URGENT"}, true},
		{"low", map[string]any{"priority": "low"}, false},
		{"missing priority", map[string]any{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := point.Evaluate(taskDatum("T-1", tt.payload))
			if result.ShouldAct != tt.shouldAct {
				t.Errorf("should_act = %v, want %v (%s)", result.ShouldAct, tt.shouldAct, result.Reason)
			}
			if result.ShouldAct && result.ResultType != models.CheckMatch {
				t.Errorf("should_act without MATCH: %s", result.ResultType)
			}
		})
	}

	if point.CanHandle(chatDatum("M-1", "hi", "u1")) {
		t.Error("tracker point handled a chat datum")
	}
}

func TestTrackerOverdueEvaluate(t *testing.T) {
	point, err := Default().Instantiate("tracker_overdue", "overdue", DefaultPointConfig(), nil)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}

	past := time.Now().Add(-48 * time.Hour).Format(time.RFC3339)
	future := time.Now().Add(48 * time.Hour).Format(time.RFC3339)

	if r := point.Evaluate(taskDatum("T-1", map[string]any{"due_at": past, "status": "open"})); !r.ShouldAct {
		t.Errorf("overdue open task not matched: %s", r.Reason)
	}
	if r := point.Evaluate(taskDatum("T-2", map[string]any{"due_at": past, "status": "done"})); r.ShouldAct {
		t.Error("done task matched")
	}
	if r := point.Evaluate(taskDatum("T-3", map[string]any{"due_at": future, "status": "open"})); r.ShouldAct {
		t.Error("future-due task matched")
	}
	if r := point.Evaluate(taskDatum("T-4", map[string]any{"due_at": "not-a-time"})); r.ResultType != models.CheckError {
		t.Errorf("bad timestamp result = %s, want ERROR", r.ResultType)
	}
}

func TestChatVIPReadsConfigList(t *testing.T) {
	config := DefaultPointConfig()
	config.Params = map[string]any{"vip_users": []any{"U-CEO", "U-CTO"}}
	point, err := Default().Instantiate("chat_vip_user", "vip", config, nil)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}

	if r := point.Evaluate(chatDatum("M-1", "need this now", "U-CEO")); !r.ShouldAct {
		t.Errorf("VIP message not matched: %s", r.Reason)
	}
	if r := point.Evaluate(chatDatum("M-2", "need this now", "U-RANDO")); r.ShouldAct {
		t.Error("non-VIP message matched")
	}
}

func TestEvaluateDatumPriorityAndStopOnMatch(t *testing.T) {
	high := DefaultPointConfig()
	high.Priority = 9
	high.StopOnMatch = true
	low := DefaultPointConfig()
	low.Priority = 2

	mention, err := Default().Instantiate("chat_bot_mention", "mention", high, nil)
	if err != nil {
		t.Fatalf("Instantiate mention: %v", err)
	}
	help, err := Default().Instantiate("chat_help_request", "help", low, nil)
	if err != nil {
		t.Fatalf("Instantiate help: %v", err)
	}

	// Both points would match; the high-priority stop_on_match point
	// must run first and end the pass.
	datum := chatDatum("M-1", "@overseer help me restart the api", "u1")
	results := EvaluateDatum([]CheckingPoint{help, mention}, datum)
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1 (stop_on_match)", len(results))
	}
	if results[0].CheckingPointName != "mention" {
		t.Errorf("first result from %s, want mention", results[0].CheckingPointName)
	}

	// Without a mention, both points run and only help matches.
	datum = chatDatum("M-2", "help me restart the api", "u1")
	results = EvaluateDatum([]CheckingPoint{help, mention}, datum)
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].CheckingPointName != "mention" || results[0].ShouldAct {
		t.Errorf("first result = %+v, want mention NO_MATCH", results[0])
	}
	if !results[1].ShouldAct {
		t.Errorf("help point did not match: %s", results[1].Reason)
	}
}

func TestFetchAndEvaluate(t *testing.T) {
	source := sources.NewMemorySource(
		taskDatum("T-1", map[string]any{"priority": "critical"}),
		taskDatum("T-2", map[string]any{"priority": "low"}),
		chatDatum("M-1", "hello", "u1"),
	)
	point, err := Default().Instantiate("tracker_urgent", "urgent", DefaultPointConfig(), source)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}

	results, err := FetchAndEvaluate(context.Background(), point, nil)
	if err != nil {
		t.Fatalf("FetchAndEvaluate: %v", err)
	}
	// The chat datum is filtered by CanHandle.
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if !results[0].ShouldAct || results[1].ShouldAct {
		t.Errorf("unexpected outcomes: %+v", results)
	}
	if results[0].EvaluationDuration < 0 {
		t.Error("evaluation duration not recorded")
	}
}

func TestFetchAndEvaluateDisabledPoint(t *testing.T) {
	config := DefaultPointConfig()
	config.Enabled = false
	source := sources.NewMemorySource(taskDatum("T-1", map[string]any{"priority": "critical"}))
	point, err := Default().Instantiate("tracker_urgent", "urgent", config, source)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	results, err := FetchAndEvaluate(context.Background(), point, nil)
	if err != nil {
		t.Fatalf("FetchAndEvaluate: %v", err)
	}
	if results != nil {
		t.Errorf("disabled point produced results: %+v", results)
	}
}

func TestAIActionCarriesPointConfig(t *testing.T) {
	config := DefaultPointConfig()
	config.AIWorkflowEnabled = true
	config.AgentRole = "sre"
	config.PromptTemplateID = "triage-v1"
	config.ApprovalRequired = true
	config.ApprovalTimeout = 30 * time.Minute

	point, err := Default().Instantiate("tracker_urgent", "urgent", config, nil)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	datum := taskDatum("T-1", map[string]any{"priority": "critical"})
	result := point.Evaluate(datum)
	actions := point.GetAfterProcess(datum, result)
	if len(actions) != 1 {
		t.Fatalf("actions = %d, want 1", len(actions))
	}
	a := actions[0]
	if a.AgentRole != "sre" || a.PromptTemplateID != "triage-v1" || !a.ApprovalRequired {
		t.Errorf("action config not carried: %+v", a)
	}
	if a.CheckingPointName != "urgent" {
		t.Errorf("checking point name = %s", a.CheckingPointName)
	}
	if a.PromptVariables["task_id"] != "T-1" {
		t.Errorf("prompt variables missing task context: %+v", a.PromptVariables)
	}

	config.AIWorkflowEnabled = false
	disabled, err := Default().Instantiate("tracker_urgent", "urgent2", config, nil)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	if got := disabled.GetAfterProcess(datum, result); got != nil {
		t.Errorf("ai-disabled point emitted actions: %+v", got)
	}
}

func TestSetLookups(t *testing.T) {
	urgent, _ := Default().Instantiate("tracker_urgent", "urgent", DefaultPointConfig(), nil)
	overdue, _ := Default().Instantiate("tracker_overdue", "overdue", DefaultPointConfig(), nil)
	set := NewSet(urgent, overdue)

	if p, ok := set.GetByName("overdue"); !ok || p.Type() != "tracker_overdue" {
		t.Errorf("GetByName(overdue) = %v, %v", p, ok)
	}
	if _, ok := set.GetByName("missing"); ok {
		t.Error("GetByName(missing) found a point")
	}
	if got := set.GetByType("tracker_urgent"); len(got) != 1 {
		t.Errorf("GetByType = %d points, want 1", len(got))
	}
	if got := set.Filter(func(p CheckingPoint) bool { return true }); len(got) != 2 {
		t.Errorf("Filter(all) = %d points, want 2", len(got))
	}

	replacement, _ := Default().Instantiate("email_alert", "mail", DefaultPointConfig(), nil)
	set.Replace([]CheckingPoint{replacement})
	if got := set.All(); len(got) != 1 || got[0].Name() != "mail" {
		t.Errorf("Replace did not swap the set: %+v", got)
	}
}
