package checkpoint

import (
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/overseer/internal/checkpoint/sources"
	"github.com/haasonsaas/overseer/pkg/models"
)

func init() {
	mustRegister("tracker_urgent", func(name string, config PointConfig, source sources.Source) (CheckingPoint, error) {
		return &TrackerUrgentPoint{BasePoint: NewBasePoint(name, "tracker_urgent", config, source)}, nil
	})
	mustRegister("tracker_overdue", func(name string, config PointConfig, source sources.Source) (CheckingPoint, error) {
		return &TrackerOverduePoint{
			BasePoint: NewBasePoint(name, "tracker_overdue", config, source),
			now:       time.Now,
		}, nil
	})
	mustRegister("tracker_smart_assignment", func(name string, config PointConfig, source sources.Source) (CheckingPoint, error) {
		return &TrackerAssignmentPoint{BasePoint: NewBasePoint(name, "tracker_smart_assignment", config, source)}, nil
	})
}

// urgentPriorities are the tracker priority values that demand action.
var urgentPriorities = map[string]float64{
	"critical": 1.0,
	"urgent":   0.9,
	"high":     0.7,
}

// TrackerUrgentPoint matches tracker tasks whose priority demands
// immediate attention.
type TrackerUrgentPoint struct {
	BasePoint
}

func (p *TrackerUrgentPoint) CanHandle(datum models.MonitoringDatum) bool {
	return datum.Type == models.DatumTask
}

func (p *TrackerUrgentPoint) Evaluate(datum models.MonitoringDatum) models.CheckResult {
	priority := strings.ToLower(payloadString(datum, "priority"))
	confidence, ok := urgentPriorities[priority]
	if !ok {
		return p.NoMatch("priority " + priority + " below threshold")
	}
	return p.Match(confidence,
		fmt.Sprintf("task %s has priority %s", datum.ID, priority),
		map[string]any{
			"task_id":  datum.ID,
			"title":    payloadString(datum, "title"),
			"priority": priority,
		},
		"notify_oncall", "run_triage_workflow")
}

func (p *TrackerUrgentPoint) GetActions(datum models.MonitoringDatum, result models.CheckResult) []models.ImmediateAction {
	return []models.ImmediateAction{{
		Name:   "notify_oncall",
		Target: payloadString(datum, "team"),
		Parameters: map[string]any{
			"task_id": datum.ID,
			"reason":  result.Reason,
		},
	}}
}

func (p *TrackerUrgentPoint) GetAfterProcess(datum models.MonitoringDatum, result models.CheckResult) []models.AIAction {
	return p.AIActionFor(datum, result, "triage_urgent_task")
}

// TrackerOverduePoint matches open tasks past their due date.
type TrackerOverduePoint struct {
	BasePoint
	now func() time.Time
}

func (p *TrackerOverduePoint) CanHandle(datum models.MonitoringDatum) bool {
	return datum.Type == models.DatumTask
}

func (p *TrackerOverduePoint) Evaluate(datum models.MonitoringDatum) models.CheckResult {
	status := strings.ToLower(payloadString(datum, "status"))
	if status == "done" || status == "closed" {
		return p.NoMatch("task already " + status)
	}
	due, err := payloadTime(datum, "due_at")
	if err != nil {
		return p.Error(err)
	}
	if due.IsZero() || !due.Before(p.now()) {
		return p.NoMatch("task not overdue")
	}
	overdueBy := p.now().Sub(due)
	return p.Match(0.8,
		fmt.Sprintf("task %s overdue by %s", datum.ID, overdueBy.Round(time.Minute)),
		map[string]any{
			"task_id":    datum.ID,
			"title":      payloadString(datum, "title"),
			"overdue_by": overdueBy.String(),
		},
		"escalate")
}

func (p *TrackerOverduePoint) GetActions(datum models.MonitoringDatum, result models.CheckResult) []models.ImmediateAction {
	return []models.ImmediateAction{{
		Name:       "tag_overdue",
		Target:     datum.Source,
		Parameters: map[string]any{"task_id": datum.ID},
	}}
}

func (p *TrackerOverduePoint) GetAfterProcess(datum models.MonitoringDatum, result models.CheckResult) []models.AIAction {
	return p.AIActionFor(datum, result, "escalate_overdue_task")
}

// TrackerAssignmentPoint matches unassigned open tasks so an agent can
// suggest an owner.
type TrackerAssignmentPoint struct {
	BasePoint
}

func (p *TrackerAssignmentPoint) CanHandle(datum models.MonitoringDatum) bool {
	return datum.Type == models.DatumTask
}

func (p *TrackerAssignmentPoint) Evaluate(datum models.MonitoringDatum) models.CheckResult {
	if payloadString(datum, "assignee") != "" {
		return p.NoMatch("task already assigned")
	}
	status := strings.ToLower(payloadString(datum, "status"))
	if status == "done" || status == "closed" {
		return p.NoMatch("task already " + status)
	}
	return p.Match(0.6,
		fmt.Sprintf("task %s has no assignee", datum.ID),
		map[string]any{
			"task_id": datum.ID,
			"title":   payloadString(datum, "title"),
			"labels":  datum.Payload["labels"],
		},
		"suggest_assignee")
}

func (p *TrackerAssignmentPoint) GetActions(datum models.MonitoringDatum, result models.CheckResult) []models.ImmediateAction {
	return nil
}

func (p *TrackerAssignmentPoint) GetAfterProcess(datum models.MonitoringDatum, result models.CheckResult) []models.AIAction {
	return p.AIActionFor(datum, result, "suggest_task_assignee")
}

// payloadString reads a string field from the datum payload.
func payloadString(datum models.MonitoringDatum, key string) string {
	if datum.Payload == nil {
		return ""
	}
	s, _ := datum.Payload[key].(string)
	return s
}

// payloadTime reads a timestamp field, accepting time.Time or RFC 3339.
func payloadTime(datum models.MonitoringDatum, key string) (time.Time, error) {
	if datum.Payload == nil {
		return time.Time{}, nil
	}
	switch v := datum.Payload[key].(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return v, nil
	case string:
		if v == "" {
			return time.Time{}, nil
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse %s: %w", key, err)
		}
		return t, nil
	default:
		return time.Time{}, fmt.Errorf("unsupported %s type %T", key, v)
	}
}
