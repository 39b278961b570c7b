// Package checkpoint defines the checking-point contract: polymorphic
// monitors that fetch observations from external sources, evaluate them,
// and emit immediate actions plus AI workflow requests. Concrete points
// register themselves with the package registry at init time; the
// scheduler instantiates them from configuration.
package checkpoint

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/haasonsaas/overseer/internal/checkpoint/sources"
	"github.com/haasonsaas/overseer/pkg/models"
)

// PointConfig is the per-point configuration shared by all checking
// points. Point-specific settings travel in Params.
type PointConfig struct {
	Enabled bool `yaml:"enabled"`

	// Priority orders evaluation across points, 1..10, higher first.
	Priority int `yaml:"priority"`

	// StopOnMatch skips lower-priority points for a datum once this
	// point matched with should_act.
	StopOnMatch bool `yaml:"stop_on_match"`

	// AIWorkflowEnabled gates GetAfterProcess output.
	AIWorkflowEnabled bool `yaml:"ai_workflow_enabled"`

	PromptTemplateID string `yaml:"prompt_template_id"`
	AgentRole        string `yaml:"agent_role"`

	// Timeout bounds the point's FetchData call.
	Timeout time.Duration `yaml:"timeout"`

	ApprovalRequired bool          `yaml:"approval_required"`
	ApprovalTimeout  time.Duration `yaml:"approval_timeout"`

	// Params carries point-specific settings such as VIP lists or
	// keyword overrides.
	Params map[string]any `yaml:"params"`
}

// DefaultPointConfig returns a sane enabled configuration.
func DefaultPointConfig() PointConfig {
	return PointConfig{
		Enabled:     true,
		Priority:    5,
		StopOnMatch: false,
		Timeout:     30 * time.Second,
	}
}

// CheckingPoint is one polymorphic monitor.
type CheckingPoint interface {
	// Name identifies the point instance.
	Name() string

	// Type is the point's registered type identifier.
	Type() string

	// Config returns the point's configuration.
	Config() PointConfig

	// FetchData performs source I/O and produces typed observations.
	FetchData(ctx context.Context, params map[string]any) ([]models.MonitoringDatum, error)

	// Evaluate is a pure computation over one datum.
	Evaluate(datum models.MonitoringDatum) models.CheckResult

	// CanHandle is a quick filter applied before Evaluate.
	CanHandle(datum models.MonitoringDatum) bool

	// GetActions returns lightweight side effects for a matched datum.
	GetActions(datum models.MonitoringDatum, result models.CheckResult) []models.ImmediateAction

	// GetAfterProcess returns AI workflow requests for a matched datum.
	GetAfterProcess(datum models.MonitoringDatum, result models.CheckResult) []models.AIAction
}

// BasePoint carries the identity, configuration, and result helpers
// shared by concrete points. Embed it and implement the evaluation
// methods.
type BasePoint struct {
	name      string
	pointType string
	config    PointConfig
	source    sources.Source
}

// NewBasePoint creates the embeddable base.
func NewBasePoint(name, pointType string, config PointConfig, source sources.Source) BasePoint {
	return BasePoint{name: name, pointType: pointType, config: config, source: source}
}

func (b *BasePoint) Name() string        { return b.name }
func (b *BasePoint) Type() string        { return b.pointType }
func (b *BasePoint) Config() PointConfig { return b.config }

// FetchData delegates to the configured source.
func (b *BasePoint) FetchData(ctx context.Context, params map[string]any) ([]models.MonitoringDatum, error) {
	if b.source == nil {
		return nil, fmt.Errorf("checking point %s has no source", b.name)
	}
	return b.source.Fetch(ctx, params)
}

// Match builds a should_act result with the given confidence and reason.
func (b *BasePoint) Match(confidence float64, reason string, ctx map[string]any, suggested ...string) models.CheckResult {
	return models.CheckResult{
		CheckingPointName: b.name,
		CheckingPointType: b.pointType,
		ResultType:        models.CheckMatch,
		ShouldAct:         true,
		Confidence:        confidence,
		Reason:            reason,
		Context:           ctx,
		SuggestedActions:  suggested,
	}
}

// NoMatch builds a negative result.
func (b *BasePoint) NoMatch(reason string) models.CheckResult {
	return models.CheckResult{
		CheckingPointName: b.name,
		CheckingPointType: b.pointType,
		ResultType:        models.CheckNoMatch,
		Reason:            reason,
	}
}

// Error builds an evaluation-error result.
func (b *BasePoint) Error(err error) models.CheckResult {
	return models.CheckResult{
		CheckingPointName: b.name,
		CheckingPointType: b.pointType,
		ResultType:        models.CheckError,
		ErrorMessage:      err.Error(),
	}
}

// AIActionFor builds the point's standard AI workflow request for a
// matched datum. Returns nothing when the config disables AI workflows.
func (b *BasePoint) AIActionFor(datum models.MonitoringDatum, result models.CheckResult, name string) []models.AIAction {
	if !b.config.AIWorkflowEnabled {
		return nil
	}
	return []models.AIAction{{
		Name:              name,
		WorkflowName:      b.pointType,
		CheckingPointName: b.name,
		Timeout:           b.config.Timeout,
		PromptTemplateID:  b.config.PromptTemplateID,
		AgentRole:         b.config.AgentRole,
		ApprovalRequired:  b.config.ApprovalRequired,
		ApprovalTimeout:   b.config.ApprovalTimeout,
		Priority:          b.config.Priority,
		Parameters:        map[string]any{"datum_id": datum.ID, "source": datum.Source},
		PromptVariables:   result.Context,
	}}
}

// FetchAndEvaluate fetches the point's data and evaluates every datum it
// can handle. Disabled points return no results.
func FetchAndEvaluate(ctx context.Context, point CheckingPoint, params map[string]any) ([]models.CheckResult, error) {
	if !point.Config().Enabled {
		return nil, nil
	}
	items, err := point.FetchData(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", point.Name(), err)
	}
	results := make([]models.CheckResult, 0, len(items))
	for _, item := range items {
		if !point.CanHandle(item) {
			continue
		}
		results = append(results, timedEvaluate(point, item))
	}
	return results, nil
}

// EvaluateDatum runs one datum through the points in descending priority
// order. A should_act match from a stop_on_match point ends the pass.
func EvaluateDatum(points []CheckingPoint, datum models.MonitoringDatum) []models.CheckResult {
	ordered := make([]CheckingPoint, 0, len(points))
	for _, p := range points {
		if p.Config().Enabled && p.CanHandle(datum) {
			ordered = append(ordered, p)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Config().Priority > ordered[j].Config().Priority
	})

	var results []models.CheckResult
	for _, p := range ordered {
		result := timedEvaluate(p, datum)
		results = append(results, result)
		if result.ShouldAct && p.Config().StopOnMatch {
			break
		}
	}
	return results
}

func timedEvaluate(point CheckingPoint, datum models.MonitoringDatum) models.CheckResult {
	started := time.Now()
	result := point.Evaluate(datum)
	result.EvaluationDuration = time.Since(started)
	return result
}
