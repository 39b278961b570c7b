package checkpoint

import (
	"strings"

	"github.com/haasonsaas/overseer/internal/checkpoint/sources"
	"github.com/haasonsaas/overseer/pkg/models"
)

func init() {
	mustRegister("email_alert", func(name string, config PointConfig, source sources.Source) (CheckingPoint, error) {
		return &EmailAlertPoint{BasePoint: NewBasePoint(name, "email_alert", config, source)}, nil
	})
}

// alertKeywords mark an email subject as an operational alert.
var alertKeywords = []string{"alert", "critical", "outage", "down", "failure"}

// EmailAlertPoint matches emails whose subject signals an operational
// alert.
type EmailAlertPoint struct {
	BasePoint
}

func (p *EmailAlertPoint) CanHandle(datum models.MonitoringDatum) bool {
	return datum.Type == models.DatumEmail
}

func (p *EmailAlertPoint) Evaluate(datum models.MonitoringDatum) models.CheckResult {
	subject := strings.ToLower(payloadString(datum, "subject"))
	for _, keyword := range alertKeywords {
		if strings.Contains(subject, keyword) {
			return p.Match(0.9,
				"alert keyword in subject: "+keyword,
				map[string]any{
					"email_id": datum.ID,
					"subject":  payloadString(datum, "subject"),
					"from":     payloadString(datum, "from"),
				},
				"investigate_alert")
		}
	}
	return p.NoMatch("no alert keyword in subject")
}

func (p *EmailAlertPoint) GetActions(datum models.MonitoringDatum, result models.CheckResult) []models.ImmediateAction {
	return []models.ImmediateAction{{
		Name:       "forward_to_oncall",
		Target:     payloadString(datum, "from"),
		Parameters: map[string]any{"email_id": datum.ID},
	}}
}

func (p *EmailAlertPoint) GetAfterProcess(datum models.MonitoringDatum, result models.CheckResult) []models.AIAction {
	return p.AIActionFor(datum, result, "investigate_email_alert")
}
