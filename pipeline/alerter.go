package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/khaledhikmat/aicam-go/model"
	"github.com/khaledhikmat/aicam-go/service/lgr"
)

// motionEscalationThreshold is the magnitude a detected motion must exceed
// before it becomes an alert. It is deliberately higher than the raw motion
// detection threshold so small disturbances stay out of the event log.
const motionEscalationThreshold = 10.0

// AlertCoordinator turns per-cycle evaluation results into alert records
// and fans them out: synchronously to persistence and the incident store,
// asynchronously to the notification legs via the alert stream.
//
// There is no de-duplication or rate limiting. A condition that persists
// raises the same alert every cycle.
type AlertCoordinator struct {
	svcs        ServicesFactory
	alertStream chan AlertData
}

func NewAlertCoordinator(svcs ServicesFactory, alertStream chan AlertData) *AlertCoordinator {
	return &AlertCoordinator{
		svcs:        svcs,
		alertStream: alertStream,
	}
}

// Evaluate applies the alert rules to one cycle's results. Returns nil when
// alerting is disabled.
func (a *AlertCoordinator) Evaluate(motionDetected bool, magnitude float64, personCount int, unknownFaces []model.Face, now time.Time) []model.Alert {
	if !a.svcs.CfgSvc.IsAlertsEnabled() {
		return nil
	}

	var alerts []model.Alert

	if motionDetected && magnitude > motionEscalationThreshold {
		alerts = append(alerts, model.Alert{
			Type:        "motion_detected",
			Severity:    "medium",
			PersonCount: personCount,
			Metadata: map[string]interface{}{
				"severity":         "medium",
				"motion_magnitude": magnitude,
				"person_count":     personCount,
			},
			Timestamp: now,
		})
	}

	for _, face := range unknownFaces {
		if face.Known {
			continue
		}
		alerts = append(alerts, model.Alert{
			Type:     "unknown_face",
			Severity: "critical",
			Metadata: map[string]interface{}{
				"severity": "critical",
				"name":     face.Name,
				"location": face.Location,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// Dispatch persists each alert, stores an incident snapshot and the capture
// pre-roll when configured, and hands the alert to the notifier without ever
// blocking the cycle.
func (a *AlertCoordinator) Dispatch(alerts []model.Alert, frame model.Frame, preRoll []model.Frame) {
	if len(alerts) == 0 {
		return
	}

	// One pre-roll covers the whole batch; the triggering condition is the
	// same capture moment for every alert in it.
	var preRollPath string
	if a.svcs.CfgSvc.IsRecordOnAlert() && len(preRoll) > 0 {
		path, err := a.svcs.StorageSvc.StorePreRoll(preRoll, alerts[0].Type)
		if err != nil {
			lgr.Logger.Error(
				"error storing incident preroll",
				slog.String("type", alerts[0].Type),
				slog.Any("error", err),
			)
		} else {
			preRollPath = path
		}
	}

	for _, alert := range alerts {
		lgr.Logger.Warn(
			"alert raised",
			slog.String("type", alert.Type),
			slog.String("severity", alert.Severity),
			slog.Int("personCount", alert.PersonCount),
		)

		var clipPath *string
		if a.svcs.CfgSvc.IsRecordOnAlert() && !frame.Empty() {
			path, err := a.svcs.StorageSvc.StoreSnapshot(frame, alert.Type)
			if err != nil {
				lgr.Logger.Error(
					"error storing incident snapshot",
					slog.String("type", alert.Type),
					slog.Any("error", err),
				)
			} else {
				clipPath = &path
			}
		}

		if preRollPath != "" && alert.Metadata != nil {
			alert.Metadata["pre_roll_path"] = preRollPath
		}

		if _, err := a.svcs.DataSvc.LogEvent(alert.Type, alert.Severity, alert.PersonCount, float64(alert.Confidence), metadataJSON(alert), clipPath); err != nil {
			lgr.Logger.Error(
				"error persisting alert",
				slog.String("type", alert.Type),
				slog.Any("error", err),
			)
		}
		a.svcs.MetricsSvc.AlertsRaised.Add(1)

		select {
		case a.alertStream <- AlertData{Alert: alert, Frame: frame}:
		default:
			lgr.Logger.Warn(
				"alert stream full; notification dropped",
				slog.String("type", alert.Type),
			)
		}
	}
}

func metadataJSON(alert model.Alert) string {
	raw, err := json.Marshal(alert.Metadata)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// AlertNotifier drains the alert stream and runs the notification legs. A
// failed leg is logged and lost; the alert itself was already persisted by
// Dispatch.
func AlertNotifier(canx context.Context, svcs ServicesFactory, alertStream chan AlertData) {
	go func() {
		for {
			select {
			case <-canx.Done():
				lgr.Logger.Info(
					"alert notifier context cancelled",
				)
				return

			case ad := <-alertStream:
				if to := svcs.CfgSvc.GetAlertEmail(); to != "" {
					if err := svcs.EmailSvc.Send(to, emailSubject(ad.Alert), emailBody(ad.Alert)); err != nil {
						lgr.Logger.Warn(
							"error sending alert email",
							slog.String("type", ad.Alert.Type),
							slog.Any("error", err),
						)
					}
				}

				if svcs.CfgSvc.GetAlertWebhookURL() != "" {
					if err := svcs.WebhookSvc.Post(webhookPayload(ad.Alert)); err != nil {
						lgr.Logger.Warn(
							"error posting alert webhook",
							slog.String("type", ad.Alert.Type),
							slog.Any("error", err),
						)
					}
				}
			}
		}
	}()
}

func emailSubject(alert model.Alert) string {
	return fmt.Sprintf("Security Alert: %s", alert.Type)
}

func emailBody(alert model.Alert) string {
	details, err := json.MarshalIndent(alert.Metadata, "", "  ")
	if err != nil {
		details = []byte("{}")
	}
	return fmt.Sprintf("Alert Type: %s\nSeverity: %s\nTimestamp: %s\nDetails: %s\n",
		alert.Type, alert.Severity, alert.Timestamp.Format(time.RFC3339), details)
}

func webhookPayload(alert model.Alert) map[string]interface{} {
	color := "warning"
	if alert.Severity == "critical" {
		color = "danger"
	}
	return map[string]interface{}{
		"text": fmt.Sprintf("**%s** Alert", alert.Type),
		"attachments": []map[string]interface{}{
			{
				"color": color,
				"fields": []map[string]interface{}{
					{"title": "Type", "value": alert.Type, "short": true},
					{"title": "Severity", "value": alert.Severity, "short": true},
					{"title": "Time", "value": alert.Timestamp.Format(time.RFC3339), "short": false},
					{"title": "Details", "value": metadataJSON(alert), "short": false},
				},
			},
		},
	}
}
