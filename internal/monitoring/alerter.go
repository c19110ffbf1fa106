package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/inbound-carrier/internal/config"
	"github.com/sells-group/inbound-carrier/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertLowBookingRate      AlertType = "low_booking_rate"
	AlertNegativeSentiment   AlertType = "negative_sentiment"
	AlertRegistryUnavailable AlertType = "registry_unavailable"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
// Rate alerts need at least MinCalls calls in the window.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()
	enough := snap.Calls > 0 && snap.Calls >= a.cfg.MinCalls

	if enough && a.cfg.MinBookingRate > 0 && snap.BookingRate < a.cfg.MinBookingRate {
		alerts = append(alerts, Alert{
			Type:     AlertLowBookingRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Booking rate %.1f%% is below threshold %.1f%% (%d booked / %d calls in last %dh)",
				snap.BookingRate*100, a.cfg.MinBookingRate*100,
				snap.Booked, snap.Calls, snap.LookbackHours,
			),
			Details: map[string]any{
				"booking_rate": snap.BookingRate,
				"threshold":    a.cfg.MinBookingRate,
				"booked":       snap.Booked,
				"calls":        snap.Calls,
			},
			Timestamp: now,
		})
	}

	if enough && a.cfg.NegativeSentimentThreshold > 0 && snap.NegativeRate > a.cfg.NegativeSentimentThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertNegativeSentiment,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Negative sentiment on %.1f%% of calls exceeds threshold %.1f%% in last %dh",
				snap.NegativeRate*100, a.cfg.NegativeSentimentThreshold*100, snap.LookbackHours,
			),
			Details: map[string]any{
				"negative_rate": snap.NegativeRate,
				"threshold":     a.cfg.NegativeSentimentThreshold,
				"negative":      snap.Negative,
				"calls":         snap.Calls,
			},
			Timestamp: now,
		})
	}

	if snap.RegistryCircuit == resilience.CircuitOpen.String() {
		alerts = append(alerts, Alert{
			Type:      AlertRegistryUnavailable,
			Severity:  "high",
			Message:   "FMCSA registry circuit is open; carrier verification is failing",
			Details:   map[string]any{"circuit": snap.RegistryCircuit},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
