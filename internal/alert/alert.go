// Package alert fans operator notifications out to chat channels
package alert

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"basket_swap/internal/core"
)

type AlertLevel string

const (
	Info     AlertLevel = "INFO"
	Warning  AlertLevel = "WARNING"
	Error    AlertLevel = "ERROR"
	Critical AlertLevel = "CRITICAL"
)

var severity = map[AlertLevel]int{Info: 0, Warning: 1, Error: 2, Critical: 3}

// ParseLevel accepts a level name in any case. The empty string means Info.
func ParseLevel(s string) (AlertLevel, error) {
	if s == "" {
		return Info, nil
	}
	level := AlertLevel(strings.ToUpper(s))
	if _, ok := severity[level]; !ok {
		return "", fmt.Errorf("unknown alert level %q", s)
	}
	return level, nil
}

// AtLeast reports whether l is as severe as min
func (l AlertLevel) AtLeast(min AlertLevel) bool {
	return severity[l] >= severity[min]
}

type AlertPayload struct {
	Level     AlertLevel
	Title     string
	Message   string
	Timestamp time.Time
	Fields    map[string]string
}

type AlertChannel interface {
	Send(ctx context.Context, alert AlertPayload) error
	Name() string
}

// AlertManager delivers every alert to all channels in the background
type AlertManager struct {
	channels []AlertChannel
	logger   core.ILogger
	timeout  time.Duration
	minLevel AlertLevel
	mu       sync.RWMutex
	inflight sync.WaitGroup
}

func NewAlertManager(logger core.ILogger) *AlertManager {
	return &AlertManager{
		channels: make([]AlertChannel, 0),
		logger:   logger.WithField("component", "alert_manager"),
		timeout:  10 * time.Second,
		minLevel: Info,
	}
}

// SetMinLevel drops alerts below level
func (am *AlertManager) SetMinLevel(level AlertLevel) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.minLevel = level
}

func (am *AlertManager) AddChannel(ch AlertChannel) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.channels = append(am.channels, ch)
	am.logger.Info("Added alert channel", "name", ch.Name())
}

// Channels returns the number of registered channels
func (am *AlertManager) Channels() int {
	am.mu.RLock()
	defer am.mu.RUnlock()
	return len(am.channels)
}

// Alert returns immediately. Delivery is detached from ctx cancellation so an alert raised
// at the end of a request still goes out.
func (am *AlertManager) Alert(ctx context.Context, title, message string, level AlertLevel, fields map[string]string) {
	am.mu.RLock()
	defer am.mu.RUnlock()

	if !level.AtLeast(am.minLevel) {
		am.logger.Debug("Alert below minimum level", "title", title, "level", level, "min_level", am.minLevel)
		return
	}

	payload := AlertPayload{
		Level:     level,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
		Fields:    fields,
	}
	am.logger.Info("Triggering alert", "title", title, "level", level, "channels", len(am.channels))

	base := context.WithoutCancel(ctx)
	for _, ch := range am.channels {
		am.inflight.Add(1)
		go func(c AlertChannel) {
			defer am.inflight.Done()
			timeoutCtx, cancel := context.WithTimeout(base, am.timeout)
			defer cancel()

			if err := c.Send(timeoutCtx, payload); err != nil {
				am.logger.Error("Failed to send alert", "channel", c.Name(), "error", err)
			}
		}(ch)
	}
}

// Flush waits for in-flight deliveries, at most until ctx is done
func (am *AlertManager) Flush(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		am.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
