package store

import (
	"context"
	"sort"
	"sync"

	"valve-gateway/internal/models"
)

// Memory keeps everything in process. Used without a database and in tests.
type Memory struct {
	mu        sync.RWMutex
	telemetry []models.TelemetrySample
	commands  []models.CommandResult
	alerts    []models.Alert
	nextAlert int64
	maxRows   int
}

// NewMemory creates an empty store keeping at most maxRows rows per table (0 = unbounded)
func NewMemory(maxRows int) *Memory {
	return &Memory{maxRows: maxRows}
}

func (m *Memory) SaveTelemetry(_ context.Context, s models.TelemetrySample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.telemetry = append(m.telemetry, s)
	if m.maxRows > 0 && len(m.telemetry) > m.maxRows {
		m.telemetry = m.telemetry[len(m.telemetry)-m.maxRows:]
	}
	return nil
}

func (m *Memory) LatestTelemetry(_ context.Context) (models.TelemetrySample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.telemetry) == 0 {
		return models.TelemetrySample{}, ErrNotFound
	}
	return m.telemetry[len(m.telemetry)-1], nil
}

func (m *Memory) TelemetryHistory(_ context.Context, limit int) ([]models.TelemetrySample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit = max(limit, 0)
	out := make([]models.TelemetrySample, 0, min(limit, len(m.telemetry)))
	for i := len(m.telemetry) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.telemetry[i])
	}
	return out, nil
}

func (m *Memory) TelemetryRange(_ context.Context, from, to int64) ([]models.TelemetrySample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.TelemetrySample, 0)
	for _, s := range m.telemetry {
		if s.Timestamp >= from && s.Timestamp <= to {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

func (m *Memory) SaveCommandResult(_ context.Context, r models.CommandResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, r)
	if m.maxRows > 0 && len(m.commands) > m.maxRows {
		m.commands = m.commands[len(m.commands)-m.maxRows:]
	}
	return nil
}

func (m *Memory) CommandResult(_ context.Context, id string) (models.CommandResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.commands {
		if r.ID == id {
			return r, nil
		}
	}
	return models.CommandResult{}, ErrNotFound
}

func (m *Memory) RecentCommandResults(_ context.Context, limit int) ([]models.CommandResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit = max(limit, 0)
	out := make([]models.CommandResult, 0, min(limit, len(m.commands)))
	for i := len(m.commands) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.commands[i])
	}
	return out, nil
}

func (m *Memory) SaveAlert(_ context.Context, a models.Alert) (models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextAlert++
	a.ID = m.nextAlert
	m.alerts = append(m.alerts, a)
	if m.maxRows > 0 && len(m.alerts) > m.maxRows {
		m.alerts = m.alerts[len(m.alerts)-m.maxRows:]
	}
	return a, nil
}

func (m *Memory) Alerts(_ context.Context, q models.AlertQuery) ([]models.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Alert, 0)
	for i := len(m.alerts) - 1; i >= 0; i-- {
		a := m.alerts[i]
		if q.UnacknowledgedOnly && a.Acknowledged {
			continue
		}
		if !q.Since.IsZero() && a.Timestamp.Before(q.Since) {
			continue
		}
		out = append(out, a)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) AcknowledgeAlert(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.alerts {
		if m.alerts[i].ID == id {
			m.alerts[i].Acknowledged = true
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) Ping(context.Context) error { return nil }
func (m *Memory) Close() error               { return nil }

var _ Store = (*Memory)(nil)
