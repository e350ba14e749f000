package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"addonplan/internal/metrics"
	"addonplan/internal/models"
	"addonplan/internal/store"

	"go.uber.org/zap"
)

// DefaultLedgerKey is where the ledger lives when nothing else is configured
var DefaultLedgerKey = store.Key{Namespace: "kube-system", Name: "addonplan-ledger", Field: "ledger.json"}

// Ledger is the install journal of one cluster, persisted as a single JSON document
type Ledger struct {
	store   store.KeyValueStore
	key     store.Key
	now     func() time.Time
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewLedger creates a ledger stored under key
func NewLedger(s store.KeyValueStore, key store.Key, logger *zap.Logger, m *metrics.Metrics) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Ledger{store: s, key: key, now: time.Now, logger: logger, metrics: m}
}

// Read returns the stored ledger, or an empty one when nothing has been written.
// A blank field counts as nothing written.
func (l *Ledger) Read(ctx context.Context) (*models.InstallLedger, error) {
	data, ok, err := l.store.Get(ctx, l.key)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger %s: %w", l.key, err)
	}
	if !ok || strings.TrimSpace(string(data)) == "" {
		return models.NewInstallLedger(), nil
	}

	ledger := models.NewInstallLedger()
	if err := json.Unmarshal(data, ledger); err != nil {
		return nil, fmt.Errorf("failed to parse ledger %s: %w", l.key, err)
	}
	if ledger.Installs == nil {
		ledger.Installs = []models.InstallEvent{}
	}
	return ledger, nil
}

// Append adds event at the end of the ledger and writes the whole document back.
// Concurrent appenders are last-writer-wins.
func (l *Ledger) Append(ctx context.Context, event models.InstallEvent) (*models.InstallLedger, error) {
	ledger, err := l.Read(ctx)
	if err != nil {
		return nil, err
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = l.now().UTC()
	}
	ledger.Version = models.LedgerSchemaVersion
	ledger.Installs = append(ledger.Installs, event)
	ledger.UpdatedAt = l.now().UTC().Format(time.RFC3339Nano)

	data, err := json.MarshalIndent(ledger, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode ledger: %w", err)
	}

	err = l.store.Put(ctx, l.key, data, true)
	switch {
	case err == nil:
		l.metrics.ObserveLedgerWrite(metrics.WriteCreate)
	case errors.Is(err, store.ErrAlreadyExists):
		l.logger.Debug("ledger exists, replacing", zap.Stringer("key", l.key))
		if err := l.store.Put(ctx, l.key, data, false); err != nil {
			return nil, fmt.Errorf("failed to write ledger %s: %w", l.key, err)
		}
		l.metrics.ObserveLedgerWrite(metrics.WriteReplace)
	default:
		return nil, fmt.Errorf("failed to write ledger %s: %w", l.key, err)
	}

	l.logger.Info("ledger event recorded",
		zap.String("tool", event.ToolKey),
		zap.String("action", string(event.LastAction)),
		zap.String("namespace", event.Namespace),
	)
	return ledger, nil
}

// History returns the events for toolKey in insertion order, or newest first
func (l *Ledger) History(ctx context.Context, toolKey string, newestFirst bool) ([]models.InstallEvent, error) {
	ledger, err := l.Read(ctx)
	if err != nil {
		return nil, err
	}

	events := []models.InstallEvent{}
	for _, e := range ledger.Installs {
		if e.ToolKey == toolKey {
			events = append(events, e)
		}
	}
	if newestFirst {
		for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
			events[i], events[j] = events[j], events[i]
		}
	}
	return events, nil
}

// Latest returns the most recent event for toolKey, or nil
func (l *Ledger) Latest(ctx context.Context, toolKey string) (*models.InstallEvent, error) {
	events, err := l.History(ctx, toolKey, true)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

// latestByTool indexes the most recent event of every tool in ledger
func latestByTool(ledger *models.InstallLedger) map[string]models.InstallEvent {
	latest := make(map[string]models.InstallEvent, len(ledger.Installs))
	for _, e := range ledger.Installs {
		latest[e.ToolKey] = e
	}
	return latest
}
