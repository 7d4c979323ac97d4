package handlers

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/leadpilot/autopilot"
	"github.com/harperreed/leadpilot/compliance"
	"github.com/harperreed/leadpilot/db"
	"github.com/harperreed/leadpilot/models"
	"github.com/harperreed/leadpilot/oracle"
)

const messageProposal = `{"type":"message","description":"Send renewal reminder","steps":["Draft message","Send on WhatsApp"],
"reasoning":"Policy renews next week","difficulty":"easy","confidence":85,
"message":"Hi, your policy renews next week. Shall we review it together?"}`

type testEnv struct {
	controller *autopilot.Controller
	leads      *db.CachedLeadStore
	leadIDs    []string
}

func setupTestEnv(t *testing.T, reply string) *testEnv {
	t.Helper()
	database, err := db.OpenDatabase(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	leads, err := db.NewCachedLeadStore(db.NewLeadStore(database), 16)
	require.NoError(t, err)

	var ids []string
	for _, l := range []models.Lead{
		{Name: "Priya Sharma", Location: "Pune", Temperature: models.TemperatureHot, ProductInterest: []string{"term life"}, Tags: []string{"renewal-due"}},
		{Name: "Rahul Verma", Location: "Delhi"},
	} {
		lead := l
		require.NoError(t, leads.Create(context.Background(), &lead))
		ids = append(ids, lead.ID)
	}

	logger := log.New(io.Discard)
	gen := oracle.NewGenerator(oracle.Func(func(ctx context.Context, req oracle.Request) (string, error) {
		return reply, nil
	}), oracle.WithLogger(logger), oracle.WithRetry(oracle.RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond, Factor: 1, MaxDelay: time.Millisecond}))

	controller := autopilot.NewController(autopilot.Config{
		Proposer: gen,
		Checker:  compliance.NewChecker(compliance.DefaultRules()),
		Store:    leads,
		Audit:    db.NewAuditStore(database),
		Logger:   logger,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = controller.Shutdown(ctx)
	})

	return &testEnv{controller: controller, leads: leads, leadIDs: ids}
}

func (e *testEnv) waitDone(t *testing.T, sessionID string) {
	t.Helper()
	s, err := e.controller.Session(sessionID)
	require.NoError(t, err)
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
	}
}

type memorySettings struct {
	saved map[string]models.RunSettings
}

func (m *memorySettings) LoadOrDefault(userID string, fallback models.RunSettings) models.RunSettings {
	if s, ok := m.saved[userID]; ok {
		return s
	}
	return fallback
}

func (m *memorySettings) Save(userID string, settings models.RunSettings) error {
	if m.saved == nil {
		m.saved = make(map[string]models.RunSettings)
	}
	m.saved[userID] = settings
	return nil
}
