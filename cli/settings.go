// ABOUTME: Resolves where CLI front-ends remember each agent's run settings
// ABOUTME: Prefers the Charm KV store and falls back to configured defaults when it is unavailable
package cli

import (
	"github.com/charmbracelet/log"

	"github.com/harperreed/leadpilot/charm"
	"github.com/harperreed/leadpilot/handlers"
	"github.com/harperreed/leadpilot/models"
)

// settingsSource opens the Charm settings store. Without Charm, presets are
// not remembered between runs.
func settingsSource(logger *log.Logger) handlers.SettingsSource {
	client, err := charm.GetClient()
	if err != nil {
		logger.Warn("charm unavailable, run settings will not be remembered", "err", err)
		return staticSettings{}
	}
	return charm.NewSettingsStore(client)
}

type staticSettings struct{}

func (staticSettings) LoadOrDefault(_ string, fallback models.RunSettings) models.RunSettings {
	return fallback
}

func (staticSettings) Save(string, models.RunSettings) error { return nil }

// settingsFlags holds per-run overrides parsed from the command line.
type settingsFlags struct {
	autoCRM    *bool
	autoSend   *bool
	autoOpen   *bool
	timebox    *int
	confidence *int
	set        map[string]bool
}

// apply copies only the flags the user actually passed onto base.
func (f settingsFlags) apply(base models.RunSettings) models.RunSettings {
	if f.set["auto-crm"] {
		base.AutoApplyCRMUpdates = *f.autoCRM
	}
	if f.set["auto-send"] {
		base.AutoSendMessages = *f.autoSend
	}
	if f.set["auto-open"] {
		base.AutoOpenProfiles = *f.autoOpen
	}
	if f.set["timebox"] {
		base.TimeboxMinutes = *f.timebox
	}
	if f.set["confidence"] {
		base.ConfidenceThreshold = *f.confidence
	}
	return base
}
