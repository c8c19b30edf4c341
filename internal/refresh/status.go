package refresh

import (
	"time"

	"genescore/domain/core"
	"genescore/domain/score"
	"genescore/internal/scoring"
)

// Status describes the coordinator and its published snapshot
type Status struct {
	State              State             `json:"state"`
	Generation         uint64            `json:"generation"`
	SnapshotID         core.SnapshotID   `json:"snapshot_id,omitempty"`
	Mode               score.Mode        `json:"mode,omitempty"`
	ComputedAt         *time.Time        `json:"computed_at,omitempty"`
	Duration           string            `json:"duration,omitempty"`
	ActiveSources      []core.SourceName `json:"active_sources"`
	TotalActiveSources int               `json:"total_active_sources"`
	Fingerprint        core.Fingerprint  `json:"fingerprint,omitempty"`
	Pending            bool              `json:"pending"`
	LastError          string            `json:"last_error,omitempty"`
	LastErrorAt        *time.Time        `json:"last_error_at,omitempty"`
	LastReport         *scoring.Report   `json:"last_report,omitempty"`
	Summary            scoring.Summary   `json:"summary"`
}

// Status reports the current state. The last error stays visible after later
// successful runs; compare LastErrorAt with ComputedAt.
func (c *Coordinator) Status() Status {
	snap := c.snap.Load()

	c.mu.Lock()
	st := Status{
		Pending:    c.pending != nil,
		LastReport: c.lastReport,
	}
	switch {
	case c.running != nil:
		st.State = StateRecomputing
	case c.pending != nil || snap.Generation == 0:
		st.State = StateStale
	default:
		st.State = StatePublished
	}
	if c.lastErr != nil {
		at := c.lastErrAt
		st.LastError = c.lastErr.Error()
		st.LastErrorAt = &at
	}
	c.mu.Unlock()

	st.Generation = snap.Generation
	st.SnapshotID = snap.ID
	st.Mode = snap.Mode
	st.ActiveSources = snap.ActiveSources
	st.TotalActiveSources = snap.TotalActiveSources
	st.Fingerprint = snap.Fingerprint
	if snap.Generation > 0 {
		at := snap.ComputedAt
		st.ComputedAt = &at
		st.Duration = snap.Duration.String()
	}
	st.Summary = scoring.Summarize(snap)
	return st
}
