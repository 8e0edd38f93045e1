package manager

import (
	"time"

	"chatd/pkg/types"
)

// Status builds the response for /status.
func (m *Manager) Status() types.StatusResponse {
	snap := m.Snapshot()
	gs := m.gate.Status()
	status := "running"
	if snap.State == StateClosed {
		status = "stopping"
	}
	return types.StatusResponse{
		Status: status,
		Model: types.ModelInfo{
			ModelName:   m.model.Name,
			Loaded:      snap.State == StateReady,
			ModelPath:   snap.ModelPath,
			Backend:     m.backend,
			MaxTokens:   m.defaults.MaxTokens,
			Temperature: m.defaults.Temperature,
			TopP:        m.defaults.TopP,
			Error:       snap.Err,
		},
		Queue: types.QueueStatus{
			ActiveRequests: gs.Active,
			MaxConcurrent:  gs.Capacity,
			TotalProcessed: gs.TotalAdmitted,
			TotalRejected:  gs.TotalRejected,
			QueueAvailable: gs.Available,
		},
		CurrentUsers:  gs.Active,
		MaxUsers:      gs.Capacity,
		UptimeSeconds: int64(time.Since(m.startTime).Seconds()),
	}
}

// Health builds the response for /health.
func (m *Manager) Health() types.HealthResponse {
	return types.HealthResponse{Status: "healthy", ModelLoaded: m.Ready()}
}
