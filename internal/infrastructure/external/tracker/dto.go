package tracker

// ══════════════════════════════════════════════════════════════════════════════
// WIRE TYPES
// ══════════════════════════════════════════════════════════════════════════════

// APIResponse is the tracker's standard response envelope.
type APIResponse[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error,omitempty"`
}

// ActivityDTO is the tracker's aggregated activity payload for one member
// over a date window. FocusRatio is null when the member recorded no focus
// sessions in the window.
type ActivityDTO struct {
	MemberID       string   `json:"member_id"`
	From           string   `json:"from"`
	To             string   `json:"to"`
	AssignedUnits  int      `json:"assigned_units"`
	CompletedUnits int      `json:"completed_units"`
	ActiveMinutes  int      `json:"active_minutes"`
	FocusRatio     *float64 `json:"focus_ratio"`
}

// APIErrorDTO is the tracker's error body for 4xx/5xx responses.
type APIErrorDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *APIErrorDTO) Error() string {
	if e.Code != "" {
		return "tracker: " + e.Code + ": " + e.Message
	}
	return "tracker: " + e.Message
}
