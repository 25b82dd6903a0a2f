package httptransport

import "time"

// SlotResultItem reports what one expired slot did during a progression run.
type SlotResultItem struct {
	SlotPosition int    `json:"slotPosition"`
	Outcome      string `json:"outcome"`
	WinnerClipID string `json:"winnerClipId,omitempty"`
	Eliminated   int    `json:"eliminated,omitempty"`
	Error        string `json:"error,omitempty"`
}

// ProgressResponse is the body of the cron progression endpoint.
type ProgressResponse struct {
	OK        bool             `json:"ok"`
	Skipped   bool             `json:"skipped,omitempty"`
	Processed int              `json:"processed"`
	Results   []SlotResultItem `json:"results"`
	CheckedAt time.Time        `json:"checkedAt"`
}
