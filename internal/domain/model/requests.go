package model

// ProgressRequest is one progress submission. RequestID is optional; a
// repeated (user, run, request) triple is applied once.
type ProgressRequest struct {
	RunID     string  `json:"runId"`
	Increment float64 `json:"increment"`
	RequestID string  `json:"requestId,omitempty"`
}

// LeaderboardQuery selects one leaderboard page. Zero values take defaults.
type LeaderboardQuery struct {
	Page     int
	PageSize int
	Window   TimeWindow
}

// PurchaseResult reports balances after a purchase.
type PurchaseResult struct {
	Item  Item `json:"item"`
	Owned int  `json:"owned"`
	Coins int  `json:"coins"`
}
