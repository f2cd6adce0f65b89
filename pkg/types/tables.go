package types

// DailyMetricsRow holds per-day metrics across all event categories,
// keyed by EventDate.
type DailyMetricsRow struct {
	EventDate Date `json:"event_date"`

	// From session_start events
	DAU int64 `json:"dau"`

	// From session_end events
	TotalSessions      int64   `json:"total_sessions"`
	AvgSessionDuration float64 `json:"avg_session_duration"`
	TotalLevelsPlayed  float64 `json:"total_levels_played"`

	// From purchase events
	TotalPurchases int64   `json:"total_purchases"`
	TotalRevenue   float64 `json:"total_revenue"`
	PayingUsers    int64   `json:"paying_users"`

	// From ad_watched events
	TotalAdsWatched int64 `json:"total_ads_watched"`

	// From level_complete/level_fail events
	TotalLevelAttempts    int64 `json:"total_level_attempts"`
	SuccessfulCompletions int64 `json:"successful_completions"`

	// Derived ratios, zero-guarded
	ARPU             float64 `json:"arpu"`
	ConversionRate   float64 `json:"conversion_rate"`
	LevelSuccessRate float64 `json:"level_success_rate"`
	SessionsPerUser  float64 `json:"sessions_per_user"`
}

// DailyMetricsTable is the daily metrics output, sorted by EventDate ascending.
type DailyMetricsTable []DailyMetricsRow

// CohortRow holds day-N retention for one install-date cohort.
type CohortRow struct {
	InstallDate Date  `json:"install_date"`
	CohortSize  int64 `json:"cohort_size"`

	// Distinct players active exactly N days after install
	D1Active  int64 `json:"d1_active"`
	D7Active  int64 `json:"d7_active"`
	D30Active int64 `json:"d30_active"`

	// Percentages of CohortSize, zero-guarded
	D1Retention  float64 `json:"d1_retention"`
	D7Retention  float64 `json:"d7_retention"`
	D30Retention float64 `json:"d30_retention"`
}

// CohortTable is the retention output, sorted by InstallDate ascending.
type CohortTable []CohortRow
