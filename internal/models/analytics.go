package models

import "time"

// ClaimAnalytics summarises the claim pipeline for dashboard cards.
type ClaimAnalytics struct {
	ByStatus     map[ClaimStatus]int `json:"by_status"`
	ByUmbrella   map[string]int      `json:"by_umbrella"`
	PendingPOC   int                 `json:"pending_poc"`
	PendingAdmin int                 `json:"pending_admin"`
	Approved     int                 `json:"approved"`
	Declined     int                 `json:"declined"`
	GeneratedAt  time.Time           `json:"generated_at"`
}

// UmbrellaCount is a row of the per-umbrella claim count query.
type UmbrellaCount struct {
	UmbrellaKey string `db:"umbrella_key"`
	Total       int    `db:"total"`
}

// StatusCount is a row of the per-status claim count query.
type StatusCount struct {
	Status ClaimStatus `db:"status"`
	Total  int         `db:"total"`
}

// SystemMetrics is a lightweight runtime snapshot for the analytics endpoint.
type SystemMetrics struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	LockContentions          uint64    `json:"lock_contentions"`
	ReservationsReleased     uint64    `json:"reservations_released"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
