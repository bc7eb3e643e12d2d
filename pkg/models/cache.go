package models

import "time"

// CacheEntry is an accepted implementation stored under its signature digest.
type CacheEntry struct {
	Digest         Digest    `json:"digest"`
	Implementation string    `json:"implementation"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CacheStats reports artifact cache contents and lookup outcomes.
type CacheStats struct {
	Backend    string `json:"backend"`
	Location   string `json:"location"`
	Entries    int64  `json:"entries"`
	Hits       int64  `json:"hits"`
	Misses     int64  `json:"misses"`
	ReadErrors int64  `json:"read_errors"`
}
