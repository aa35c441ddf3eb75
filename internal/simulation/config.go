// Package simulation drives the tier-list service over HTTP with synthetic
// collections whose true order is known, then checks the stored order
// against it.
package simulation

import "time"

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL      string        // Base URL of the service
	Users        int           // Number of simulated users
	ItemsPerUser int           // Movies inserted per user
	Workers      int           // Users simulated concurrently
	Timeout      time.Duration // HTTP request timeout
	IdleTimeout  time.Duration // How long to wait for the reclassify queue to drain
	OutputFile   string        // Output file for generated movies; empty skips saving
	RPS          float64       // Request rate cap; 0 disables it
	Burst        int           // Requests allowed above RPS in a burst
	BreakerTrips uint32        // Consecutive failures that open the breaker; 0 disables it
	BreakerPause time.Duration // How long the breaker stays open
	Verbose      bool          // Log every insertion
}

// Movie is a generated item with a hidden true score.
type Movie struct {
	UserID        string   `json:"user_id"`
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Genres        []string `json:"genres"`
	Bracket       string   `json:"bracket,omitempty"`
	ExternalScore *float64 `json:"external_score,omitempty"`
	Hidden        float64  `json:"hidden_score"`
	Tier          string   `json:"tier"`
}

// Stats holds run statistics.
type Stats struct {
	Users          int
	Inserted       int
	Failed         int
	Comparisons    int
	MaxComparisons int
	Inversions     int
	Misplaced      int
	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
}

// AvgComparisons returns comparisons per successful insertion.
func (s *Stats) AvgComparisons() float64 {
	if s.Inserted == 0 {
		return 0
	}
	return float64(s.Comparisons) / float64(s.Inserted)
}
