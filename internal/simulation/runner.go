package simulation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"

	"github.com/marquee/tierlist/internal/domain/types"
	"github.com/marquee/tierlist/pkg/logger"
)

const (
	directoryPermission = 0750
	filePermission      = 0600
	idlePollInterval    = 100 * time.Millisecond
	maxRoundsPerItem    = 64
)

// ErrMisordered is returned when a stored tier disagrees with the hidden order.
var ErrMisordered = errors.New("stored order disagrees with hidden order")

// Run executes a complete simulation and returns its statistics.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now(), Users: cfg.Users}
	log := logger.Named("simulation")

	log.Info(ctx, "starting simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("users", cfg.Users),
		logger.Int("itemsPerUser", cfg.ItemsPerUser),
		logger.Int("workers", cfg.Workers),
		logger.String("timeout", cfg.Timeout.String()))

	client := NewClient(cfg.BaseURL, cfg.Timeout,
		WithRateLimit(cfg.RPS, cfg.Burst),
		WithBreaker(cfg.BreakerTrips, cfg.BreakerPause))

	// Step 1: Check service health
	if err := client.Health(ctx); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Generate movies
	movies, err := generateMovies(ctx, cfg.Users, cfg.ItemsPerUser)
	if err != nil {
		return nil, fmt.Errorf("movie generation failed: %w", err)
	}

	// Step 3: Insert every user's movies, users in parallel
	if err := insertAll(ctx, cfg, client, movies, stats); err != nil {
		return nil, fmt.Errorf("insertion aborted: %w", err)
	}

	// Step 4: Let queued reclassifications settle
	if err := waitForIdle(ctx, client, cfg.IdleTimeout); err != nil {
		log.Warn(ctx, "queue did not drain", logger.Error(err))
	}

	// Step 5: Verify stored order
	for userID, list := range movies {
		entries, err := client.Rankings(ctx, userID, len(list))
		if err != nil {
			return nil, fmt.Errorf("rankings for %s: %w", userID, err)
		}
		rep, err := verify(userID, entries, list)
		if err != nil {
			return nil, err
		}
		stats.Inversions += rep.Inversions
		stats.Misplaced += rep.Misplaced
		if cfg.Verbose {
			log.Info(ctx, "user verified",
				logger.String("user_id", userID),
				logger.Int("entries", rep.Entries),
				logger.Int("inversions", rep.Inversions),
				logger.Int("misplaced", rep.Misplaced))
		}
	}

	// Step 6: Save movies to file
	if cfg.OutputFile != "" {
		if err := saveMovies(ctx, cfg.OutputFile, movies); err != nil {
			log.Warn(ctx, "failed to save movies to file", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, log, stats)

	if stats.Inversions > 0 {
		return stats, fmt.Errorf("%w: %d inversions", ErrMisordered, stats.Inversions)
	}
	return stats, nil
}

// insertAll simulates up to cfg.Workers users at once. A user's movies are
// inserted in order by one goroutine since each placement depends on the
// last. Individual failures are counted; only cancellation or an open
// breaker aborts the run.
func insertAll(ctx context.Context, cfg *Config, client *Client, movies map[string][]Movie, stats *Stats) error {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, cfg.Workers))

	for userID, list := range movies {
		g.Go(func() error {
			for _, m := range list {
				if err := gctx.Err(); err != nil {
					return err
				}
				rounds, err := insertMovie(gctx, client, m, list)
				if errors.Is(err, gobreaker.ErrOpenState) {
					return err
				}

				mu.Lock()
				if err != nil {
					stats.Failed++
				} else {
					stats.Inserted++
					stats.Comparisons += rounds
					stats.MaxComparisons = max(stats.MaxComparisons, rounds)
				}
				mu.Unlock()

				if err != nil {
					logger.Get().Warn(gctx, "insertion failed",
						logger.String("user_id", userID),
						logger.String("item_id", m.ID),
						logger.Error(err))
				} else if cfg.Verbose {
					logger.Get().Debug(gctx, "movie inserted",
						logger.String("user_id", userID),
						logger.String("item_id", m.ID),
						logger.Int("comparisons", rounds))
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// insertMovie places m, answering every comparison from the hidden scores.
func insertMovie(ctx context.Context, client *Client, m Movie, pool []Movie) (int, error) {
	hidden := make(map[string]float64, len(pool))
	for _, p := range pool {
		hidden[p.ID] = p.Hidden
	}

	sess, err := client.Start(ctx, m)
	if err != nil {
		return 0, err
	}

	for round := 0; sess.Status == types.StatusActive; round++ {
		if round >= maxRoundsPerItem {
			return round, fmt.Errorf("session %s did not finish", sess.ID)
		}
		c := sess.Comparison
		winner := c.NewItem.ID
		if hidden[c.Target.ID] > hidden[c.NewItem.ID] {
			winner = c.Target.ID
		}
		if sess, err = client.Choose(ctx, sess.ID, winner, sess.ID+"-"+strconv.Itoa(round)); err != nil {
			return round, err
		}
	}
	if sess.Result == nil {
		return 0, fmt.Errorf("session %s finished without a result", sess.ID)
	}
	return sess.Result.Comparisons, nil
}

func waitForIdle(ctx context.Context, client *Client, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()
	for {
		st, err := client.Stats(ctx)
		if err != nil {
			return err
		}
		if st.QueueDepth == 0 && st.ActiveSessions == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func saveMovies(ctx context.Context, filename string, movies map[string][]Movie) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	var all []Movie
	for _, list := range movies {
		all = append(all, list...)
	}
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal movies: %w", err)
	}
	if err := os.WriteFile(filename, data, filePermission); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	logger.Get().Info(ctx, "movies saved to file", logger.String("filename", filename), logger.Int("count", len(all)))
	return nil
}

func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	log.Info(ctx, "final statistics",
		logger.Int("users", stats.Users),
		logger.Int("inserted", stats.Inserted),
		logger.Int("failed", stats.Failed),
		logger.Float64("avgComparisons", stats.AvgComparisons()),
		logger.Int("maxComparisons", stats.MaxComparisons),
		logger.Int("inversions", stats.Inversions),
		logger.Int("misplaced", stats.Misplaced),
		logger.String("duration", stats.Duration.String()))
}
