package simulation

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"

	"github.com/google/uuid"

	"github.com/marquee/tierlist/internal/domain/tier"
	"github.com/marquee/tierlist/pkg/logger"
)

const randomFloatDivisor = 1000000

// Score distribution buckets, most common first.
const (
	caseAverage = iota
	caseGood
	casePoor
	caseGreat
	caseMasterpiece
	caseWide
	bucketCount
)

var (
	genres   = []string{"drama", "comedy", "horror", "sci-fi", "romance", "thriller", "western", "noir"}
	brackets = []string{"", "commercial", "artisan", "documentary", "animation"}
)

func randomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

func randomInt(n int) int {
	v, _ := rand.Int(rand.Reader, big.NewInt(int64(n)))
	return int(v.Int64())
}

// generateMovies creates n movies per user with hidden scores spread over
// every tier band.
func generateMovies(ctx context.Context, users, n int) (map[string][]Movie, error) {
	logger.Get().Info(ctx, "generating movies", logger.Int("users", users), logger.Int("perUser", n))

	out := make(map[string][]Movie, users)
	for u := 0; u < users; u++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("generation cancelled: %w", err)
		}
		userID := "sim-" + uuid.NewString()[:8]
		movies := make([]Movie, n)
		for i := range movies {
			movies[i] = generateMovie(userID, i)
		}
		out[userID] = movies
	}
	return out, nil
}

func generateMovie(userID string, index int) Movie {
	hidden := hiddenScore()
	m := Movie{
		UserID:  userID,
		ID:      uuid.NewString(),
		Title:   "Movie " + strconv.Itoa(index),
		Genres:  []string{genres[randomInt(len(genres))]},
		Bracket: brackets[randomInt(len(brackets))],
		Hidden:  hidden,
		Tier:    tier.NaturalTier(hidden).String(),
	}
	if randomInt(2) == 0 {
		// A noisy public rating, kept on the 0-10 scale.
		ext := min(10, max(0, hidden+(randomFloat()-0.5)*2))
		m.ExternalScore = &ext
	}
	return m
}

func hiddenScore() float64 {
	switch randomInt(bucketCount) {
	case caseAverage:
		return 4.0 + randomFloat()*3.0
	case caseGood:
		return 7.0 + randomFloat()*1.9
	case casePoor:
		return randomFloat() * 4.0
	case caseGreat:
		return 8.0 + randomFloat()*0.9
	case caseMasterpiece:
		return 9.0 + randomFloat()
	default:
		return randomFloat() * 10
	}
}
