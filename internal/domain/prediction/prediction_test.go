package prediction_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/marquee/tierlist/internal/domain/model"
	"github.com/marquee/tierlist/internal/domain/prediction"
	"github.com/marquee/tierlist/internal/domain/tier"
	. "github.com/smartystreets/goconvey/convey"
)

func f(v float64) *float64 { return &v }

// history builds n filler items in tier D so TotalRanked can be controlled
// without touching the tier under test.
func history(n int) []model.Item {
	out := make([]model.Item, n)
	for i := range out {
		out[i] = model.Item{ID: fmt.Sprintf("h%d", i), Genres: []string{"Filler"}, Tier: tier.D, Rank: i}
	}
	return out
}

func TestComputeSignals(t *testing.T) {
	Convey("Given a collection with a populated B tier", t, func() {
		items := []model.Item{
			{ID: "b0", Genres: []string{"Action"}, Tier: tier.B, Rank: 0, Bracket: model.BracketCommercial},
			{ID: "b1", Genres: []string{"Drama"}, Tier: tier.B, Rank: 1, Bracket: model.BracketArtisan},
			{ID: "b2", Genres: []string{"Action", "Drama"}, Tier: tier.B, Rank: 2, Bracket: model.BracketCommercial},
			{ID: "s0", Genres: []string{"Action"}, Tier: tier.S, Rank: 0},
		}

		Convey("When computing signals for an Action item", func() {
			s := prediction.ComputeSignals(items, "action", model.BracketCommercial, f(12), tier.B)

			Convey("Then genre affinity averages same-tier genre peers", func() {
				So(s.GenreAffinity, ShouldNotBeNil)
				// b0 -> 7.9, b2 -> 7.0
				So(*s.GenreAffinity, ShouldAlmostEqual, 7.45, 1e-9)
			})

			Convey("And bracket affinity averages same-tier bracket peers", func() {
				So(s.BracketAffinity, ShouldNotBeNil)
				So(*s.BracketAffinity, ShouldAlmostEqual, 7.45, 1e-9)
			})

			Convey("And the outside score is clamped into the band", func() {
				So(*s.GlobalScore, ShouldEqual, 7.9)
			})

			Convey("And every ranked item counts toward history", func() {
				So(s.TotalRanked, ShouldEqual, 4)
			})
		})

		Convey("When no same-tier item shares the genre or bracket", func() {
			s := prediction.ComputeSignals(items, "Horror", model.BracketDocumentary, nil, tier.B)

			Convey("Then the signals are absent rather than zero", func() {
				So(s.GenreAffinity, ShouldBeNil)
				So(s.BracketAffinity, ShouldBeNil)
				So(s.GlobalScore, ShouldBeNil)
			})
		})

		Convey("When the bracket is unknown", func() {
			s := prediction.ComputeSignals(items, "Action", model.BracketNone, nil, tier.B)

			Convey("Then no bracket affinity is derived", func() {
				So(s.BracketAffinity, ShouldBeNil)
			})
		})
	})
}

func TestPredictScore(t *testing.T) {
	Convey("Given a new user below the history threshold", t, func() {
		s := prediction.Signals{
			GenreAffinity:   f(8.0),
			BracketAffinity: f(8.1),
			TotalRanked:     prediction.NewUserThreshold - 1,
		}

		Convey("When no outside score is known", func() {
			Convey("Then the tier midpoint is used and history is ignored", func() {
				So(prediction.PredictScore(s, tier.A), ShouldAlmostEqual, tier.A.Band().Midpoint(), 1e-9)
			})
		})

		Convey("When an outside score is known", func() {
			s.GlobalScore = f(8.2)

			Convey("Then it wins outright", func() {
				So(prediction.PredictScore(s, tier.A), ShouldEqual, 8.2)
			})
		})

		Convey("When genre and bracket signals change", func() {
			base := prediction.PredictScore(s, tier.A)
			s.GenreAffinity = f(8.9)
			s.BracketAffinity = nil

			Convey("Then the prediction does not move", func() {
				So(prediction.PredictScore(s, tier.A), ShouldEqual, base)
			})
		})
	})

	Convey("Given an established user", t, func() {
		total := prediction.NewUserThreshold + 10

		Convey("When all three signals are present", func() {
			s := prediction.Signals{GenreAffinity: f(8.0), GlobalScore: f(8.8), BracketAffinity: f(8.4), TotalRanked: total}

			Convey("Then the fixed weights blend them", func() {
				want := 8.0*0.45 + 8.8*0.35 + 8.4*0.20
				So(prediction.PredictScore(s, tier.A), ShouldAlmostEqual, want, 1e-9)
			})
		})

		Convey("When the genre signal is missing", func() {
			s := prediction.Signals{GlobalScore: f(8.8), BracketAffinity: f(8.0), TotalRanked: total}

			Convey("Then the remaining weights are renormalised", func() {
				want := 8.8*(0.35/0.55) + 8.0*(0.20/0.55)
				So(prediction.PredictScore(s, tier.A), ShouldAlmostEqual, want, 1e-9)
			})
		})

		Convey("When every signal is missing", func() {
			s := prediction.Signals{TotalRanked: total}

			Convey("Then the tier midpoint is used", func() {
				So(prediction.PredictScore(s, tier.C), ShouldAlmostEqual, tier.C.Band().Midpoint(), 1e-9)
			})
		})
	})

	Convey("Given arbitrary signal combinations", t, func() {
		values := []*float64{nil, f(-5), f(0), f(6.5), f(9.5), f(42), f(math.NaN())}

		Convey("Then the prediction always stays inside the band", func() {
			for _, tt := range tier.All() {
				band := tt.Band()
				for _, g := range values {
					for _, gl := range values {
						for _, br := range values {
							for _, total := range []int{0, 14, 15, 400} {
								s := prediction.Signals{GenreAffinity: g, GlobalScore: gl, BracketAffinity: br, TotalRanked: total}
								got := prediction.PredictScore(s, tt)
								So(band.Contains(got), ShouldBeTrue)
							}
						}
					}
				}
			}
		})
	})
}

func TestPredictorOptions(t *testing.T) {
	Convey("Given a predictor with custom options", t, func() {
		p := prediction.NewPredictor(
			prediction.WithNewUserThreshold(0),
			prediction.WithWeights(prediction.Weights{Genre: 1}),
		)

		Convey("When only genre carries weight", func() {
			s := prediction.Signals{GenreAffinity: f(7.2), GlobalScore: f(7.9)}

			Convey("Then the genre signal alone decides", func() {
				So(p.Predict(s, tier.B), ShouldAlmostEqual, 7.2, 1e-9)
			})
		})

		Convey("When invalid weights are supplied", func() {
			q := prediction.NewPredictor(prediction.WithWeights(prediction.Weights{Genre: -1, Global: 1}))
			s := prediction.Signals{GenreAffinity: f(7.0), GlobalScore: f(7.9), TotalRanked: 100}

			Convey("Then the defaults are kept", func() {
				So(q.Predict(s, tier.B), ShouldAlmostEqual, (7.0*0.45+7.9*0.35)/0.80, 1e-9)
			})
		})
	})
}

func TestSignalsEndToEnd(t *testing.T) {
	Convey("Given an established user's collection", t, func() {
		items := append(history(20), model.Item{ID: "a0", Genres: []string{"Drama"}, Tier: tier.A, Rank: 0})

		Convey("When predicting a Drama item for tier A", func() {
			s := prediction.ComputeSignals(items, "Drama", model.BracketNone, nil, tier.A)
			got := prediction.PredictScore(s, tier.A)

			Convey("Then the sole genre peer's score dominates", func() {
				So(got, ShouldAlmostEqual, 8.9, 1e-9)
			})
		})
	})
}
