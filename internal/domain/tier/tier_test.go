package tier_test

import (
	"errors"
	"math"
	"testing"

	"github.com/marquee/tierlist/internal/domain/tier"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInterpolate(t *testing.T) {
	Convey("Given a band of [7.0, 7.9]", t, func() {
		min, max := 7.0, 7.9

		Convey("When the tier has a single occupant", func() {
			Convey("Then every index maps to the top of the band", func() {
				for _, idx := range []int{0, 1, 5, -3} {
					So(tier.Interpolate(idx, 1, min, max), ShouldEqual, max)
				}
				So(tier.Interpolate(0, 0, min, max), ShouldEqual, max)
			})
		})

		Convey("When the tier has several occupants", func() {
			for _, total := range []int{2, 3, 7, 50} {
				So(tier.Interpolate(0, total, min, max), ShouldEqual, max)
				So(tier.Interpolate(total-1, total, min, max), ShouldAlmostEqual, min, 1e-9)
			}

			Convey("Then scores fall linearly from best to worst", func() {
				So(tier.Interpolate(1, 3, min, max), ShouldAlmostEqual, 7.45, 1e-9)
				prev := math.Inf(1)
				for i := 0; i < 10; i++ {
					s := tier.Interpolate(i, 10, min, max)
					So(s, ShouldBeLessThan, prev)
					prev = s
				}
			})
		})

		Convey("When the index lies past the end of the tier", func() {
			Convey("Then the score extrapolates below the band", func() {
				So(tier.Interpolate(4, 3, min, max), ShouldBeLessThan, min)
				So(tier.Interpolate(-1, 3, min, max), ShouldBeGreaterThan, max)
			})
		})
	})
}

func TestParse(t *testing.T) {
	Convey("Given tier letters", t, func() {
		Convey("Then valid letters parse regardless of case", func() {
			for i, s := range []string{"S", "a", " b ", "C", "d"} {
				got, err := tier.Parse(s)
				So(err, ShouldBeNil)
				So(got, ShouldEqual, tier.All()[i])
			}
		})

		Convey("Then unknown letters are rejected", func() {
			_, err := tier.Parse("E")
			So(errors.Is(err, tier.ErrUnknownTier), ShouldBeTrue)
		})

		Convey("Then text round-trips through the letter form", func() {
			b, err := tier.A.MarshalText()
			So(err, ShouldBeNil)
			So(string(b), ShouldEqual, "A")

			var got tier.Tier
			So(got.UnmarshalText([]byte("c")), ShouldBeNil)
			So(got, ShouldEqual, tier.C)

			_, err = tier.Tier(9).MarshalText()
			So(err, ShouldNotBeNil)
		})
	})
}

func TestBands(t *testing.T) {
	Convey("Given the five tier bands", t, func() {
		Convey("Then bands are ordered with S highest", func() {
			all := tier.All()
			for i := 1; i < len(all); i++ {
				So(all[i-1].Band().Min, ShouldBeGreaterThan, all[i].Band().Max)
				So(all[i-1].Better(all[i]), ShouldBeTrue)
			}
		})

		Convey("Then the midpoint and clamp helpers stay in band", func() {
			b := tier.B.Band()
			So(b.Midpoint(), ShouldAlmostEqual, 7.45, 1e-9)
			So(b.Clamp(9.5), ShouldEqual, b.Max)
			So(b.Clamp(1.0), ShouldEqual, b.Min)
			So(b.Clamp(7.2), ShouldEqual, 7.2)
			So(b.Contains(7.0), ShouldBeTrue)
			So(b.Contains(7.95), ShouldBeFalse)
		})
	})
}

func TestNaturalTier(t *testing.T) {
	Convey("Given scores across the scale", t, func() {
		cases := []struct {
			score float64
			want  tier.Tier
		}{
			{10.0, tier.S},
			{9.0, tier.S},
			{8.95, tier.A},
			{8.0, tier.A},
			{7.5, tier.B},
			{6.0, tier.C},
			{5.99, tier.D},
			{0.0, tier.D},
			{-2.0, tier.D},
			{12.0, tier.S},
		}

		Convey("Then each maps to the first band whose min it meets", func() {
			for _, c := range cases {
				So(tier.NaturalTier(c.score), ShouldEqual, c.want)
			}
		})
	})
}
