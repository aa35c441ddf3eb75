package validation_test

import (
	"errors"
	"testing"

	"github.com/marquee/tierlist/internal/validation"
	. "github.com/smartystreets/goconvey/convey"
)

type moveRequest struct {
	Tier  string `json:"tier" validate:"required,tier"`
	Rank  int    `json:"rank" validate:"min=0"`
	Level string `json:"level" validate:"loglevel"`
}

func TestValidateStruct(t *testing.T) {
	Convey("Given a request with custom tags", t, func() {
		Convey("When every field is valid", func() {
			err := validation.ValidateStruct(&moveRequest{Tier: "b", Rank: 3, Level: "WARN"})

			Convey("Then no error is returned", func() {
				So(err, ShouldBeNil)
			})
		})

		Convey("When several fields are invalid", func() {
			err := validation.ValidateStruct(&moveRequest{Tier: "E", Rank: -1, Level: "loud"})

			Convey("Then each failure is reported by its wire name", func() {
				var verr *validation.Error
				So(errors.As(err, &verr), ShouldBeTrue)
				So(len(verr.Fields), ShouldEqual, 3)
				So(verr.Fields[0].Field, ShouldEqual, "tier")
				So(verr.Fields[0].Tag, ShouldEqual, "tier")
				So(verr.Fields[1].Field, ShouldEqual, "rank")
				So(verr.Fields[1].Param, ShouldEqual, "0")
				So(verr.Fields[2].Tag, ShouldEqual, "loglevel")
				So(err.Error(), ShouldContainSubstring, "rank must be at least 0")
			})
		})

		Convey("When a required field is missing", func() {
			err := validation.ValidateStruct(&moveRequest{})

			Convey("Then the message names it", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "tier is required")
			})
		})
	})
}
