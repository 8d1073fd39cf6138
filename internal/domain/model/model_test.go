package model_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/okian/cosmic-journey/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNewRun(t *testing.T) {
	Convey("Given a new run", t, func() {
		now := time.Date(2024, 10, 24, 8, 0, 0, 0, time.UTC)
		r := model.NewRun("user-1", now)

		Convey("Then it starts at level 1 with no progress", func() {
			So(r.Level, ShouldEqual, 1)
			So(r.Progress, ShouldEqual, 0.0)
			So(r.StartedAt, ShouldEqual, now)
			So(r.Finished(), ShouldBeFalse)
			So(r.OwnedBy("user-1"), ShouldBeTrue)
			So(r.OwnedBy("user-2"), ShouldBeFalse)
		})
	})
}

func TestParseTimeWindow(t *testing.T) {
	Convey("Given time frame query values", t, func() {
		cases := []struct {
			in   string
			want model.TimeWindow
		}{
			{"", model.WindowAll},
			{"all", model.WindowAll},
			{"Daily", model.WindowDaily},
			{" weekly ", model.WindowWeekly},
			{"monthly", model.WindowMonthly},
		}
		for _, c := range cases {
			w, err := model.ParseTimeWindow(c.in)
			So(err, ShouldBeNil)
			So(w, ShouldEqual, c.want)
		}

		Convey("Unknown values are invalid input", func() {
			_, err := model.ParseTimeWindow("yearly")
			So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
		})
	})
}

func TestItemName(t *testing.T) {
	Convey("Given item names", t, func() {
		for _, n := range model.ItemNames {
			So(n.Valid(), ShouldBeTrue)
		}
		So(model.ItemName("laser").Valid(), ShouldBeFalse)
	})
}

func TestAccountDisplayName(t *testing.T) {
	Convey("Given accounts", t, func() {
		So(model.Account{Username: "ace", Name: "Ace Pilot"}.DisplayName(), ShouldEqual, "ace")
		So(model.Account{Name: "Ace Pilot"}.DisplayName(), ShouldEqual, "Ace Pilot")
	})
}

func TestKind(t *testing.T) {
	Convey("Given wrapped errors", t, func() {
		So(model.Kind(nil), ShouldEqual, "none")
		So(model.Kind(fmt.Errorf("op: %w", model.ErrNotFound)), ShouldEqual, "not_found")
		So(model.Kind(fmt.Errorf("op: %w", model.ErrForbidden)), ShouldEqual, "forbidden")
		So(model.Kind(model.ErrInvalidState), ShouldEqual, "invalid_state")
		So(model.Kind(model.ErrConflict), ShouldEqual, "conflict")
		So(model.Kind(model.ErrUpstreamUnavailable), ShouldEqual, "upstream_unavailable")
		So(model.Kind(errors.New("other")), ShouldEqual, "internal")
	})
}
