package ranking_test

import (
	"testing"
	"time"

	"github.com/okian/cosmic-journey/internal/domain/model"
	"github.com/okian/cosmic-journey/internal/domain/ranking"
	. "github.com/smartystreets/goconvey/convey"
)

var now = time.Date(2024, 10, 24, 15, 30, 0, 0, time.UTC)

func TestFormatElapsed(t *testing.T) {
	Convey("Given elapsed durations", t, func() {
		cases := []struct {
			ms   int64
			want string
		}{
			{0, "0h 0m 0s"},
			{999, "0h 0m 0s"},
			{3_725_000, "1h 2m 5s"},
			{59_999, "0h 0m 59s"},
			{86_400_000, "24h 0m 0s"},
			{-10, "0h 0m 0s"},
		}
		for _, c := range cases {
			So(ranking.FormatElapsed(c.ms), ShouldEqual, c.want)
		}
	})
}

func TestElapsedMillis(t *testing.T) {
	Convey("Given a run start", t, func() {
		start := now.Add(-90 * time.Second)

		Convey("When the run is unfinished", func() {
			So(ranking.ElapsedMillis(start, nil, now), ShouldEqual, 90_000)
		})

		Convey("When the run is finished", func() {
			fin := start.Add(30 * time.Second)
			So(ranking.ElapsedMillis(start, &fin, now), ShouldEqual, 30_000)
		})

		Convey("When the start is after the end", func() {
			So(ranking.ElapsedMillis(now.Add(time.Minute), nil, now), ShouldEqual, 0)
		})
	})
}

func TestWindowStart(t *testing.T) {
	Convey("Given a run created 10 days ago", t, func() {
		created := now.AddDate(0, 0, -10)
		included := func(w model.TimeWindow) bool {
			bound, ok := ranking.WindowStart(w, now)
			return !ok || !created.Before(bound)
		}

		So(included(model.WindowAll), ShouldBeTrue)
		So(included(model.WindowMonthly), ShouldBeTrue)
		So(included(model.WindowWeekly), ShouldBeFalse)
		So(included(model.WindowDaily), ShouldBeFalse)
	})

	Convey("Given the daily window", t, func() {
		bound, ok := ranking.WindowStart(model.WindowDaily, now)
		So(ok, ShouldBeTrue)
		So(bound, ShouldEqual, time.Date(2024, 10, 24, 0, 0, 0, 0, time.UTC))
	})

	Convey("Given the monthly window", t, func() {
		bound, _ := ranking.WindowStart(model.WindowMonthly, now)
		So(bound, ShouldEqual, time.Date(2024, 9, 24, 15, 30, 0, 0, time.UTC))
	})
}

func TestNormalize(t *testing.T) {
	Convey("Given paging input", t, func() {
		cases := []struct {
			page, size         int
			wantPage, wantSize int
		}{
			{0, 0, 1, 30},
			{-3, 10, 1, 10},
			{2, 500, 2, 100},
			{4, -1, 4, 1},
			{1, 100, 1, 100},
		}
		for _, c := range cases {
			p, s := ranking.Normalize(c.page, c.size, 30, 100)
			So(p, ShouldEqual, c.wantPage)
			So(s, ShouldEqual, c.wantSize)
		}

		Convey("Then zero bounds fall back to defaults", func() {
			p, s := ranking.Normalize(1, 0, 0, 0)
			So(p, ShouldEqual, 1)
			So(s, ShouldEqual, ranking.DefaultPageSize)
		})
	})
}

func TestTotalPages(t *testing.T) {
	Convey("TotalPages rounds up", t, func() {
		So(ranking.TotalPages(0, 30), ShouldEqual, 0)
		So(ranking.TotalPages(30, 30), ShouldEqual, 1)
		So(ranking.TotalPages(31, 30), ShouldEqual, 2)
		So(ranking.TotalPages(5, 0), ShouldEqual, 0)
	})
}

func TestBuild(t *testing.T) {
	Convey("Given a store page sorted by level and progress", t, func() {
		start := now.Add(-2 * time.Hour)
		fast := start.Add(10 * time.Minute)
		slow := start.Add(40 * time.Minute)
		runs := []model.Run{
			{ID: "a", User: "u1", Level: 5, Progress: 10, StartedAt: start},
			{ID: "b", User: "u2", Level: 3, Progress: 80, StartedAt: start, FinishedAt: &slow},
			{ID: "c", User: "u3", Level: 3, Progress: 80, StartedAt: start, FinishedAt: &fast},
			{ID: "d", User: "u4", Level: 3, Progress: 95, StartedAt: start, FinishedAt: &slow},
			{ID: "e", User: "ghost", Level: 1, Progress: 0, StartedAt: start},
		}
		names := map[string]string{"u1": "ace", "u2": "bob", "u3": "cat", "u4": "dan"}

		Convey("When building page 2 with page size 5", func() {
			entries := ranking.Build(runs, names, 2, 5, now)

			Convey("Then ranks are contiguous from the page offset", func() {
				for i, e := range entries {
					So(e.Rank, ShouldEqual, 6+i)
				}
			})

			Convey("Then no adjacent pair is out of order", func() {
				for i := 1; i < len(entries); i++ {
					So(ranking.Less(entries[i], entries[i-1]), ShouldBeFalse)
				}
			})

			Convey("Then the faster of two equal runs ranks first", func() {
				ids := make([]string, len(entries))
				for i, e := range entries {
					ids[i] = e.ID
				}
				So(ids, ShouldResemble, []string{"a", "d", "c", "b", "e"})
			})

			Convey("Then entries carry elapsed time and display names", func() {
				So(entries[0].ElapsedMillis, ShouldEqual, 7_200_000)
				So(entries[0].ElapsedFormatted, ShouldEqual, "2h 0m 0s")
				So(entries[0].Username, ShouldEqual, "ace")
				So(entries[2].ElapsedFormatted, ShouldEqual, "0h 10m 0s")
				So(entries[4].Username, ShouldEqual, "")
			})
		})
	})
}
