package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then collectors are registered on it", func() {
				So(manager, ShouldNotBeNil)
				manager.runsCreated.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 10}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then names use the custom prefix", func() {
				manager.levelAdvances.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := map[string]bool{}
				for _, f := range families {
					names[f.GetName()] = true
				}
				So(names["test_unit_level_advances_total"], ShouldBeTrue)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the package-level recorders", t, func() {
		before, err := Snapshot()
		So(err, ShouldBeNil)

		Convey("When recording run progression", func() {
			RecordRunCreated()
			RecordProgressUpdate("level_up")
			RecordProgressUpdate("progressed")
			RecordLevelAdvance()
			RecordRejectedMutation("advance_level", "invalid_state")

			Convey("Then the snapshot reflects the increments", func() {
				after, err := Snapshot()
				So(err, ShouldBeNil)
				So(after["runs_created_total"]-before["runs_created_total"], ShouldEqual, 1.0)
				So(after["progress_updates_total"]-before["progress_updates_total"], ShouldEqual, 2.0)
				So(after["level_advances_total"]-before["level_advances_total"], ShouldEqual, 1.0)
			})
		})

		Convey("When recording the remaining collectors", func() {
			So(func() {
				UpdateRunsTotal(10)
				RecordLeaderboardQuery("weekly", 3.5)
				RecordItemPurchase("shield")
				RecordItemUse("shield")
				RecordStoreLatency("get_one", 1.2)
				RecordStoreError("update", "upstream")
				RecordStoreConflict()
				UpdateMutationQueueDepth(3)
				RecordMutationRejected("full")
				RecordMutationLatency(2)
				UpdateMutationWorkerCount(4)
				UpdateIdempotencyKeys(12)
				RecordHTTPRequest("leaderboard", "GET", "200", 4)
				RecordErrorByEndpoint("run_progress", "PATCH", "client_error")
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(12)
			}, ShouldNotPanic)

			Convey("Then gauges hold the last value", func() {
				after, err := Snapshot()
				So(err, ShouldBeNil)
				So(after["runs"], ShouldEqual, 10.0)
				So(after["mutation_workers"], ShouldEqual, 4.0)
			})
		})
	})
}

func TestGetRegistry(t *testing.T) {
	Convey("The package registry is stable", t, func() {
		So(GetRegistry(), ShouldNotBeNil)
		So(GetRegistry(), ShouldPointTo, customRegistry)
	})
}
