package metrics

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

// counterTotal sums every series of the named family.
func counterTotal(reg *prometheus.Registry, name string) float64 {
	fams, err := reg.Gather()
	So(err, ShouldBeNil)
	var total float64
	for _, mf := range fams {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("calibration"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then collectors use the namespace and constant labels", func() {
				manager.RecordAdjustment("apply")
				fams, err := registry.Gather()
				So(err, ShouldBeNil)
				var found bool
				for _, mf := range fams {
					if mf.GetName() == "test_calibration_calibration_adjustments_total" {
						found = true
						labels := map[string]string{}
						for _, lp := range mf.GetMetric()[0].GetLabel() {
							labels[lp.GetName()] = lp.GetValue()
						}
						So(labels["env"], ShouldEqual, "test")
						So(labels["kind"], ShouldEqual, "apply")
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When two managers share a registry", func() {
			registry := prometheus.NewRegistry()
			NewManager(WithPrometheusRegistry(registry))

			Convey("Then the second registration panics", func() {
				So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given a manager on its own registry", t, func() {
		registry := prometheus.NewRegistry()
		m := NewManager(WithPrometheusRegistry(registry))

		Convey("Scoring counters accumulate by label", func() {
			m.RecordRatingCalculated("calculated")
			m.RecordRatingCalculated("calculated")
			m.RecordRatingCalculated("pending")
			m.RecordClassification("star")
			m.RecordPotentialAssessment()
			So(counterTotal(registry, "perfcal_engine_ratings_calculated_total"), ShouldEqual, 3)
			So(counterTotal(registry, "perfcal_engine_ninebox_classifications_total"), ShouldEqual, 1)
			So(counterTotal(registry, "perfcal_engine_potential_assessments_total"), ShouldEqual, 1)
		})

		Convey("Calibration counters accumulate", func() {
			m.RecordSessionTransition("start")
			m.RecordSessionTransition("close")
			m.RecordArtifactGenerated()
			m.RecordArtifactVerification("ok")
			m.RecordIdempotentReplay()
			So(counterTotal(registry, "perfcal_engine_session_transitions_total"), ShouldEqual, 2)
			So(counterTotal(registry, "perfcal_engine_audit_artifacts_generated_total"), ShouldEqual, 1)
			So(counterTotal(registry, "perfcal_engine_idempotent_replays_total"), ShouldEqual, 1)
		})

		Convey("Histograms and gauges accept edge values", func() {
			So(func() {
				m.RecordRecalculationDuration(0)
				m.RecordStoreTransaction("memory", "commit", 0.002)
				m.RecordHTTPRequestDuration("", "", "200", 30)
				m.AddWorkerActive(1)
				m.AddWorkerActive(-1)
				m.RecordWorkerTask("failed")
				m.RecordErrorByComponent("", "")
			}, ShouldNotPanic)
			So(counterTotal(registry, "perfcal_engine_store_transactions_total"), ShouldEqual, 1)
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given concurrent recording on the global manager", t, func() {
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					RecordAdjustment("apply")
					RecordHTTPRequest("/test", "GET", "200")
					RecordStoreTransaction("memory", "commit", float64(j)/1000)
				}
			}()
		}
		wg.Wait()

		Convey("Then the custom registry gathers without error", func() {
			_, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			So(counterTotal(GetRegistry(), "perfcal_engine_calibration_adjustments_total"), ShouldBeGreaterThanOrEqualTo, 1000)
		})
	})
}
