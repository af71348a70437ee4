package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/perfcal/internal/adapters/worker"
	"github.com/okian/perfcal/pkg/logger"
)

func items(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("emp-%02d", i)
	}
	return out
}

func TestPool(t *testing.T) {
	Convey("Given a pool of three workers", t, func() {
		p := worker.NewPool(worker.WithSize(3), worker.WithName("recalc"), worker.WithLogger(logger.Discard()))
		So(p.Size(), ShouldEqual, 3)

		Convey("Every item is filed once under its status", func() {
			rep := p.Run(context.Background(), items(10), func(ctx context.Context, item string) (string, error) {
				if item == "emp-03" {
					return "", errors.New("bad responses")
				}
				if item < "emp-05" {
					return "calculated", nil
				}
				return "pending", nil
			})
			So(rep.ByStatus["calculated"], ShouldResemble, []string{"emp-00", "emp-01", "emp-02", "emp-04"})
			So(rep.Count("pending"), ShouldEqual, 5)
			So(rep.Count(worker.StatusFailed), ShouldEqual, 1)
			So(rep.Failed["emp-03"], ShouldNotBeNil)
		})

		Convey("Concurrency never exceeds the limit", func() {
			var running, peak atomic.Int32
			p.Run(context.Background(), items(30), func(ctx context.Context, item string) (string, error) {
				n := running.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				running.Add(-1)
				return "ok", nil
			})
			So(peak.Load(), ShouldBeLessThanOrEqualTo, 3)
			So(peak.Load(), ShouldBeGreaterThan, 0)
		})

		Convey("A cancelled context fails the items not yet started", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			rep := p.Run(ctx, items(4), func(ctx context.Context, item string) (string, error) {
				return "ok", nil
			})
			So(rep.Count(worker.StatusFailed), ShouldEqual, 4)
			So(errors.Is(rep.Failed["emp-00"], context.Canceled), ShouldBeTrue)
		})

		Convey("An empty run reports nothing", func() {
			rep := p.Run(context.Background(), nil, func(ctx context.Context, item string) (string, error) {
				return "ok", nil
			})
			So(rep.ByStatus, ShouldBeEmpty)
			So(rep.Failed, ShouldBeEmpty)
		})
	})
}
