package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/hireloop/caliber/internal/adapters/mq/queue"
)

func TestInMemoryQueue(t *testing.T) {
	convey.Convey("Given an in-memory outcome queue", t, func() {
		ctx := context.Background()

		convey.Convey("Enqueued outcomes come back out in order", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(10), queue.WithBufferSize(10))
			convey.So(q.Enqueue(ctx, queue.Outcome{OutcomeID: "o1"}), convey.ShouldBeTrue)
			convey.So(q.Enqueue(ctx, queue.Outcome{OutcomeID: "o2"}), convey.ShouldBeTrue)
			convey.So(q.Len(ctx), convey.ShouldEqual, 2)

			out := q.Dequeue(ctx)
			first := <-out
			second := <-out
			convey.So(first.OutcomeID, convey.ShouldEqual, "o1")
			convey.So(second.OutcomeID, convey.ShouldEqual, "o2")
		})

		convey.Convey("A full queue rejects the overflow record", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(2), queue.WithBufferSize(2))
			convey.So(q.Enqueue(ctx, queue.Outcome{OutcomeID: "o1"}), convey.ShouldBeTrue)
			convey.So(q.Enqueue(ctx, queue.Outcome{OutcomeID: "o2"}), convey.ShouldBeTrue)
			convey.So(q.Enqueue(ctx, queue.Outcome{OutcomeID: "o3"}), convey.ShouldBeFalse)
			convey.So(q.Len(ctx), convey.ShouldEqual, 2)
		})

		convey.Convey("A closed queue rejects everything", func() {
			q := queue.NewInMemoryQueue()
			convey.So(q.Close(), convey.ShouldBeNil)
			convey.So(q.IsClosed(), convey.ShouldBeTrue)
			convey.So(q.Enqueue(ctx, queue.Outcome{OutcomeID: "late"}), convey.ShouldBeFalse)
		})

		convey.Convey("Closing twice is harmless", func() {
			q := queue.NewInMemoryQueue()
			convey.So(q.Close(), convey.ShouldBeNil)
			convey.So(q.Close(), convey.ShouldBeNil)
		})

		convey.Convey("Close drains and then closes the dequeue channel", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(4), queue.WithBufferSize(4))
			convey.So(q.Enqueue(ctx, queue.Outcome{OutcomeID: "o1"}), convey.ShouldBeTrue)
			convey.So(q.Close(), convey.ShouldBeNil)

			out := q.Dequeue(ctx)
			rec, open := <-out
			convey.So(open, convey.ShouldBeTrue)
			convey.So(rec.OutcomeID, convey.ShouldEqual, "o1")

			select {
			case _, open := <-out:
				convey.So(open, convey.ShouldBeFalse)
			case <-time.After(time.Second):
				t.Fatal("dequeue channel did not close")
			}
		})
	})
}
