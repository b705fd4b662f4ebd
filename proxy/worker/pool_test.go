package worker

import (
	"context"
	"errors"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/papercomputeco/switchboard/pkg/calllog"
	"github.com/papercomputeco/switchboard/pkg/eventstream"
	"github.com/papercomputeco/switchboard/pkg/llm/dialect"
	"github.com/papercomputeco/switchboard/pkg/logger"
	"github.com/papercomputeco/switchboard/pkg/metrics"
	"github.com/papercomputeco/switchboard/pkg/storage"
	"github.com/papercomputeco/switchboard/pkg/storage/inmemory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.CallLoggedEvent
	err    error
}

func (p *recordingPublisher) PublishCall(_ context.Context, ev *eventstream.CallLoggedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type failingDriver struct {
	storage.Driver
}

func (failingDriver) Put(context.Context, *calllog.Record) error {
	return errors.New("disk full")
}

func newRecord(id string) *calllog.Record {
	rec := calllog.New("/v1/messages", dialect.Messages, []byte(`{"model":"claude-sonnet-4-5"}`))
	rec.ID = id
	rec.Model = "claude-sonnet-4-5"
	rec.Family = dialect.Anthropic
	rec.Route = "direct_buffered"
	rec.Status = calllog.StatusCompleted
	return rec
}

var _ = Describe("Worker Pool", func() {
	var (
		wp        *Pool
		driver    *inmemory.Driver
		publisher *recordingPublisher
		recorder  *metrics.Recorder
		ctx       context.Context
	)

	BeforeEach(func() {
		driver = inmemory.NewDriver()
		publisher = &recordingPublisher{}
		recorder = metrics.NewRecorder()
		ctx = context.Background()

		var err error
		wp, err = NewPool(&Config{
			Driver:    driver,
			Publisher: publisher,
			Metrics:   recorder,
			Logger:    logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewPool", func() {
		It("applies defaults", func() {
			Expect(wp.config.NumWorkers).To(Equal(defaultNumWorkers))
			Expect(cap(wp.queue)).To(Equal(int(defaultJobQueueSize)))
			wp.Close()
		})
	})

	Describe("Enqueue", func() {
		It("returns true when the queue has capacity", func() {
			Expect(wp.Enqueue(Job{Record: newRecord("rec-1")})).To(BeTrue())
			wp.Close()
		})

		It("rejects jobs without a record", func() {
			Expect(wp.Enqueue(Job{})).To(BeFalse())
			wp.Close()
		})

		It("drops jobs without blocking when the queue is full", func() {
			wp.Close()

			// A pool with no running workers keeps its queue full.
			full := &Pool{
				config: &Config{Metrics: recorder},
				queue:  make(chan Job, 1),
				logger: logger.Nop(),
			}
			Expect(full.Enqueue(Job{Record: newRecord("rec-1")})).To(BeTrue())
			Expect(full.Enqueue(Job{Record: newRecord("rec-2")})).To(BeFalse())
			expected := `
# HELP switchboard_calllog_dropped_total Call records dropped because the worker queue was full.
# TYPE switchboard_calllog_dropped_total counter
switchboard_calllog_dropped_total 1
`
			Expect(testutil.GatherAndCompare(recorder.Registry(), strings.NewReader(expected),
				"switchboard_calllog_dropped_total")).To(Succeed())
		})
	})

	Describe("processing", func() {
		It("stores, publishes and observes every record", func() {
			for _, id := range []string{"rec-1", "rec-2", "rec-3"} {
				Expect(wp.Enqueue(Job{Record: newRecord(id)})).To(BeTrue())
			}
			wp.Close()

			records, err := driver.List(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(3))

			Expect(publisher.events).To(HaveLen(3))
			ids := []string{}
			for _, ev := range publisher.events {
				Expect(ev.EventType).To(Equal(eventstream.EventTypeCallLogged))
				ids = append(ids, ev.RecordID)
			}
			Expect(ids).To(ConsistOf("rec-1", "rec-2", "rec-3"))

			n, err := testutil.GatherAndCount(recorder.Registry(), "switchboard_calls_total")
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))
		})

		It("still publishes when storage fails", func() {
			wp.Close()

			var err error
			wp, err = NewPool(&Config{
				Driver:    failingDriver{},
				Publisher: publisher,
				Metrics:   recorder,
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(wp.Enqueue(Job{Record: newRecord("rec-1")})).To(BeTrue())
			wp.Close()

			Expect(publisher.events).To(HaveLen(1))
			n, err := testutil.GatherAndCount(recorder.Registry(), "switchboard_worker_errors_total")
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))
		})

		It("still stores when publishing fails", func() {
			publisher.err = errors.New("broker down")
			Expect(wp.Enqueue(Job{Record: newRecord("rec-1")})).To(BeTrue())
			wp.Close()

			got, err := driver.Get(ctx, "rec-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(calllog.StatusCompleted))
		})

		It("drops jobs enqueued after Close", func() {
			wp.Close()
			Expect(wp.Enqueue(Job{Record: newRecord("late")})).To(BeFalse())
			wp.Close()
		})

		It("works with no collaborators configured", func() {
			wp.Close()

			bare, err := NewPool(&Config{})
			Expect(err).NotTo(HaveOccurred())
			Expect(bare.Enqueue(Job{Record: newRecord("rec-1")})).To(BeTrue())
			bare.Close()
		})
	})
})
