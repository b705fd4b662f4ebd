// Package storagetest holds the behavior every storage.Driver must show,
// as ginkgo specs shared by the driver test suites.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/switchboard/pkg/calllog"
	"github.com/papercomputeco/switchboard/pkg/llm"
	"github.com/papercomputeco/switchboard/pkg/llm/dialect"
	"github.com/papercomputeco/switchboard/pkg/perf"
	"github.com/papercomputeco/switchboard/pkg/storage"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// Record builds a record created offset seconds after a fixed epoch.
func Record(id string, offset int, status calllog.Status, family dialect.Family, model string, ttft *time.Duration) *calllog.Record {
	rec := &calllog.Record{
		ID:        id,
		CreatedAt: epoch.Add(time.Duration(offset) * time.Second),
		Path:      "/v1/messages",
		Dialect:   dialect.Messages,
		Family:    family,
		Model:     model,
		Request:   fmt.Sprintf(`{"model":%q}`, model),
		Status:    status,
	}
	if ttft != nil {
		total := *ttft * 2
		rec.Sample = &perf.Sample{
			StartedAt: rec.CreatedAt,
			Mode:      perf.Buffered,
			Metrics:   perf.Metrics{TTFT: ttft, TotalLatency: &total},
		}
		rec.Response = &llm.ChatResponse{
			ID:         "msg_" + id,
			Model:      model,
			Message:    llm.NewTextMessage(llm.RoleAssistant, "hello"),
			StopReason: llm.FinishStop,
			Usage:      &llm.Usage{PromptTokens: 3, CompletionTokens: 1, TotalTokens: 4},
		}
	}
	return rec
}

func ms(n int) *time.Duration {
	d := time.Duration(n) * time.Millisecond
	return &d
}

// DescribeDriver registers the shared driver specs. newDriver is called
// before each test and must return an empty store.
func DescribeDriver(newDriver func() storage.Driver) {
	var (
		driver storage.Driver
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = newDriver()
	})

	AfterEach(func() {
		if driver != nil {
			driver.Close()
		}
	})

	Describe("Put and Get", func() {
		It("round trips a record", func() {
			rec := Record("a", 0, calllog.StatusCompleted, dialect.Anthropic, "claude-sonnet-4-5", ms(100))
			rec.Warnings = []llm.Warning{{Field: "top_k", Reason: "dropped"}}
			Expect(driver.Put(ctx, rec)).To(Succeed())

			got, err := driver.Get(ctx, "a")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal("a"))
			Expect(got.CreatedAt.Equal(rec.CreatedAt)).To(BeTrue())
			Expect(got.Status).To(Equal(calllog.StatusCompleted))
			Expect(got.Response.Message.GetText()).To(Equal("hello"))
			Expect(got.Response.StopReason).To(Equal(llm.FinishStop))
			Expect(*got.Sample.Metrics.TTFT).To(Equal(100 * time.Millisecond))
			Expect(got.Warnings).To(Equal(rec.Warnings))
		})

		It("replaces a record stored twice", func() {
			rec := Record("a", 0, calllog.StatusInterrupted, dialect.OpenAI, "gpt-4o", nil)
			Expect(driver.Put(ctx, rec)).To(Succeed())

			rec.Status = calllog.StatusCompleted
			Expect(driver.Put(ctx, rec)).To(Succeed())

			got, err := driver.Get(ctx, "a")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(calllog.StatusCompleted))

			all, err := driver.List(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(1))
		})

		It("returns NotFoundError for a missing record", func() {
			_, err := driver.Get(ctx, "missing")
			var notFound storage.NotFoundError
			Expect(errors.As(err, &notFound)).To(BeTrue())
			Expect(notFound.ID).To(Equal("missing"))
		})

		It("rejects a nil record", func() {
			Expect(driver.Put(ctx, nil)).NotTo(Succeed())
		})
	})

	Describe("List", func() {
		BeforeEach(func() {
			for i, id := range []string{"first", "second", "third"} {
				Expect(driver.Put(ctx, Record(id, i, calllog.StatusCompleted, dialect.OpenAI, "gpt-4o", nil))).To(Succeed())
			}
		})

		It("returns records newest first", func() {
			all, err := driver.List(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(3))
			Expect(all[0].ID).To(Equal("third"))
			Expect(all[2].ID).To(Equal("first"))
		})

		It("honors the limit", func() {
			some, err := driver.List(ctx, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(some).To(HaveLen(2))
			Expect(some[0].ID).To(Equal("third"))
		})
	})

	Describe("Stats", func() {
		It("is empty for an empty store", func() {
			stats, err := driver.Stats(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Total).To(BeZero())
			Expect(stats.AvgTTFTMs).To(BeNil())
			Expect(stats.Recent).To(BeEmpty())
		})

		It("summarizes statuses, families, models and latency", func() {
			records := []*calllog.Record{
				Record("1", 1, calllog.StatusCompleted, dialect.Anthropic, "claude-sonnet-4-5", ms(100)),
				Record("2", 2, calllog.StatusCompleted, dialect.OpenAI, "gpt-4o", ms(300)),
				Record("3", 3, calllog.StatusInterrupted, dialect.OpenAI, "gpt-4o", nil),
				Record("4", 4, calllog.StatusFailed, "", "", nil),
			}
			for _, rec := range records {
				Expect(driver.Put(ctx, rec)).To(Succeed())
			}
			for i := range 10 {
				Expect(driver.Put(ctx, Record(fmt.Sprintf("old-%02d", i), -100+i, calllog.StatusCompleted, dialect.Anthropic, "claude-haiku-4-5", nil))).To(Succeed())
			}

			stats, err := driver.Stats(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(stats.Total).To(Equal(14))
			Expect(stats.ByStatus).To(Equal(map[string]int{"completed": 12, "interrupted": 1, "failed": 1}))
			Expect(stats.ByFamily).To(Equal(map[string]int{"anthropic": 11, "openai": 2}))
			Expect(stats.ByModel).To(HaveKeyWithValue("gpt-4o", 2))
			Expect(stats.ByModel).NotTo(HaveKey(""))

			Expect(*stats.AvgTTFTMs).To(BeNumerically("~", 200, 1e-6))
			Expect(*stats.AvgLatencyMs).To(BeNumerically("~", 400, 1e-6))
			Expect(stats.AvgTPOTMs).To(BeNil())

			Expect(stats.Recent).To(HaveLen(storage.RecentLimit))
			Expect(stats.Recent[0].ID).To(Equal("4"))
		})
	})
}
