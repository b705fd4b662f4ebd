package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/tidwall/gjson"

	"github.com/papercomputeco/switchboard/pkg/llm/dialect"
	"github.com/papercomputeco/switchboard/pkg/logger"
	"github.com/papercomputeco/switchboard/pkg/routing"
	"github.com/papercomputeco/switchboard/pkg/upstream"
)

func get(p *Proxy, path string) (int, string) {
	resp, err := p.server.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return resp.StatusCode, string(body)
}

var _ = Describe("Proxy", func() {
	Describe("New", func() {
		It("requires a routing table and a provider", func() {
			_, err := New(Config{}, nil, logger.Nop())
			Expect(err).To(MatchError(ContainSubstring("routing table")))

			table, err := routing.NewTable()
			Expect(err).NotTo(HaveOccurred())
			_, err = New(Config{Routing: table}, nil, logger.Nop())
			Expect(err).To(MatchError(ContainSubstring("provider")))
		})

		It("applies the default timeout", func() {
			p, _ := newTestProxy("http://127.0.0.1:1", 0)
			defer p.Close()
			Expect(p.config.Timeout).To(Equal(DefaultTimeout))
		})
	})

	Describe("management endpoints", func() {
		var p *Proxy

		BeforeEach(func() {
			p, _ = newTestProxy("http://127.0.0.1:1", time.Second,
				routing.Model{Name: "fast", Family: dialect.Anthropic, UpstreamModel: "claude-3-5-haiku-latest"},
				routing.Model{Name: "gpt-4o", Family: dialect.OpenAI},
			)
		})

		AfterEach(func() {
			p.Close()
		})

		It("lists the configured models", func() {
			status, body := get(p, "/v1/models")
			Expect(status).To(Equal(http.StatusOK))
			Expect(gjson.Get(body, "object").String()).To(Equal("list"))
			Expect(gjson.Get(body, "data.#.id").Value()).To(Equal([]any{"fast", "gpt-4o"}))
			Expect(gjson.Get(body, "data.0.owned_by").String()).To(Equal("anthropic"))
			Expect(gjson.Get(body, "data.1.object").String()).To(Equal("model"))
		})

		It("reports health", func() {
			status, body := get(p, "/health")
			Expect(status).To(Equal(http.StatusOK))
			Expect(gjson.Get(body, "status").String()).To(Equal("healthy"))
			Expect(gjson.Get(body, "logging_enabled").Bool()).To(BeTrue())
			Expect(gjson.Get(body, "providers").Array()).To(HaveLen(2))
			Expect(gjson.Get(body, "timestamp").Exists()).To(BeTrue())
		})

		It("summarizes the call log", func() {
			resp := postJSON(p, "/v1/messages", `{"model":"mystery","max_tokens":8,"messages":[{"role":"user","content":"Hi"}]}`)
			readBody(resp)

			Eventually(func() int64 {
				_, body := get(p, "/switchboard/stats")
				return gjson.Get(body, "total").Int()
			}).Should(Equal(int64(1)))

			_, body := get(p, "/switchboard/stats")
			Expect(gjson.Get(body, "by_status.failed").Int()).To(Equal(int64(1)))
		})

		It("lists and fetches call records", func() {
			resp := postJSON(p, "/v1/chat/completions", `{"model":"mystery","messages":[{"role":"user","content":"Hi"}]}`)
			readBody(resp)

			var body string
			Eventually(func() int64 {
				_, body = get(p, "/switchboard/calls?limit=10")
				return gjson.Get(body, "count").Int()
			}).Should(Equal(int64(1)))

			id := gjson.Get(body, "calls.0.id").String()
			Expect(id).NotTo(BeEmpty())
			Expect(gjson.Get(body, "calls.0.dialect").String()).To(Equal("chat_completions"))

			status, rec := get(p, "/switchboard/calls/"+id)
			Expect(status).To(Equal(http.StatusOK))
			Expect(gjson.Get(rec, "model").String()).To(Equal("mystery"))
			Expect(gjson.Get(rec, "status").String()).To(Equal("failed"))

			status, _ = get(p, "/switchboard/calls/does-not-exist")
			Expect(status).To(Equal(http.StatusNotFound))

			status, _ = get(p, "/switchboard/calls?limit=0")
			Expect(status).To(Equal(http.StatusBadRequest))
		})

		It("serves Prometheus metrics", func() {
			status, body := get(p, "/metrics")
			Expect(status).To(Equal(http.StatusOK))
			Expect(body).To(ContainSubstring("go_goroutines"))
		})
	})

	It("reports stats as unavailable without a driver", func() {
		table, err := routing.NewTable(routing.WithPrefixes(routing.DefaultPrefixes()...))
		Expect(err).NotTo(HaveOccurred())
		client, err := upstream.NewClient(nil)
		Expect(err).NotTo(HaveOccurred())

		p, err := New(Config{Routing: table, Provider: client}, nil, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		defer p.Close()

		status, _ := get(p, "/switchboard/stats")
		Expect(status).To(Equal(http.StatusServiceUnavailable))

		status, _ = get(p, "/switchboard/calls")
		Expect(status).To(Equal(http.StatusServiceUnavailable))

		_, body := get(p, "/health")
		Expect(gjson.Get(body, "logging_enabled").Bool()).To(BeFalse())
	})
})
