package convert_test

import (
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/switchboard/pkg/convert"
	"github.com/papercomputeco/switchboard/pkg/llm"
	"github.com/papercomputeco/switchboard/pkg/llm/dialect"
)

// transcript flattens a request into role:text pairs for order comparisons.
func transcript(c *convert.Converter, d dialect.Dialect, payload []byte) []string {
	codec, err := c.Codec(d)
	Expect(err).NotTo(HaveOccurred())
	req, err := codec.DecodeRequest(payload)
	Expect(err).NotTo(HaveOccurred())

	out := make([]string, 0, len(req.Messages))
	for _, msg := range req.Messages {
		out = append(out, msg.Role+":"+msg.GetText())
	}
	return out
}

var _ = Describe("Converter", func() {
	var c *convert.Converter

	BeforeEach(func() {
		c = convert.New(convert.Config{DefaultMaxTokens: 512})
	})

	Describe("round trips", func() {
		DescribeTable("Messages to Chat Completions and back preserves order and text",
			func(payload string) {
				b, _, err := c.Request(dialect.Messages, dialect.ChatCompletions, []byte(payload))
				Expect(err).NotTo(HaveOccurred())
				a, _, err := c.Request(dialect.ChatCompletions, dialect.Messages, b)
				Expect(err).NotTo(HaveOccurred())

				Expect(transcript(c, dialect.Messages, a)).To(Equal(transcript(c, dialect.Messages, []byte(payload))))
			},
			Entry("system string and simple turns", `{
				"model": "claude-sonnet-4-5", "max_tokens": 100, "system": "You are terse.",
				"messages": [
					{"role": "user", "content": "Hi"},
					{"role": "assistant", "content": "Hello."},
					{"role": "user", "content": "Bye"}
				]}`),
			Entry("system blocks and multi-part content", `{
				"model": "claude-sonnet-4-5", "max_tokens": 100,
				"system": [{"type": "text", "text": "Part one. "}, {"type": "text", "text": "Part two."}],
				"messages": [
					{"role": "user", "content": [{"type": "text", "text": "multi"}, {"type": "text", "text": "-part"}]}
				]}`),
			Entry("no system prompt, unicode and whitespace", `{
				"model": "claude-sonnet-4-5", "max_tokens": 100,
				"messages": [{"role": "user", "content": "  héllo\n\twörld 🚀  "}]}`),
		)

		DescribeTable("Chat Completions to Messages and back preserves order and text",
			func(payload string) {
				a, _, err := c.Request(dialect.ChatCompletions, dialect.Messages, []byte(payload))
				Expect(err).NotTo(HaveOccurred())
				b, _, err := c.Request(dialect.Messages, dialect.ChatCompletions, a)
				Expect(err).NotTo(HaveOccurred())

				Expect(transcript(c, dialect.ChatCompletions, b)).To(Equal(transcript(c, dialect.ChatCompletions, []byte(payload))))
			},
			Entry("leading system message", `{
				"model": "gpt-4o",
				"messages": [
					{"role": "system", "content": "Be kind."},
					{"role": "user", "content": "Hi"},
					{"role": "assistant", "content": "Hello!"}
				]}`),
			Entry("part list content", `{
				"model": "gpt-4o",
				"messages": [{"role": "user", "content": [{"type": "text", "text": "a"}, {"type": "text", "text": "b"}]}]}`),
		)
	})

	Describe("Request", func() {
		It("relocates system content without duplicating it", func() {
			out, _, err := c.Request(dialect.Messages, dialect.ChatCompletions, []byte(`{
				"model": "claude-sonnet-4-5", "max_tokens": 100, "system": "S",
				"messages": [{"role": "user", "content": "U"}]}`))
			Expect(err).NotTo(HaveOccurred())

			var body struct {
				System   any `json:"system"`
				Messages []struct {
					Role    string `json:"role"`
					Content string `json:"content"`
				} `json:"messages"`
			}
			Expect(json.Unmarshal(out, &body)).To(Succeed())
			Expect(body.System).To(BeNil())
			Expect(body.Messages).To(HaveLen(2))
			Expect(body.Messages[0].Role).To(Equal("system"))
			Expect(body.Messages[0].Content).To(Equal("S"))
		})

		It("reports dropped extension fields without failing", func() {
			_, report, err := c.Request(dialect.ChatCompletions, dialect.Messages, []byte(`{
				"model": "gpt-4o", "seed": 7, "logprobs": true,
				"messages": [{"role": "user", "content": "Hi"}]}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Warnings).To(ContainElements(
				HaveField("Field", "logprobs"),
				HaveField("Field", "seed"),
				HaveField("Field", "max_tokens"),
			))
		})

		It("fails on an interleaved system message", func() {
			_, _, err := c.Request(dialect.ChatCompletions, dialect.Messages, []byte(`{
				"model": "gpt-4o",
				"messages": [{"role": "user", "content": "Hi"}, {"role": "system", "content": "Late"}]}`))
			var conversion *llm.ConversionError
			Expect(errors.As(err, &conversion)).To(BeTrue())
		})

		It("propagates validation errors from the source dialect", func() {
			_, _, err := c.Request(dialect.Messages, dialect.ChatCompletions, []byte(`{"model": "m"}`))
			var validation *llm.SchemaValidationError
			Expect(errors.As(err, &validation)).To(BeTrue())
		})
	})

	Describe("Response", func() {
		It("converts a Messages response into Chat Completions", func() {
			out, resp, _, err := c.Response(dialect.Messages, dialect.ChatCompletions, []byte(`{
				"id": "msg_7", "type": "message", "role": "assistant", "model": "claude-sonnet-4-5",
				"content": [{"type": "text", "text": "Four"}],
				"stop_reason": "end_turn",
				"usage": {"input_tokens": 11, "output_tokens": 1}
			}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Message.GetText()).To(Equal("Four"))
			Expect(string(out)).To(ContainSubstring(`"id":"msg_7"`))
			Expect(string(out)).To(ContainSubstring(`"finish_reason":"stop"`))
			Expect(string(out)).To(ContainSubstring(`"prompt_tokens":11`))
		})

		It("converts a Chat Completions response into Messages", func() {
			out, _, _, err := c.Response(dialect.ChatCompletions, dialect.Messages, []byte(`{
				"id": "chatcmpl-3", "object": "chat.completion", "created": 1, "model": "gpt-4o",
				"choices": [{"index": 0, "message": {"role": "assistant", "content": "Yes"}, "finish_reason": "tool_calls"}],
				"usage": {"prompt_tokens": 5, "completion_tokens": 1, "total_tokens": 6}
			}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(out)).To(ContainSubstring(`"stop_reason":"tool_use"`))
			Expect(string(out)).To(ContainSubstring(`"output_tokens":1`))
		})

		It("fails when the mandatory Messages stop reason is unmapped", func() {
			_, _, _, err := c.Response(dialect.ChatCompletions, dialect.Messages, []byte(`{
				"id": "chatcmpl-3", "model": "gpt-4o",
				"choices": [{"index": 0, "message": {"role": "assistant", "content": "Yes"}, "finish_reason": "weird"}]
			}`))
			var conversion *llm.ConversionError
			Expect(errors.As(err, &conversion)).To(BeTrue())
		})
	})

	Describe("finish reason overrides", func() {
		It("uses configured vocabulary entries", func() {
			table, err := dialect.NewFinishTable(map[dialect.Dialect]map[string]string{
				dialect.ChatCompletions: {"weird": "length"},
			})
			Expect(err).NotTo(HaveOccurred())

			c = convert.New(convert.Config{Finish: table})
			out, _, _, err := c.Response(dialect.ChatCompletions, dialect.Messages, []byte(`{
				"id": "chatcmpl-3", "model": "gpt-4o",
				"choices": [{"index": 0, "message": {"role": "assistant", "content": "Yes"}, "finish_reason": "weird"}]
			}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(out)).To(ContainSubstring(`"stop_reason":"max_tokens"`))
		})
	})
})

var _ = Describe("Converter.Stream", func() {
	It("builds a passthrough converter for matching dialects", func() {
		c := convert.New(convert.Config{})

		sc, err := c.Stream(dialect.Messages, dialect.Messages)
		Expect(err).NotTo(HaveOccurred())
		Expect(sc.Passthrough()).To(BeTrue())

		sc, err = c.Stream(dialect.ChatCompletions, dialect.Messages)
		Expect(err).NotTo(HaveOccurred())
		Expect(sc.Passthrough()).To(BeFalse())
	})

	It("rejects unknown dialects", func() {
		c := convert.New(convert.Config{})
		_, err := c.Stream("responses", dialect.Messages)
		Expect(err).To(HaveOccurred())
	})
})
