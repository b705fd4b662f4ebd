package anthropic_test

import (
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/switchboard/pkg/llm"
	"github.com/papercomputeco/switchboard/pkg/llm/dialect"
	"github.com/papercomputeco/switchboard/pkg/llm/provider"
	"github.com/papercomputeco/switchboard/pkg/llm/provider/anthropic"
)

func intPtr(n int) *int { return &n }

var _ = Describe("Messages Codec", func() {
	var c provider.Codec

	BeforeEach(func() {
		c = anthropic.New(dialect.DefaultFinishTable())
	})

	It("names the anthropic family and messages dialect", func() {
		Expect(c.Name()).To(Equal("anthropic"))
		Expect(c.Dialect()).To(Equal(dialect.Messages))
	})

	Describe("DecodeRequest", func() {
		It("moves the top-level system prompt into a leading system message", func() {
			req, err := c.DecodeRequest([]byte(`{
				"model": "claude-sonnet-4-5",
				"max_tokens": 256,
				"system": "You are terse.",
				"messages": [{"role": "user", "content": "Hi"}]
			}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(req.Messages).To(HaveLen(2))
			Expect(req.Messages[0].Role).To(Equal(llm.RoleSystem))
			Expect(req.Messages[0].GetText()).To(Equal("You are terse."))
			Expect(req.Messages[1].GetText()).To(Equal("Hi"))
			Expect(*req.MaxTokens).To(Equal(256))
		})

		It("keeps system block lists as separate text blocks", func() {
			req, err := c.DecodeRequest([]byte(`{
				"model": "claude-sonnet-4-5",
				"max_tokens": 16,
				"system": [{"type": "text", "text": "a"}, {"type": "text", "text": "b"}],
				"messages": [{"role": "user", "content": [{"type": "text", "text": "x"}, {"type": "text", "text": "y"}]}]
			}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(req.Messages[0].Content).To(HaveLen(2))
			Expect(req.Messages[1].GetText()).To(Equal("xy"))
		})

		It("collects unmapped fields into Extra", func() {
			req, err := c.DecodeRequest([]byte(`{
				"model": "claude-sonnet-4-5",
				"max_tokens": 16,
				"thinking": {"type": "enabled", "budget_tokens": 1024},
				"metadata": {"user_id": "u-1"},
				"messages": [{"role": "user", "content": "Hi"}]
			}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(req.Extra).To(HaveKey("thinking"))
			Expect(req.Extra).NotTo(HaveKey("metadata"))
			Expect(req.User).To(Equal("u-1"))
		})

		DescribeTable("rejects requests missing mandatory fields",
			func(payload, field string) {
				_, err := c.DecodeRequest([]byte(payload))
				var validation *llm.SchemaValidationError
				Expect(errors.As(err, &validation)).To(BeTrue())
				Expect(validation.Field).To(Equal(field))
			},
			Entry("model", `{"max_tokens": 1, "messages": [{"role": "user", "content": "Hi"}]}`, "model"),
			Entry("messages", `{"model": "m", "max_tokens": 1, "messages": []}`, "messages"),
			Entry("max_tokens", `{"model": "m", "messages": [{"role": "user", "content": "Hi"}]}`, "max_tokens"),
			Entry("role", `{"model": "m", "max_tokens": 1, "messages": [{"role": "system", "content": "Hi"}]}`, "messages[0].role"),
		)

		It("rejects malformed JSON", func() {
			_, err := c.DecodeRequest([]byte(`not json`))
			var validation *llm.SchemaValidationError
			Expect(errors.As(err, &validation)).To(BeTrue())
		})
	})

	Describe("EncodeRequest", func() {
		It("lifts leading system messages into the system field", func() {
			payload, warnings, err := c.EncodeRequest(&llm.ChatRequest{
				Model:     "claude-sonnet-4-5",
				MaxTokens: intPtr(64),
				Messages: []llm.Message{
					llm.NewTextMessage(llm.RoleSystem, "Be brief."),
					llm.NewTextMessage(llm.RoleUser, "Hello"),
				},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(warnings).To(BeEmpty())

			var out map[string]any
			Expect(json.Unmarshal(payload, &out)).To(Succeed())
			Expect(out["system"]).To(Equal("Be brief."))
			Expect(out["messages"]).To(HaveLen(1))
		})

		It("defaults max_tokens with a warning", func() {
			payload, warnings, err := anthropic.New(dialect.DefaultFinishTable(), anthropic.WithDefaultMaxTokens(321)).EncodeRequest(&llm.ChatRequest{
				Model:    "claude-sonnet-4-5",
				Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "Hello")},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(string(payload)).To(ContainSubstring(`"max_tokens":321`))
			Expect(warnings).To(ContainElement(HaveField("Field", "max_tokens")))
		})

		It("fails on a system message after the conversation started", func() {
			_, _, err := c.EncodeRequest(&llm.ChatRequest{
				Model:     "claude-sonnet-4-5",
				MaxTokens: intPtr(64),
				Messages: []llm.Message{
					llm.NewTextMessage(llm.RoleUser, "Hello"),
					llm.NewTextMessage(llm.RoleSystem, "Late"),
				},
			})
			var conversion *llm.ConversionError
			Expect(errors.As(err, &conversion)).To(BeTrue())
			Expect(conversion.Field).To(Equal("messages[1].role"))
		})

		It("drops extension fields with warnings", func() {
			_, warnings, err := c.EncodeRequest(&llm.ChatRequest{
				Model:     "claude-sonnet-4-5",
				MaxTokens: intPtr(64),
				Messages:  []llm.Message{llm.NewTextMessage(llm.RoleUser, "Hello")},
				Extra:     map[string]any{"presence_penalty": 0.5, "n": 2},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(warnings).To(HaveLen(2))
			Expect(warnings[0].Field).To(Equal("n"))
			Expect(warnings[1].Field).To(Equal("presence_penalty"))
		})

		It("converts base64 images into source blocks", func() {
			payload, _, err := c.EncodeRequest(&llm.ChatRequest{
				Model:     "claude-sonnet-4-5",
				MaxTokens: intPtr(64),
				Messages: []llm.Message{{
					Role: llm.RoleUser,
					Content: []llm.ContentBlock{
						{Type: llm.BlockText, Text: "What is this?"},
						{Type: llm.BlockImage, MediaType: "image/png", ImageBase64: "AAAA"},
					},
				}},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(string(payload)).To(ContainSubstring(`"source":{"type":"base64","media_type":"image/png","data":"AAAA"}`))
		})
	})

	Describe("DecodeResponse", func() {
		It("maps stop reason and usage", func() {
			resp, err := c.DecodeResponse([]byte(`{
				"id": "msg_01",
				"type": "message",
				"role": "assistant",
				"model": "claude-sonnet-4-5",
				"content": [{"type": "text", "text": "Hello"}, {"type": "text", "text": " there"}],
				"stop_reason": "max_tokens",
				"usage": {"input_tokens": 10, "output_tokens": 2, "cache_read_input_tokens": 4}
			}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.ID).To(Equal("msg_01"))
			Expect(resp.Message.GetText()).To(Equal("Hello there"))
			Expect(resp.StopReason).To(Equal(llm.FinishLength))
			Expect(resp.Usage.PromptTokens).To(Equal(10))
			Expect(resp.Usage.CompletionTokens).To(Equal(2))
			Expect(resp.Usage.CacheReadInputTokens).To(Equal(4))
		})

		It("reports malformed payloads as protocol errors", func() {
			_, err := c.DecodeResponse([]byte(`{"content": 5}`))
			var protocol *llm.UpstreamProtocolError
			Expect(errors.As(err, &protocol)).To(BeTrue())
		})
	})

	Describe("EncodeResponse", func() {
		It("renders a message with the mapped stop reason", func() {
			payload, _, err := c.EncodeResponse(&llm.ChatResponse{
				ID:         "chatcmpl-1",
				Model:      "gpt-4o",
				Message:    llm.NewTextMessage(llm.RoleAssistant, "Hi"),
				StopReason: llm.FinishToolUse,
				Usage:      &llm.Usage{PromptTokens: 3, CompletionTokens: 1},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(string(payload)).To(ContainSubstring(`"stop_reason":"tool_use"`))
			Expect(string(payload)).To(ContainSubstring(`"id":"chatcmpl-1"`))
			Expect(string(payload)).To(ContainSubstring(`"input_tokens":3`))
		})

		It("fails when the mandatory stop reason cannot be mapped", func() {
			_, _, err := c.EncodeResponse(&llm.ChatResponse{
				Message: llm.NewTextMessage(llm.RoleAssistant, "Hi"),
			})
			var conversion *llm.ConversionError
			Expect(errors.As(err, &conversion)).To(BeTrue())
			Expect(conversion.Field).To(Equal("stop_reason"))
		})
	})

	Describe("EncodeError", func() {
		It("renders the messages error envelope", func() {
			body := c.EncodeError(provider.APIError{Status: 404, Kind: provider.KindNotFound, Message: "no such model"})
			Expect(string(body)).To(MatchJSON(`{"type":"error","error":{"type":"not_found_error","message":"no such model"}}`))
		})
	})
})
