package stream_test

import (
	"bytes"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/tidwall/gjson"

	"github.com/papercomputeco/switchboard/pkg/llm"
	"github.com/papercomputeco/switchboard/pkg/llm/dialect"
	"github.com/papercomputeco/switchboard/pkg/llm/provider"
	"github.com/papercomputeco/switchboard/pkg/llm/provider/anthropic"
	"github.com/papercomputeco/switchboard/pkg/llm/provider/openai"
	"github.com/papercomputeco/switchboard/pkg/sse"
	"github.com/papercomputeco/switchboard/pkg/stream"
)

const messagesStream = `event: message_start
data: {"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-5","content":[],"usage":{"input_tokens":10,"output_tokens":1}}}

event: content_block_start
data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}

event: ping
data: {"type":"ping"}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":", wörld"}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"!"}}

event: content_block_stop
data: {"type":"content_block_stop","index":0}

event: message_delta
data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":4}}

event: message_stop
data: {"type":"message_stop"}

`

const chatStream = `data: {"id":"chatcmpl-1","object":"chat.completion.chunk","created":1700000000,"model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant","content":""}}]}

data: {"id":"chatcmpl-1","object":"chat.completion.chunk","created":1700000000,"model":"gpt-4o","choices":[{"index":0,"delta":{"content":"Hi"}}]}

data: {"id":"chatcmpl-1","object":"chat.completion.chunk","created":1700000000,"model":"gpt-4o","choices":[{"index":0,"delta":{"content":" there"}}]}

data: {"id":"chatcmpl-1","object":"chat.completion.chunk","created":1700000000,"model":"gpt-4o","choices":[{"index":0,"delta":{},"finish_reason":"length"}]}

data: {"id":"chatcmpl-1","object":"chat.completion.chunk","created":1700000000,"model":"gpt-4o","choices":[],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}

data: [DONE]

`

func readEvents(raw string) []sse.Event {
	r := sse.NewReader(strings.NewReader(raw))
	var events []sse.Event
	for {
		ev, err := r.Next()
		Expect(err).NotTo(HaveOccurred())
		if ev == nil {
			return events
		}
		events = append(events, *ev)
	}
}

// forward drives a converter the way the proxy does: write, then commit.
func forward(c *stream.Converter, events []sse.Event) ([]byte, []*llm.StreamChunk) {
	var (
		out    bytes.Buffer
		chunks []*llm.StreamChunk
	)
	for i := range events {
		frames, chunk, err := c.Next(&events[i])
		Expect(err).NotTo(HaveOccurred())
		out.Write(frames)
		if chunk != nil {
			c.Commit(chunk)
			chunks = append(chunks, chunk)
		}
	}
	return out.Bytes(), chunks
}

// chatDeltas concatenates delta.content across Chat Completions frames.
func chatDeltas(raw []byte) (string, []string) {
	var (
		text    strings.Builder
		finishs []string
	)
	for _, ev := range readEvents(string(raw)) {
		if ev.IsDone() {
			continue
		}
		text.WriteString(gjson.Get(ev.Data, "choices.0.delta.content").String())
		if reason := gjson.Get(ev.Data, "choices.0.finish_reason"); reason.Exists() && reason.Type != gjson.Null {
			finishs = append(finishs, reason.String())
		}
	}
	return text.String(), finishs
}

var _ = Describe("Converter", func() {
	var (
		messages provider.Codec
		chat     provider.Codec
	)

	BeforeEach(func() {
		finish := dialect.DefaultFinishTable()
		messages = anthropic.New(finish)
		chat = openai.New(finish)
	})

	Context("converting a Messages stream for a Chat Completions client", func() {
		It("forwards deltas whose concatenation equals the reconstruction", func() {
			c := stream.New(messages, chat)
			Expect(c.Passthrough()).To(BeFalse())

			out, chunks := forward(c, readEvents(messagesStream))

			text, finishes := chatDeltas(out)
			Expect(text).To(Equal("Hello, wörld!"))
			Expect(finishes).To(Equal([]string{"stop"}))
			Expect(string(out)).To(HaveSuffix("data: [DONE]\n\n"))

			resp, status := c.Result()
			Expect(status).To(Equal(stream.StatusCompleted))
			Expect(resp.Message.GetText()).To(Equal(text))
			Expect(resp.ID).To(Equal("msg_1"))
			Expect(resp.StopReason).To(Equal(llm.FinishStop))
			Expect(resp.Usage.CompletionTokens).To(Equal(4))
			Expect(c.Chunks()).To(Equal(3))
			Expect(c.State()).To(Equal(stream.Completed))

			for i := 1; i < len(chunks); i++ {
				Expect(chunks[i].Index).To(BeNumerically(">", chunks[i-1].Index))
			}
			Expect(chunks[len(chunks)-1].Terminal).To(BeTrue())
		})

		It("carries the usage onto the finish frame", func() {
			c := stream.New(messages, chat)
			out, _ := forward(c, readEvents(messagesStream))

			events := readEvents(string(out))
			finish := events[len(events)-2]
			Expect(gjson.Get(finish.Data, "usage.prompt_tokens").Int()).To(Equal(int64(10)))
			Expect(gjson.Get(finish.Data, "usage.total_tokens").Int()).To(Equal(int64(14)))
		})
	})

	Context("converting a Chat Completions stream for a Messages client", func() {
		It("emits the Messages event sequence", func() {
			c := stream.New(chat, messages)
			out, _ := forward(c, readEvents(chatStream))

			var types []string
			var text strings.Builder
			for _, ev := range readEvents(string(out)) {
				types = append(types, ev.Type)
				text.WriteString(gjson.Get(ev.Data, "delta.text").String())
			}
			Expect(types).To(Equal([]string{
				"message_start",
				"content_block_start",
				"content_block_delta",
				"content_block_delta",
				"content_block_stop",
				"message_delta",
				"message_stop",
			}))
			Expect(text.String()).To(Equal("Hi there"))
			Expect(string(out)).To(ContainSubstring(`"stop_reason":"max_tokens"`))

			resp, status := c.Result()
			Expect(status).To(Equal(stream.StatusCompleted))
			Expect(resp.Message.GetText()).To(Equal("Hi there"))
		})
	})

	Context("passthrough", func() {
		It("forwards every event payload untouched, unknown events included", func() {
			events := readEvents(messagesStream)
			events = append(events[:2], append([]sse.Event{{Type: "vendor_extension", Data: `{"x": 1}`}}, events[2:]...)...)

			c := stream.New(messages, messages)
			Expect(c.Passthrough()).To(BeTrue())
			out, _ := forward(c, events)

			forwarded := readEvents(string(out))
			Expect(forwarded).To(Equal(events))

			resp, status := c.Result()
			Expect(status).To(Equal(stream.StatusCompleted))
			Expect(resp.Message.GetText()).To(Equal("Hello, wörld!"))
		})
	})

	Context("interruption", func() {
		It("reconstructs only committed fragments", func() {
			c := stream.New(chat, chat)
			events := readEvents(chatStream)

			for i := range 2 {
				_, chunk, err := c.Next(&events[i])
				Expect(err).NotTo(HaveOccurred())
				c.Commit(chunk)
			}
			// Delivered to the decoder but never written to the client.
			_, _, err := c.Next(&events[2])
			Expect(err).NotTo(HaveOccurred())

			resp, status := c.Result()
			Expect(status).To(Equal(stream.StatusInterrupted))
			Expect(resp.Message.GetText()).To(Equal("Hi"))
			Expect(c.Chunks()).To(Equal(1))
		})
	})

	Context("end of stream without a terminal event", func() {
		It("synthesizes the terminal chunk when a finish reason was seen", func() {
			events := readEvents(chatStream)
			c := stream.New(chat, messages)
			forward(c, events[:len(events)-1])
			Expect(c.State()).To(Equal(stream.Open))

			frames, chunk, err := c.Finish()
			Expect(err).NotTo(HaveOccurred())
			Expect(chunk.Terminal).To(BeTrue())
			Expect(string(frames)).To(ContainSubstring("event: message_stop"))
			c.Commit(chunk)

			_, status := c.Result()
			Expect(status).To(Equal(stream.StatusCompleted))
		})

		It("fails with a protocol error otherwise", func() {
			events := readEvents(chatStream)
			c := stream.New(chat, messages)
			forward(c, events[:2])

			_, _, err := c.Finish()
			var protocol *llm.UpstreamProtocolError
			Expect(errors.As(err, &protocol)).To(BeTrue())
		})

		It("is a no-op after completion", func() {
			c := stream.New(chat, chat)
			forward(c, readEvents(chatStream))

			frames, chunk, err := c.Finish()
			Expect(err).NotTo(HaveOccurred())
			Expect(frames).To(BeEmpty())
			Expect(chunk).To(BeNil())
		})
	})

	Context("errors", func() {
		It("renders a Chat Completions error frame and terminator", func() {
			c := stream.New(messages, chat)
			out := c.Fail(llm.ErrTimeout)

			events := readEvents(string(out))
			Expect(events).To(HaveLen(2))
			Expect(gjson.Get(events[0].Data, "error.type").String()).To(Equal("timeout"))
			Expect(events[1].IsDone()).To(BeTrue())
			Expect(c.State()).To(Equal(stream.Errored))

			_, _, err := c.Next(&sse.Event{Data: "{}"})
			Expect(err).To(MatchError(stream.ErrClosed))
		})

		It("renders a Messages error event", func() {
			c := stream.New(chat, messages)
			out := c.Fail(&llm.UpstreamProtocolError{Reason: "bad chunk"})

			events := readEvents(string(out))
			Expect(events).To(HaveLen(1))
			Expect(events[0].Type).To(Equal("error"))
			Expect(gjson.Get(events[0].Data, "error.type").String()).To(Equal("api_error"))
		})

		It("keeps the category of a mid-stream upstream error", func() {
			c := stream.New(messages, chat)
			_, _, err := c.Next(&sse.Event{Type: "error", Data: `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`})
			Expect(err).To(HaveOccurred())

			events := readEvents(string(c.Fail(err)))
			Expect(gjson.Get(events[0].Data, "error.type").String()).To(Equal("rate_limit_error"))
			Expect(gjson.Get(events[0].Data, "error.message").String()).To(ContainSubstring("slow down"))
		})

		It("renders an upstream overload as an overload for Messages clients", func() {
			c := stream.New(messages, messages)
			_, _, err := c.Next(&sse.Event{Type: "error", Data: `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`})
			Expect(err).To(HaveOccurred())

			events := readEvents(string(c.Fail(err)))
			Expect(events).To(HaveLen(1))
			Expect(gjson.Get(events[0].Data, "error.type").String()).To(Equal("overloaded_error"))
		})

		It("propagates malformed upstream chunks", func() {
			c := stream.New(chat, messages)
			_, _, err := c.Next(&sse.Event{Data: "{not json"})
			var protocol *llm.UpstreamProtocolError
			Expect(errors.As(err, &protocol)).To(BeTrue())
		})
	})
})
