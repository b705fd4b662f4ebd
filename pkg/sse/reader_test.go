package sse

import (
	"bytes"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Reader", func() {
	Describe("Next", func() {
		Context("with standard SSE events", func() {
			It("parses a single event", func() {
				r := NewReader(strings.NewReader("data: hello world\n\n"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("hello world"))
				Expect(ev.Type).To(BeEmpty())
				Expect(ev.ID).To(BeEmpty())

				ev, err = r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev).To(BeNil())
			})

			It("parses event type and ID", func() {
				r := NewReader(strings.NewReader("id: 42\nevent: content_block_delta\ndata: {\"type\":\"delta\"}\n\n"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.ID).To(Equal("42"))
				Expect(ev.Type).To(Equal("content_block_delta"))
				Expect(ev.Data).To(Equal("{\"type\":\"delta\"}"))
			})

			It("joins multiple data lines with newline", func() {
				r := NewReader(strings.NewReader("data: line one\ndata: line two\ndata: line three\n\n"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("line one\nline two\nline three"))
			})
		})

		Context("with Chat Completions-style SSE", func() {
			It("parses chunks and the done sentinel", func() {
				input := "data: {\"id\":\"chatcmpl-1\",\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\n" +
					"data: [DONE]\n\n"
				r := NewReader(strings.NewReader(input))

				ev1, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev1.IsDone()).To(BeFalse())

				ev2, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev2.IsDone()).To(BeTrue())

				ev3, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev3).To(BeNil())
			})
		})

		Context("with Messages-style SSE", func() {
			It("parses typed events in order", func() {
				input := "event: message_start\ndata: {\"type\":\"message_start\",\"message\":{\"id\":\"msg_1\"}}\n\n" +
					"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"text\":\"Hello\"}}\n\n" +
					"event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n"
				r := NewReader(strings.NewReader(input))

				var types []string
				for {
					ev, err := r.Next()
					Expect(err).NotTo(HaveOccurred())
					if ev == nil {
						break
					}
					types = append(types, ev.Type)
				}
				Expect(types).To(Equal([]string{"message_start", "content_block_delta", "message_stop"}))
			})
		})

		Context("edge cases", func() {
			It("ignores comment lines", func() {
				r := NewReader(strings.NewReader(": keep-alive\ndata: hello\n\n"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("hello"))
			})

			It("skips keep-alive frames between events", func() {
				src := string(Encode(Event{Data: "a"})) + KeepAlive + KeepAlive + string(Encode(Event{Data: "b"}))
				r := NewReader(strings.NewReader(src))

				first, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(first.Data).To(Equal("a"))

				second, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(second.Data).To(Equal("b"))

				end, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(end).To(BeNil())
			})

			It("handles data field with no space after colon", func() {
				r := NewReader(strings.NewReader("data:no-space\n\n"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("no-space"))
			})

			It("returns nil on input with only blank lines", func() {
				r := NewReader(strings.NewReader("\n\n\n"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev).To(BeNil())
			})

			It("yields event when stream ends without trailing blank line", func() {
				r := NewReader(strings.NewReader("data: unterminated"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("unterminated"))

				ev, err = r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev).To(BeNil())
			})

			It("ignores unknown fields", func() {
				r := NewReader(strings.NewReader("retry: 3000\nfoo: bar\ndata: hello\n\n"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("hello"))
			})
		})
	})
})

var _ = Describe("Encode", func() {
	It("writes typed events with a blank line terminator", func() {
		out := Encode(Event{Type: "message_stop", Data: `{"type":"message_stop"}`})
		Expect(string(out)).To(Equal("event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n"))
	})

	It("writes untyped events as bare data frames", func() {
		out := Encode(Event{Data: DoneData})
		Expect(string(out)).To(Equal("data: [DONE]\n\n"))
	})

	It("produces frames the Reader parses back to the same events", func() {
		events := []Event{
			{Type: "content_block_delta", Data: `{"delta":{"text":"a"}}`},
			{ID: "7", Data: "multi\nline"},
			{Data: DoneData},
		}

		r := NewReader(bytes.NewReader(Encode(events...)))
		for _, want := range events {
			got, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(*got).To(Equal(want))
		}
	})
})
