package openai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/papercomputeco/switchboard/pkg/llm"
)

func decodeMessage(msg chatMessage) (llm.Message, error) {
	switch msg.Role {
	case llm.RoleSystem, llm.RoleUser, llm.RoleAssistant, llm.RoleTool, "developer":
	default:
		return llm.Message{}, fmt.Errorf("unsupported role %q", msg.Role)
	}

	role := msg.Role
	if role == "developer" {
		role = llm.RoleSystem
	}
	converted := llm.Message{Role: role}

	content, err := decodeContent(msg.Content)
	if err != nil {
		return llm.Message{}, err
	}

	if msg.Role == llm.RoleTool {
		converted.Content = []llm.ContentBlock{{
			Type:         llm.BlockToolResult,
			ToolResultID: msg.ToolCallID,
			ToolOutput:   llm.JoinText(content),
		}}
		return converted, nil
	}
	converted.Content = content

	for _, tc := range msg.ToolCalls {
		var input map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &input)
		converted.Content = append(converted.Content, llm.ContentBlock{
			Type:      llm.BlockToolUse,
			ToolUseID: tc.ID,
			ToolName:  tc.Function.Name,
			ToolInput: input,
		})
	}

	return converted, nil
}

// decodeContent parses the string, part list or null content union.
func decodeContent(raw json.RawMessage) ([]llm.ContentBlock, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []llm.ContentBlock{}, nil
	}

	switch raw[0] {
	case '"':
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, err
		}
		return llm.TextParts(text), nil
	case '[':
		var parts []chatContentPart
		if err := json.Unmarshal(raw, &parts); err != nil {
			return nil, err
		}
		content := make([]llm.ContentBlock, 0, len(parts))
		for _, part := range parts {
			switch {
			case part.Type == "text":
				content = append(content, llm.ContentBlock{Type: llm.BlockText, Text: part.Text})
			case part.ImageURL != nil:
				content = append(content, decodeImageURL(part.ImageURL.URL))
			default:
				content = append(content, llm.ContentBlock{Type: part.Type})
			}
		}
		return content, nil
	}
	return nil, errors.New("content must be a string, a list of parts or null")
}

// decodeImageURL splits base64 data URLs into media type and payload so the
// image survives conversion into dialects that carry them separately.
func decodeImageURL(url string) llm.ContentBlock {
	block := llm.ContentBlock{Type: llm.BlockImage}
	if rest, ok := strings.CutPrefix(url, "data:"); ok {
		if meta, data, ok := strings.Cut(rest, ","); ok {
			if mediaType, ok := strings.CutSuffix(meta, ";base64"); ok {
				block.MediaType = mediaType
				block.ImageBase64 = data
				return block
			}
		}
	}
	block.ImageURL = url
	return block
}

func decodeStop(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return []string{s}, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// encodeMessage renders one message. Text-only content is written as a plain
// string (text parts concatenated without a separator); content with images
// is written as a part list. It returns nil when nothing representable is
// left.
func encodeMessage(field string, msg llm.Message) (*chatMessage, []llm.Warning, error) {
	var warnings []llm.Warning

	var (
		parts   []chatContentPart
		hasText bool
		images  bool
	)
	for j, block := range msg.Content {
		switch block.Type {
		case llm.BlockText:
			hasText = true
			parts = append(parts, chatContentPart{Type: "text", Text: block.Text})
		case llm.BlockImage:
			if msg.Role != llm.RoleUser {
				warnings = append(warnings, llm.Warning{
					Field:  fmt.Sprintf("%s.content[%d]", field, j),
					Reason: "image outside a user message is not converted, dropped",
				})
				continue
			}
			images = true
			url := block.ImageURL
			if block.ImageBase64 != "" {
				url = "data:" + block.MediaType + ";base64," + block.ImageBase64
			}
			parts = append(parts, chatContentPart{Type: "image_url", ImageURL: &chatImageURL{URL: url}})
		default:
			warnings = append(warnings, llm.Warning{
				Field:  fmt.Sprintf("%s.content[%d]", field, j),
				Reason: fmt.Sprintf("%s block is not converted, dropped", block.Type),
			})
		}
	}

	if !hasText && !images {
		return nil, warnings, nil
	}

	var (
		content json.RawMessage
		err     error
	)
	if images {
		content, err = json.Marshal(parts)
	} else {
		content, err = json.Marshal(llm.JoinText(msg.Content))
	}
	if err != nil {
		return nil, nil, err
	}

	return &chatMessage{Role: msg.Role, Content: content}, warnings, nil
}

func joinResponseText(content []llm.ContentBlock) (string, []llm.Warning) {
	var warnings []llm.Warning
	for j, block := range content {
		if block.Type != llm.BlockText {
			warnings = append(warnings, llm.Warning{
				Field:  fmt.Sprintf("content[%d]", j),
				Reason: fmt.Sprintf("%s block is not converted, dropped", block.Type),
			})
		}
	}
	return llm.JoinText(content), warnings
}

func decodeUsage(u *chatUsage) *llm.Usage {
	if u == nil {
		return nil
	}
	usage := &llm.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
	if u.PromptTokensDetails != nil {
		usage.CacheReadInputTokens = u.PromptTokensDetails.CachedTokens
	}
	return usage
}

func encodeUsage(u *llm.Usage) (*chatUsage, []llm.Warning) {
	if u == nil {
		return nil, nil
	}

	out := &chatUsage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.PromptTokens + u.CompletionTokens,
	}
	if u.CacheReadInputTokens != 0 {
		out.PromptTokensDetails = &promptTokenDetail{CachedTokens: u.CacheReadInputTokens}
	}

	var warnings []llm.Warning
	if u.CacheCreationInputTokens != 0 {
		warnings = append(warnings, llm.DroppedField("usage.cache_creation_input_tokens", dialectName))
	}
	return out, warnings
}
