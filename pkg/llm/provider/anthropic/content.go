package anthropic

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/papercomputeco/switchboard/pkg/llm"
)

// decodeContent parses the string-or-blocks content union.
func decodeContent(raw json.RawMessage) ([]llm.ContentBlock, error) {
	if len(raw) == 0 {
		return nil, errors.New("content is required")
	}

	switch raw[0] {
	case '"':
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, err
		}
		return llm.TextParts(text), nil
	case '[':
		var blocks []messagesBlock
		if err := json.Unmarshal(raw, &blocks); err != nil {
			return nil, err
		}
		content := make([]llm.ContentBlock, 0, len(blocks))
		for _, block := range blocks {
			content = append(content, decodeBlock(block))
		}
		return content, nil
	}
	return nil, fmt.Errorf("content must be a string or a list of blocks")
}

func decodeBlock(block messagesBlock) llm.ContentBlock {
	cb := llm.ContentBlock{Type: block.Type}
	switch block.Type {
	case llm.BlockText:
		if block.Text != nil {
			cb.Text = *block.Text
		}
	case llm.BlockImage:
		if block.Source != nil {
			cb.MediaType = block.Source.MediaType
			cb.ImageBase64 = block.Source.Data
			cb.ImageURL = block.Source.URL
		}
	case llm.BlockToolUse:
		cb.ToolUseID = block.ID
		cb.ToolName = block.Name
		cb.ToolInput = block.Input
	case llm.BlockToolResult:
		cb.ToolResultID = block.ToolUseID
		cb.IsError = block.IsError
		if inner, err := decodeContent(block.Content); err == nil {
			cb.ToolOutput = llm.JoinText(inner)
		}
	}
	return cb
}

// encodeSystem lifts the leading system messages into the top-level system
// field. A single plain text block stays a string; anything else becomes a
// block list so block boundaries survive.
func encodeSystem(system []llm.Message) (json.RawMessage, []llm.Warning, error) {
	var (
		blocks   []messagesBlock
		warnings []llm.Warning
	)
	for i, msg := range system {
		for j, block := range msg.Content {
			if block.Type != llm.BlockText {
				warnings = append(warnings, llm.Warning{
					Field:  fmt.Sprintf("messages[%d].content[%d]", i, j),
					Reason: fmt.Sprintf("%s block in system prompt has no equivalent in messages dialect, dropped", block.Type),
				})
				continue
			}
			text := block.Text
			blocks = append(blocks, messagesBlock{Type: llm.BlockText, Text: &text})
		}
	}

	if len(blocks) == 1 {
		raw, err := json.Marshal(*blocks[0].Text)
		return raw, warnings, err
	}
	if len(blocks) == 0 {
		return nil, warnings, nil
	}
	raw, err := json.Marshal(blocks)
	return raw, warnings, err
}

// encodeContent renders one message's content. Text-only single-block
// content is written as a string. It returns nil content when nothing
// representable is left.
func encodeContent(field string, content []llm.ContentBlock) (json.RawMessage, []llm.Warning, error) {
	if len(content) == 1 && content[0].Type == llm.BlockText {
		raw, err := json.Marshal(content[0].Text)
		return raw, nil, err
	}

	var (
		blocks   []messagesBlock
		warnings []llm.Warning
	)
	for j, block := range content {
		switch block.Type {
		case llm.BlockText:
			text := block.Text
			blocks = append(blocks, messagesBlock{Type: llm.BlockText, Text: &text})
		case llm.BlockImage:
			source := &messagesSource{Type: "base64", MediaType: block.MediaType, Data: block.ImageBase64}
			if block.ImageBase64 == "" {
				source = &messagesSource{Type: "url", URL: block.ImageURL}
			}
			blocks = append(blocks, messagesBlock{Type: llm.BlockImage, Source: source})
		default:
			warnings = append(warnings, llm.Warning{
				Field:  fmt.Sprintf("%s.content[%d]", field, j),
				Reason: fmt.Sprintf("%s block is not converted, dropped", block.Type),
			})
		}
	}

	if len(blocks) == 0 {
		return nil, warnings, nil
	}
	raw, err := json.Marshal(blocks)
	return raw, warnings, err
}

func encodeResponseBlocks(content []llm.ContentBlock) ([]messagesBlock, []llm.Warning) {
	var warnings []llm.Warning
	blocks := make([]messagesBlock, 0, len(content))
	for j, block := range content {
		if block.Type != llm.BlockText {
			warnings = append(warnings, llm.Warning{
				Field:  fmt.Sprintf("content[%d]", j),
				Reason: fmt.Sprintf("%s block is not converted, dropped", block.Type),
			})
			continue
		}
		text := block.Text
		blocks = append(blocks, messagesBlock{Type: llm.BlockText, Text: &text})
	}
	return blocks, warnings
}

func decodeUsage(u *messagesUsage) *llm.Usage {
	if u == nil {
		return nil
	}
	return &llm.Usage{
		PromptTokens:             u.InputTokens,
		CompletionTokens:         u.OutputTokens,
		TotalTokens:              u.InputTokens + u.OutputTokens,
		CacheCreationInputTokens: u.CacheCreationInputTokens,
		CacheReadInputTokens:     u.CacheReadInputTokens,
	}
}

func encodeUsage(u *llm.Usage) *messagesUsage {
	if u == nil {
		return &messagesUsage{}
	}
	return &messagesUsage{
		InputTokens:              u.PromptTokens,
		OutputTokens:             u.CompletionTokens,
		CacheCreationInputTokens: u.CacheCreationInputTokens,
		CacheReadInputTokens:     u.CacheReadInputTokens,
	}
}
