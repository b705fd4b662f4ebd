package llm

import "strings"

// JoinText concatenates the text of every text block in order, with no
// separator. Non-text blocks contribute nothing.
//
// JoinText and TextParts are inverses on text content:
// JoinText(TextParts(s)) == s for every s, which is what keeps dialect
// round trips lossless.
func JoinText(blocks []ContentBlock) string {
	switch len(blocks) {
	case 0:
		return ""
	case 1:
		if blocks[0].Type == BlockText {
			return blocks[0].Text
		}
		return ""
	}

	var b strings.Builder
	for _, block := range blocks {
		if block.Type == BlockText {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// TextParts wraps a plain string as a single text block.
func TextParts(s string) []ContentBlock {
	return []ContentBlock{{Type: BlockText, Text: s}}
}

// JoinDeltas concatenates streamed delta text in arrival order.
func JoinDeltas(chunks []StreamChunk) string {
	var b strings.Builder
	for i := range chunks {
		b.WriteString(chunks[i].Delta)
	}
	return b.String()
}
