// Package tokens estimates output token counts for responses whose provider
// reported no usage.
package tokens

import (
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// Estimator counts tokens with a BPE encoding picked from the model name.
// Encodings are loaded lazily and cached per encoding, so arbitrary model
// names never grow the cache. An Estimator is safe for concurrent use.
type Estimator struct {
	cache sync.Map // tokenizer.Encoding -> tokenizer.Codec
}

// NewEstimator creates an empty Estimator.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// Count returns the number of tokens in text for model. When no encoding
// can be loaded it falls back to one token per four bytes.
func (e *Estimator) Count(model, text string) int {
	if text == "" {
		return 0
	}

	enc, err := e.codec(model)
	if err != nil {
		return approximate(text)
	}
	ids, _, err := enc.Encode(text)
	if err != nil {
		return approximate(text)
	}
	return len(ids)
}

func (e *Estimator) codec(model string) (tokenizer.Codec, error) {
	name := encodingFor(model)
	if cached, ok := e.cache.Load(name); ok {
		return cached.(tokenizer.Codec), nil
	}

	enc, err := tokenizer.Get(name)
	if err != nil {
		return nil, err
	}

	actual, _ := e.cache.LoadOrStore(name, enc)
	return actual.(tokenizer.Codec), nil
}

// encodingFor picks the BPE encoding for a model name.
func encodingFor(model string) tokenizer.Encoding {
	switch m := strings.ToLower(strings.TrimSpace(model)); {
	case strings.HasPrefix(m, "gpt-4o"), strings.HasPrefix(m, "gpt-4.1"):
		return tokenizer.O200kBase
	case strings.HasPrefix(m, "gpt-4"), strings.HasPrefix(m, "gpt-3.5"):
		return tokenizer.Cl100kBase
	}
	// No public encoding exists for other families; o200k is the closest
	// general-purpose approximation.
	return tokenizer.O200kBase
}

func approximate(text string) int {
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}
