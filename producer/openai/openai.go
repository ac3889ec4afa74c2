//
// Copyright (C) 2026 The artifactstream-go Authors.  All rights reserved.
//
// artifactstream-go is licensed under the Apache License Version 2.0.
//
//

// Package openai adapts OpenAI streaming chat completions to the delta
// stream consumed by the extraction engine.
package openai

import (
	"context"
	"fmt"

	openai "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"

	"github.com/flowstack-ai/artifactstream-go/stream"
)

// ChunkStream is the subset of the SDK's SSE stream the pump consumes.
// *ssestream.Stream[openai.ChatCompletionChunk] satisfies it.
type ChunkStream interface {
	Next() bool
	Current() openai.ChatCompletionChunk
	Err() error
}

// Options is the configuration for the producer.
type Options struct {
	apiKey     string
	baseURL    string
	model      string
	extraOpts  []openaiopt.RequestOption
	clientOpts []openaiopt.RequestOption
	clientSet  bool
	client     openai.Client
}

// Option is the functional option for New.
type Option func(*Options)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(o *Options) {
		o.apiKey = key
	}
}

// WithBaseURL sets a custom API endpoint.
func WithBaseURL(url string) Option {
	return func(o *Options) {
		o.baseURL = url
	}
}

// WithModel sets the completion model name.
func WithModel(model string) Option {
	return func(o *Options) {
		o.model = model
	}
}

// WithClient uses an existing SDK client.
func WithClient(client openai.Client) Option {
	return func(o *Options) {
		o.client = client
		o.clientSet = true
	}
}

// WithExtraRequestOptions appends request options to every completion call.
func WithExtraRequestOptions(opts ...openaiopt.RequestOption) Option {
	return func(o *Options) {
		o.extraOpts = append(o.extraOpts, opts...)
	}
}

// Producer streams completions from the OpenAI API as engine deltas.
type Producer struct {
	client    openai.Client
	model     string
	extraOpts []openaiopt.RequestOption
}

// New creates a producer.
func New(opt ...Option) *Producer {
	opts := &Options{}
	for _, o := range opt {
		o(opts)
	}
	if !opts.clientSet {
		if opts.apiKey != "" {
			opts.clientOpts = append(opts.clientOpts, openaiopt.WithAPIKey(opts.apiKey))
		}
		if opts.baseURL != "" {
			opts.clientOpts = append(opts.clientOpts, openaiopt.WithBaseURL(opts.baseURL))
		}
		opts.client = openai.NewClient(opts.clientOpts...)
	}
	return &Producer{
		client:    opts.client,
		model:     opts.model,
		extraOpts: opts.extraOpts,
	}
}

// Stream runs one streaming completion and forwards every delta to apply
// in sequence order. The terminal signal (completion or abort) is the
// caller's responsibility; Stream only reports how the stream ended.
func (p *Producer) Stream(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, apply func(stream.Delta) error) error {
	s := p.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model:    p.model,
		Messages: messages,
	}, p.extraOpts...)
	defer s.Close()
	return Pump(s, apply)
}

// Pump converts SDK chunks to deltas and feeds them to apply. Sequence
// numbers are assigned here, strictly increasing from zero. A transport
// error is surfaced to the consumer as an error delta before returning.
func Pump(s ChunkStream, apply func(stream.Delta) error) error {
	var seq int64
	for s.Next() {
		d, ok := convertChunk(s.Current(), seq)
		if !ok {
			continue
		}
		if err := apply(d); err != nil {
			return fmt.Errorf("apply delta %d: %w", d.Sequence, err)
		}
		seq++
	}
	if err := s.Err(); err != nil {
		_ = apply(stream.Delta{Sequence: seq, PayloadKind: stream.PayloadError, Content: err.Error()})
		return fmt.Errorf("completion stream: %w", err)
	}
	return nil
}

// convertChunk maps one chunk to a delta. Chunks without visible content
// are skipped.
func convertChunk(chunk openai.ChatCompletionChunk, seq int64) (stream.Delta, bool) {
	if len(chunk.Choices) == 0 {
		return stream.Delta{}, false
	}
	content := chunk.Choices[0].Delta.Content
	if content == "" {
		return stream.Delta{}, false
	}
	return stream.Delta{
		Sequence:    seq,
		PayloadKind: stream.PayloadText,
		Content:     content,
	}, true
}
