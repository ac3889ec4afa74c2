//
// Copyright (C) 2026 The artifactstream-go Authors.  All rights reserved.
//
// artifactstream-go is licensed under the Apache License Version 2.0.
//
//

package openai

import (
	"errors"
	"testing"

	openai "github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowstack-ai/artifactstream-go/engine"
	"github.com/flowstack-ai/artifactstream-go/stream"
)

// fakeStream replays prepared chunks and a terminal error.
type fakeStream struct {
	chunks []openai.ChatCompletionChunk
	err    error
	pos    int
}

func (f *fakeStream) Next() bool {
	if f.pos >= len(f.chunks) {
		return false
	}
	f.pos++
	return true
}

func (f *fakeStream) Current() openai.ChatCompletionChunk { return f.chunks[f.pos-1] }

func (f *fakeStream) Err() error { return f.err }

func contentChunk(content string) openai.ChatCompletionChunk {
	return openai.ChatCompletionChunk{
		Choices: []openai.ChatCompletionChunkChoice{
			{Delta: openai.ChatCompletionChunkChoiceDelta{Content: content}},
		},
	}
}

func TestPumpAssignsSequences(t *testing.T) {
	s := &fakeStream{chunks: []openai.ChatCompletionChunk{
		contentChunk("Hello "),
		{}, // heartbeat chunk without choices
		contentChunk(""),
		contentChunk("world"),
	}}

	var got []stream.Delta
	require.NoError(t, Pump(s, func(d stream.Delta) error {
		got = append(got, d)
		return nil
	}))

	require.Len(t, got, 2, "empty chunks are skipped without consuming a sequence number")
	assert.Equal(t, int64(0), got[0].Sequence)
	assert.Equal(t, "Hello ", got[0].Content)
	assert.Equal(t, int64(1), got[1].Sequence)
	assert.Equal(t, "world", got[1].Content)
	assert.Equal(t, stream.PayloadText, got[0].PayloadKind)
}

func TestPumpSurfacesTransportError(t *testing.T) {
	s := &fakeStream{
		chunks: []openai.ChatCompletionChunk{contentChunk("partial")},
		err:    errors.New("connection reset"),
	}

	var got []stream.Delta
	err := Pump(s, func(d stream.Delta) error {
		got = append(got, d)
		return nil
	})
	require.Error(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, stream.PayloadError, got[1].PayloadKind)
	assert.Equal(t, "connection reset", got[1].Content)
	assert.Equal(t, int64(1), got[1].Sequence, "the error delta continues the sequence")
}

func TestPumpStopsOnApplyError(t *testing.T) {
	s := &fakeStream{chunks: []openai.ChatCompletionChunk{
		contentChunk("a"),
		contentChunk("b"),
	}}

	calls := 0
	err := Pump(s, func(stream.Delta) error {
		calls++
		return errors.New("session closed")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestPumpIntoEngineSession(t *testing.T) {
	// End to end: pumped chunks land in a session and produce an artifact.
	s := &fakeStream{chunks: []openai.ChatCompletionChunk{
		contentChunk("Result:\n"),
		contentChunk("```json:chart\n{\"chartType\":\"pie\","),
		contentChunk("\"title\":\"Share\",\"data\":[{\"k\":\"a\",\"v\":1}]}\n```"),
	}}

	sess := engine.NewSession("stream-1")
	require.NoError(t, Pump(s, sess.Apply))

	arts := sess.Complete()
	require.Len(t, arts, 1)
	assert.Equal(t, "pie", arts[0].Subtype)
}
