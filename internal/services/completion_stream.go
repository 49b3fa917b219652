package services

import (
	"context"
	"errors"
	"fmt"

	"akashchat/pkg/chattypes"
)

// streamBufferSize is the fragment channel capacity used by all completion clients.
const streamBufferSize = 16

// sendChunk delivers a chunk unless ctx is done first.
// It returns false when the consumer is gone and the producer should stop.
func sendChunk(ctx context.Context, ch chan<- chattypes.StreamChunk, chunk chattypes.StreamChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// finishStream sends the final chunk, carrying err as a CompletionFailure when set.
func finishStream(ctx context.Context, ch chan<- chattypes.StreamChunk, op string, err error) {
	final := chattypes.StreamChunk{Done: true}
	if err != nil {
		final.Error = completionError(op, err)
	}
	sendChunk(ctx, ch, final)
}

// completionError classifies err as a CompletionFailure unless it already carries a kind.
func completionError(op string, err error) error {
	var te *chattypes.TurnError
	if errors.As(err, &te) {
		return err
	}
	return chattypes.NewTurnError(chattypes.KindCompletionFailure, op, err)
}

// CollectStream drains a fragment channel and returns the concatenated text.
// It fails when the final chunk carries an error or the channel closes early.
func CollectStream(stream <-chan chattypes.StreamChunk) (string, error) {
	var content []byte
	for chunk := range stream {
		if chunk.Error != nil {
			return string(content), chunk.Error
		}
		content = append(content, chunk.Content...)
		if chunk.Done {
			return string(content), nil
		}
	}
	return string(content), chattypes.NewTurnError(chattypes.KindCompletionFailure, "stream", errors.New("stream closed before completion"))
}

func errMissingAPIKey(provider string) error {
	return fmt.Errorf("%s API key not configured", provider)
}
