package synthesis

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/hyperjump/kikoe/internal/config"
	"github.com/hyperjump/kikoe/internal/stream"
	"github.com/hyperjump/kikoe/pkg/utils"
	"go.uber.org/zap"
)

const readChunkSize = 4096

// Opener opens a streamed response body.
type Opener interface {
	OpenStream(ctx context.Context, path string, payload any) (io.ReadCloser, error)
}

// Accumulator performs streamed plain-text synthesis requests.
type Accumulator struct {
	opener       Opener
	errorMessage string
	logger       *zap.Logger
}

// NewAccumulator creates an Accumulator. An empty errorMessage uses the default.
func NewAccumulator(opener Opener, errorMessage string, logger *zap.Logger) *Accumulator {
	if errorMessage == "" {
		errorMessage = config.DefaultSynthesisError
	}
	return &Accumulator{opener: opener, errorMessage: errorMessage, logger: utils.OrNop(logger)}
}

// ErrorMessage returns the text that replaces a failed synthesis.
func (a *Accumulator) ErrorMessage() string {
	return a.errorMessage
}

// Stream POSTs payload to path and returns the synthesis events: EventStarted, one
// EventChunk per decoded piece of text, then exactly one EventComplete or EventFailed,
// after which the channel is closed. The receiver must drain the channel; canceling ctx
// aborts the request and ends the stream with EventFailed.
func (a *Accumulator) Stream(ctx context.Context, path string, payload any) <-chan Event {
	events := make(chan Event, 1)
	go func() {
		defer close(events)
		events <- Event{Kind: EventStarted}
		text, err := a.run(ctx, path, payload, events)
		if err != nil {
			if ctx.Err() != nil {
				a.logger.Debug("synthesis abandoned", zap.String("path", path), zap.Error(err))
			} else {
				a.logger.Error("synthesis failed", zap.String("path", path), zap.Error(err))
			}
			events <- Event{Kind: EventFailed, Text: a.errorMessage, Err: err}
			return
		}
		events <- Event{Kind: EventComplete, Text: text}
	}()
	return events
}

func (a *Accumulator) run(ctx context.Context, path string, payload any, events chan<- Event) (string, error) {
	body, err := a.opener.OpenStream(ctx, path, payload)
	if err != nil {
		return "", err
	}
	defer body.Close()

	var (
		dec  stream.TextDecoder
		text strings.Builder
		buf  = make([]byte, readChunkSize)
	)
	emit := func(delta string) {
		if delta == "" {
			return
		}
		text.WriteString(delta)
		events <- Event{Kind: EventChunk, Delta: delta, Text: text.String()}
	}
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			emit(dec.Decode(buf[:n]))
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", rerr
		}
	}
	emit(dec.Flush())
	return text.String(), nil
}

// Callbacks receive the progress of Accumulate. Any of them may be nil.
type Callbacks struct {
	OnStart    func()
	OnUpdate   func(text string)
	OnComplete func(text string)
	OnError    func(message string, err error)
}

// Accumulate runs Stream and reports each event to cb. It returns the final text, or the
// error message and the cause on failure.
func (a *Accumulator) Accumulate(ctx context.Context, path string, payload any, cb Callbacks) (string, error) {
	var (
		final string
		ferr  error
	)
	for ev := range a.Stream(ctx, path, payload) {
		switch ev.Kind {
		case EventStarted:
			if cb.OnStart != nil {
				cb.OnStart()
			}
		case EventChunk:
			if cb.OnUpdate != nil {
				cb.OnUpdate(ev.Text)
			}
		case EventComplete:
			final = ev.Text
			if cb.OnComplete != nil {
				cb.OnComplete(ev.Text)
			}
		case EventFailed:
			final, ferr = ev.Text, ev.Err
			if cb.OnError != nil {
				cb.OnError(ev.Text, ev.Err)
			}
		}
	}
	return final, ferr
}
