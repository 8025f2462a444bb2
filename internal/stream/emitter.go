// Package stream turns a complete upstream completion into the caller's wire
// format: a single JSON object, or a simulated server-sent event stream paced
// to look like incremental generation.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/novirelay/internal/observability"
)

const (
	DefaultChunkSize = 64
	DefaultDelay     = 30 * time.Millisecond

	// FallbackText replaces an empty completion in every response shape.
	FallbackText = "OK"

	finishStop = "stop"
	doneMarker = "[DONE]"
)

// Emitter writes completions to callers. It holds no per-response state and
// is safe for concurrent use.
type Emitter struct {
	chunkSize int
	delay     time.Duration

	now   func() time.Time
	newID func() string
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEmitter returns an Emitter that slices streamed text into chunkSize
// characters and pauses delay after each content frame. Non-positive chunk
// sizes use DefaultChunkSize; negative delays are treated as zero.
func NewEmitter(chunkSize int, delay time.Duration) *Emitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if delay < 0 {
		delay = 0
	}
	return &Emitter{
		chunkSize: chunkSize,
		delay:     delay,
		now:       time.Now,
		newID:     NewCompletionID,
		sleep:     sleepContext,
	}
}

// NewCompletionID returns a random "chatcmpl_" identifier.
func NewCompletionID() string {
	return "chatcmpl_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// sleepContext waits for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// textOrFallback substitutes FallbackText for an empty completion.
func textOrFallback(text string) string {
	if text == "" {
		return FallbackText
	}
	return text
}

// Split slices text into pieces of at most size characters. Boundaries fall
// on character counts, not words, so a piece may end mid-word.
func Split(text string, size int) []string {
	if text == "" {
		return nil
	}
	if size <= 0 {
		return []string{text}
	}

	var chunks []string
	count, start := 0, 0
	for pos := range text {
		if count == size {
			chunks = append(chunks, text[start:pos])
			start, count = pos, 0
		}
		count++
	}
	return append(chunks, text[start:])
}

// ChatCompletion builds the non-stream OpenAI chat completion object.
func (e *Emitter) ChatCompletion(model, text string) Completion {
	return Completion{
		ID:      e.newID(),
		Object:  "chat.completion",
		Created: e.now().Unix(),
		Model:   model,
		Choices: []CompletionChoice{{
			Index:        0,
			Message:      AssistantMessage{Role: "assistant", Content: textOrFallback(text)},
			FinishReason: finishStop,
		}},
		Usage: Usage{},
	}
}

// GenerateReply builds the non-stream generate-style response.
func (e *Emitter) GenerateReply(model, upstreamModel, text string) GenerateResponse {
	return GenerateResponse{
		Model:         model,
		UpstreamModel: upstreamModel,
		CreatedAt:     e.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Response:      textOrFallback(text),
		Done:          true,
	}
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// unit is one step of a simulated stream: a payload to write, and whether
// the emitter pauses after writing it.
type unit struct {
	payload []byte
	pause   bool
}

// plan returns the full unit sequence for a simulated stream: a role
// announcement, one content frame per chunk, a terminal stop frame and the
// end marker. Every frame shares one stream identifier.
func (e *Emitter) plan(model, text string) ([]unit, error) {
	id := e.newID()
	stop := finishStop

	frames := []ChunkFrame{e.frame(id, model, Delta{Role: "assistant"}, nil)}
	chunks := Split(textOrFallback(text), e.chunkSize)
	for _, c := range chunks {
		frames = append(frames, e.frame(id, model, Delta{Content: c}, nil))
	}
	frames = append(frames, e.frame(id, model, Delta{}, &stop))

	units := make([]unit, 0, len(frames)+1)
	for i, f := range frames {
		data, err := json.Marshal(f)
		if err != nil {
			return nil, fmt.Errorf("marshaling frame: %w", err)
		}
		units = append(units, unit{
			payload: sseData(data),
			pause:   i > 0 && i <= len(chunks),
		})
	}
	units = append(units, unit{payload: sseData([]byte(doneMarker))})
	return units, nil
}

func (e *Emitter) frame(id, model string, delta Delta, finish *string) ChunkFrame {
	return ChunkFrame{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: e.now().Unix(),
		Model:   model,
		Choices: []ChunkChoice{{Index: 0, Delta: delta, FinishReason: finish}},
	}
}

func sseData(data []byte) []byte {
	out := make([]byte, 0, len(data)+8)
	out = append(out, "data: "...)
	out = append(out, data...)
	return append(out, "\n\n"...)
}

// Stream writes text to w as a simulated event stream. It stops early and
// returns the cause when ctx is cancelled or a write fails; whatever was not
// written is dropped.
func (e *Emitter) Stream(ctx context.Context, w http.ResponseWriter, model, text string) error {
	units, err := e.plan(model, text)
	if err != nil {
		return err
	}

	observability.StreamingConnections.Inc()
	defer observability.StreamingConnections.Dec()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	for _, u := range units {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := w.Write(u.payload); err != nil {
			return fmt.Errorf("writing frame: %w", err)
		}
		if flusher != nil {
			flusher.Flush()
		}
		if u.pause {
			if err := e.sleep(ctx, e.delay); err != nil {
				return err
			}
		}
	}
	return nil
}
