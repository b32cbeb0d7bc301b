package synthesis

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/kikoe/internal/models"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type call struct {
	path    string
	payload any
	at      time.Time
}

// fakeBackend records every call. Unset hooks answer immediately.
type fakeBackend struct {
	stream func(ctx context.Context, path string, payload any) (io.ReadCloser, error)
	post   func(ctx context.Context, path string, payload any) (string, error)

	mu    sync.Mutex
	calls []call
}

func (f *fakeBackend) record(path string, payload any) {
	f.mu.Lock()
	f.calls = append(f.calls, call{path: path, payload: payload, at: time.Now()})
	f.mu.Unlock()
}

func (f *fakeBackend) OpenStream(ctx context.Context, path string, payload any) (io.ReadCloser, error) {
	f.record(path, payload)
	if f.stream == nil {
		return io.NopCloser(strings.NewReader("streamed " + path)), nil
	}
	return f.stream(ctx, path, payload)
}

func (f *fakeBackend) PostJSON(ctx context.Context, path string, payload, out any) error {
	f.record(path, payload)
	summary := "summary"
	if f.post != nil {
		s, err := f.post(ctx, path, payload)
		if err != nil {
			return err
		}
		summary = s
	}
	data, err := json.Marshal(models.LightSummary{Summary: summary})
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (f *fakeBackend) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.path == path {
			n++
		}
	}
	return n
}

func (f *fakeBackend) callsTo(path string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.path == path {
			out = append(out, c)
		}
	}
	return out
}

// ctxPipe returns a pipe whose read side fails once ctx is done, like an HTTP body.
func ctxPipe(ctx context.Context) (io.ReadCloser, *io.PipeWriter) {
	pr, pw := io.Pipe()
	go func() {
		<-ctx.Done()
		pr.CloseWithError(ctx.Err())
	}()
	return pr, pw
}

func group(id, location string) models.GroupedResult {
	return models.GroupedResult{
		FocusGroupID: id,
		Metadata:     models.FocusGroupMetadata{Location: location, RaceName: "Ohio Senate"},
		Chunks:       []models.RetrievalChunk{{ChunkID: id + "-1", Content: "quote", Participant: "Voter A"}},
	}
}

func lessonFor(id, state string, year int) models.StrategyGroupedResult {
	return models.StrategyGroupedResult{
		RaceID:   id,
		Metadata: models.StrategyMetadata{State: state, Office: "Senate", Year: models.IntPtr(year), Outcome: "loss"},
		Chunks:   []models.StrategyChunk{{ChunkID: id + "-1", Content: "lesson", Section: "Messaging"}},
	}
}
