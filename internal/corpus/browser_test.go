package corpus

import (
	"context"
	"errors"
	"testing"

	"github.com/hyperjump/kikoe/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	items []models.CorpusItem
	err   error
	docs  map[string]string
}

func (f *fakeSource) Corpus(ctx context.Context) ([]models.CorpusItem, error) {
	return f.items, f.err
}

func (f *fakeSource) CorpusDocument(ctx context.Context, docType, docID string) (*models.DocumentContent, error) {
	content, ok := f.docs[docType+"/"+docID]
	if !ok {
		return nil, errors.New("not found")
	}
	return &models.DocumentContent{Content: content}, nil
}

var testItems = []models.CorpusItem{
	{ID: "fg-cle", Type: models.DocFocusGroup, Title: "Cleveland working class", Location: "Cleveland, OH", RaceName: "Ohio Senate 2024", Outcome: "win"},
	{ID: "fg-mke", Type: models.DocFocusGroup, Title: "Milwaukee suburbs", Location: "Milwaukee, WI", RaceName: "Wisconsin Senate 2024", Outcome: "loss"},
	{ID: "fg-col", Type: models.DocFocusGroup, Title: "Columbus young voters", Location: "Columbus, OH", RaceName: "Ohio Senate 2024", Outcome: "win"},
	{ID: "memo-oh", Type: models.DocStrategyMemo, Title: "Ohio strategy memo", RaceName: "Ohio Senate 2024", Outcome: "win"},
	{ID: "fg-misc", Type: models.DocFocusGroup, Title: "Pilot session", Location: "Phoenix, AZ"},
}

func loaded(t *testing.T) *Browser {
	t.Helper()
	b := NewBrowser(&fakeSource{items: testItems, docs: map[string]string{"focus_group/fg-cle": "# Cleveland"}}, nil)
	require.NoError(t, b.Load(context.Background()))
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func ids(items []models.CorpusItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}

func TestBrowser_notLoaded(t *testing.T) {
	b := NewBrowser(&fakeSource{}, nil)
	assert.False(t, b.Loaded())
	_, err := b.Filter("ohio")
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.Equal(t, "", b.Suggest("ohoi"))
}

func TestBrowser_loadError(t *testing.T) {
	b := NewBrowser(&fakeSource{err: errors.New("boom")}, nil)
	assert.Error(t, b.Load(context.Background()))
	assert.False(t, b.Loaded())
}

func TestBrowser_Filter(t *testing.T) {
	b := loaded(t)

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"fg-cle", "fg-mke", "fg-col", "memo-oh", "fg-misc"}},
		{"   ", []string{"fg-cle", "fg-mke", "fg-col", "memo-oh", "fg-misc"}},
		{"ohio", []string{"fg-cle", "fg-col", "memo-oh"}},
		{"OHIO", []string{"fg-cle", "fg-col", "memo-oh"}},
		{"ohio colum", []string{"fg-col"}},
		{"milw", []string{"fg-mke"}},
		{"loss", []string{"fg-mke"}},
		{"memo", []string{"memo-oh"}},
		{"clevland", []string{"fg-cle"}},
		{"texas", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := b.Filter(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestBrowser_Suggest(t *testing.T) {
	b := loaded(t)
	assert.Equal(t, "ohio senate", b.Suggest("ohoi senate"))
	assert.Equal(t, "", b.Suggest("ohio senate"))
	assert.Equal(t, "", b.Suggest("zzzzzzzz"))
}

func TestBrowser_ByRace(t *testing.T) {
	b := loaded(t)
	sections := b.ByRace()
	require.Len(t, sections, 3)
	assert.Equal(t, "Ohio Senate 2024", sections[0].Race)
	assert.Equal(t, []string{"fg-cle", "fg-col", "memo-oh"}, ids(sections[0].Items))
	assert.Equal(t, "Wisconsin Senate 2024", sections[1].Race)
	assert.Equal(t, "Other", sections[2].Race)
	assert.Equal(t, []string{"fg-misc"}, ids(sections[2].Items))
}

func TestGroupByRace_empty(t *testing.T) {
	assert.Empty(t, GroupByRace(nil))
}

func TestBrowser_Document(t *testing.T) {
	b := loaded(t)
	ctx := context.Background()

	doc, err := b.Document(ctx, models.DocFocusGroup, "fg-cle")
	require.NoError(t, err)
	assert.Equal(t, "# Cleveland", doc.Content)

	_, err = b.Document(ctx, "video", "fg-cle")
	assert.ErrorIs(t, err, models.ErrInvalidPayload)
	_, err = b.Document(ctx, models.DocFocusGroup, " ")
	assert.ErrorIs(t, err, models.ErrInvalidPayload)
	_, err = b.Document(ctx, models.DocStrategyMemo, "missing")
	assert.Error(t, err)
}

func TestBrowser_reload(t *testing.T) {
	src := &fakeSource{items: testItems[:1]}
	b := NewBrowser(src, nil)
	defer b.Close()
	require.NoError(t, b.Load(context.Background()))
	assert.Len(t, b.Items(), 1)

	src.items = testItems
	require.NoError(t, b.Load(context.Background()))
	got, err := b.Filter("milwaukee")
	require.NoError(t, err)
	assert.Equal(t, []string{"fg-mke"}, ids(got))
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"ohio", "ohio", 0},
		{"ohoi", "ohio", 2},
		{"kitten", "sitting", 3},
		{"café", "cafe", 1},
	}
	for _, tt := range tests {
		if got := levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
