// Package corpus browses the corpus index: every focus-group transcript and strategy
// memo the backend knows about.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hyperjump/kikoe/internal/client"
	"github.com/hyperjump/kikoe/internal/models"
	"github.com/hyperjump/kikoe/internal/race"
	"github.com/hyperjump/kikoe/pkg/utils"
	"go.uber.org/zap"
)

// ErrNotLoaded is returned by queries made before Load.
var ErrNotLoaded = errors.New("corpus not loaded")

// Source fetches the corpus index and documents.
type Source interface {
	Corpus(ctx context.Context) ([]models.CorpusItem, error)
	CorpusDocument(ctx context.Context, docType, docID string) (*models.DocumentContent, error)
}

var _ Source = (*client.Client)(nil)

// Section is the sidebar group of one race.
type Section struct {
	Race  string              `json:"race"`
	Items []models.CorpusItem `json:"items"`
}

// Browser holds the loaded corpus and its filter index.
type Browser struct {
	src    Source
	logger *zap.Logger

	mu    sync.RWMutex
	items []models.CorpusItem
	index *memIndex
	dict  map[string]int
}

// NewBrowser creates a Browser. Call Load before querying it.
func NewBrowser(src Source, logger *zap.Logger) *Browser {
	return &Browser{src: src, logger: utils.OrNop(logger)}
}

// Load fetches the corpus index and rebuilds the filter index.
func (b *Browser) Load(ctx context.Context) error {
	items, err := b.src.Corpus(ctx)
	if err != nil {
		return fmt.Errorf("load corpus: %w", err)
	}
	idx, err := newMemIndex(items)
	if err != nil {
		return err
	}
	dict, err := idx.terms()
	if err != nil {
		_ = idx.Close()
		return err
	}

	b.mu.Lock()
	old := b.index
	b.items, b.index, b.dict = items, idx, dict
	b.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	b.logger.Info("corpus loaded", zap.Int("documents", len(items)), zap.Int("terms", len(dict)))
	return nil
}

// Loaded reports whether Load has succeeded.
func (b *Browser) Loaded() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.index != nil
}

// Items returns every corpus entry in backend order.
func (b *Browser) Items() []models.CorpusItem {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]models.CorpusItem(nil), b.items...)
}

// Filter returns the entries matching every term of query, in backend order. An empty
// query returns everything.
func (b *Browser) Filter(query string) ([]models.CorpusItem, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.index == nil {
		return nil, ErrNotLoaded
	}
	if strings.TrimSpace(query) == "" {
		return append([]models.CorpusItem(nil), b.items...), nil
	}
	hits, err := b.index.match(query, len(b.items))
	if err != nil {
		return nil, err
	}
	out := make([]models.CorpusItem, 0, len(hits))
	for i, item := range b.items {
		if hits[docKey(i)] {
			out = append(out, item)
		}
	}
	return out, nil
}

// Suggest returns a corrected filter query built from indexed terms, or "" if every term
// is known or nothing is close.
func (b *Browser) Suggest(query string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.dict == nil {
		return ""
	}
	return suggest(query, b.dict)
}

// ByRace groups every entry by race; see GroupByRace.
func (b *Browser) ByRace() []Section {
	return GroupByRace(b.Items())
}

// GroupByRace groups items by race name in first-appearance order. Entries without a race
// go under "Other".
func GroupByRace(items []models.CorpusItem) []Section {
	var sections []Section
	pos := make(map[string]int)
	for _, item := range items {
		name := strings.TrimSpace(item.RaceName)
		if name == "" {
			name = race.OtherName
		}
		i, ok := pos[name]
		if !ok {
			i = len(sections)
			pos[name] = i
			sections = append(sections, Section{Race: name})
		}
		sections[i].Items = append(sections[i].Items, item)
	}
	return sections
}

// Document fetches one corpus document.
func (b *Browser) Document(ctx context.Context, docType, docID string) (*models.DocumentContent, error) {
	switch docType {
	case models.DocFocusGroup, models.DocStrategyMemo:
	default:
		return nil, fmt.Errorf("%w: unknown document type %q", models.ErrInvalidPayload, docType)
	}
	if strings.TrimSpace(docID) == "" {
		return nil, fmt.Errorf("%w: empty document id", models.ErrInvalidPayload)
	}
	doc, err := b.src.CorpusDocument(ctx, docType, docID)
	if err != nil {
		return nil, fmt.Errorf("load document %s/%s: %w", docType, docID, err)
	}
	return doc, nil
}

// Close releases the filter index.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.index == nil {
		return nil
	}
	err := b.index.Close()
	b.index = nil
	return err
}
