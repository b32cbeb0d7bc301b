package synthesis

import (
	"context"
	"fmt"

	"github.com/hyperjump/kikoe/internal/client"
	"github.com/hyperjump/kikoe/internal/models"
	"github.com/hyperjump/kikoe/internal/stream"
	"github.com/hyperjump/kikoe/pkg/utils"
	"go.uber.org/zap"
)

// Themes runs deep macro synthesis over the selected focus groups and returns the themes
// it discovers, in arrival order. onStep, if set, receives progress events. Requires
// every selected focus group summary to be complete.
func (c *Coordinator) Themes(ctx context.Context, onStep func(models.EventStatus)) ([]models.Theme, error) {
	c.mu.Lock()
	if len(c.selectedFG) == 0 {
		c.mu.Unlock()
		return nil, ErrEmptySelection
	}
	var keys []Key
	for id := range c.selectedFG {
		keys = append(keys, Key{Kind: FocusGroupSummary, ID: id})
	}
	if !c.store.Completed(keys...) {
		c.mu.Unlock()
		return nil, ErrNotReady
	}
	summaries := c.store.Texts(FocusGroupSummary)
	req := models.DeepMacroRequest{
		FGSummaries: make(map[string]string),
		TopQuotes:   make(map[string][]models.RetrievalChunk),
		FGMetadata:  make(map[string]models.FocusGroupMetadata),
		Query:       c.query,
	}
	for _, r := range c.results {
		if !c.selectedFG[r.FocusGroupID] {
			continue
		}
		req.FGSummaries[r.FocusGroupID] = summaryOr(summaries, r.FocusGroupID)
		req.TopQuotes[r.FocusGroupID] = r.Chunks
		req.FGMetadata[r.FocusGroupID] = r.Metadata
	}
	c.mu.Unlock()

	body, err := c.backend.OpenStream(ctx, client.PathSynthesizeMacroDeep, req)
	if err != nil {
		return nil, fmt.Errorf("deep macro synthesis: %w", err)
	}
	defer body.Close()

	var themes []models.Theme
	err = stream.ReadLines(body, func(line []byte) error {
		ev, perr := models.ParseStreamEvent(line)
		if perr != nil {
			c.logger.Warn("skipping malformed theme record",
				zap.String("line", utils.Truncate(string(line), 200)),
				zap.Error(perr))
			return nil
		}
		switch ev := ev.(type) {
		case models.EventTheme:
			themes = append(themes, models.ThemeFromEvent(ev))
		case models.EventStatus:
			if onStep != nil {
				onStep(ev)
			}
		}
		return nil
	})
	if err != nil {
		return themes, fmt.Errorf("deep macro synthesis: %w", err)
	}
	return themes, nil
}
