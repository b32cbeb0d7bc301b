package corpus

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/kikoe/internal/models"
)

// searchFields are the analyzed fields a filter matches against.
var searchFields = []string{"title", "location", "race_name", "outcome", "type"}

// memIndex is an in-memory bleve index over corpus entries. Documents are keyed by
// their position in the loaded list.
type memIndex struct {
	index bleve.Index
}

func newMemIndex(items []models.CorpusItem) (*memIndex, error) {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	// Standard analyzer: lowercase and tokenize without stemming, so "ohio" matches
	// "Ohio" and prefixes behave predictably.
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	for _, f := range searchFields {
		docMapping.AddFieldMappingsAt(f, textFieldMapping)
	}
	docMapping.AddFieldMappingsAt("id", bleve.NewKeywordFieldMapping())
	im.DefaultMapping = docMapping

	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("failed to create corpus index: %w", err)
	}
	batch := index.NewBatch()
	for i, item := range items {
		doc := map[string]any{
			"id":        item.ID,
			"title":     item.Title,
			"location":  item.Location,
			"race_name": item.RaceName,
			"outcome":   item.Outcome,
			"type":      item.Type,
		}
		if err := batch.Index(docKey(i), doc); err != nil {
			_ = index.Close()
			return nil, fmt.Errorf("failed to index corpus entry %q: %w", item.ID, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("failed to index corpus: %w", err)
	}
	return &memIndex{index: index}, nil
}

func docKey(i int) string {
	return strconv.Itoa(i)
}

// match returns the keys of entries matching every term of query. A term matches a field
// by prefix or, for terms of four or more characters, within one edit.
func (m *memIndex) match(query string, size int) (map[string]bool, error) {
	terms := tokenizeQuery(query)
	if len(terms) == 0 {
		return nil, nil
	}
	conjuncts := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		conjuncts = append(conjuncts, termQuery(term))
	}
	req := bleve.NewSearchRequest(bleve.NewConjunctionQuery(conjuncts...))
	req.Size = size
	res, err := m.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("corpus search failed: %w", err)
	}
	hits := make(map[string]bool, len(res.Hits))
	for _, hit := range res.Hits {
		hits[hit.ID] = true
	}
	return hits, nil
}

// termQuery matches term in any search field.
func termQuery(term string) blevequery.Query {
	disjuncts := make([]blevequery.Query, 0, 2*len(searchFields))
	for _, field := range searchFields {
		pq := bleve.NewPrefixQuery(term)
		pq.SetField(field)
		disjuncts = append(disjuncts, pq)
		if len([]rune(term)) >= 4 {
			fq := bleve.NewFuzzyQuery(term)
			fq.SetFuzziness(1)
			fq.SetField(field)
			disjuncts = append(disjuncts, fq)
		}
	}
	return bleve.NewDisjunctionQuery(disjuncts...)
}

// terms returns every indexed term of the search fields with its document frequency.
func (m *memIndex) terms() (map[string]int, error) {
	out := make(map[string]int)
	for _, field := range searchFields {
		dict, err := m.index.FieldDict(field)
		if err != nil {
			return nil, fmt.Errorf("read %s terms: %w", field, err)
		}
		for {
			entry, err := dict.Next()
			if err != nil || entry == nil {
				break
			}
			out[entry.Term] += int(entry.Count)
		}
		_ = dict.Close()
	}
	return out, nil
}

func (m *memIndex) Close() error {
	return m.index.Close()
}

// tokenizeQuery splits query into lowercase terms.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}
