package race

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/hyperjump/kikoe/internal/models"
)

// Metadata is the race-level metadata merged from the group's members.
type Metadata struct {
	Outcome string   `json:"outcome,omitempty"`
	Margin  *float64 `json:"margin,omitempty"`
	Year    *int     `json:"year,omitempty"`
	State   string   `json:"state,omitempty"`
}

// Group is every focus group and strategy result sharing one race key.
type Group struct {
	Key         string                         `json:"race_key"`
	Name        string                         `json:"race_name"`
	Metadata    Metadata                       `json:"race_metadata"`
	FocusGroups []models.GroupedResult         `json:"focus_groups"`
	Strategies  []models.StrategyGroupedResult `json:"strategies"`
}

// Total returns the number of member results.
func (g *Group) Total() int {
	return len(g.FocusGroups) + len(g.Strategies)
}

// HasBoth reports whether the group holds both focus groups and strategies.
func (g *Group) HasBoth() bool {
	return len(g.FocusGroups) > 0 && len(g.Strategies) > 0
}

// DisplayName returns the race name.
func (g *Group) DisplayName() string {
	return g.Name
}

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// YearLabel returns the race year: the metadata year when set, otherwise the first
// four-digit year in the race name or a member focus group's date. Empty if none.
func (g *Group) YearLabel() string {
	if g.Metadata.Year != nil {
		return strconv.Itoa(*g.Metadata.Year)
	}
	if y := yearPattern.FindString(g.Name); y != "" {
		return y
	}
	for _, fg := range g.FocusGroups {
		if y := yearPattern.FindString(fg.Metadata.Date); y != "" {
			return y
		}
	}
	return ""
}

// MarginLabel formats a vote margin as "+3.2%" or "-1.5%". Nil and zero give "".
func MarginLabel(margin *float64) string {
	if margin == nil || *margin == 0 {
		return ""
	}
	s := strconv.FormatFloat(*margin, 'f', -1, 64) + "%"
	if *margin > 0 {
		s = "+" + s
	}
	return s
}

// FocusGroupIDs returns the member focus-group ids in order.
func (g *Group) FocusGroupIDs() []string {
	ids := make([]string, len(g.FocusGroups))
	for i, fg := range g.FocusGroups {
		ids[i] = fg.FocusGroupID
	}
	return ids
}

// RaceIDs returns the member strategy race ids in order.
func (g *Group) RaceIDs() []string {
	ids := make([]string, len(g.Strategies))
	for i, s := range g.Strategies {
		ids[i] = s.RaceID
	}
	return ids
}

// FocusGroupName returns the display race name of a focus group.
func FocusGroupName(meta models.FocusGroupMetadata) string {
	if name := strings.TrimSpace(meta.RaceName); name != "" {
		return name
	}
	return OtherName
}

// StrategyName returns the display race name of a strategy result: state and office.
func StrategyName(meta models.StrategyMetadata) string {
	state := meta.State
	if state == "" {
		state = UnknownState
	}
	return strings.TrimSpace(state + " " + meta.Office)
}

// Build partitions results and lessons into race groups, in first-appearance order.
// Every input lands in exactly one group. Inputs are not modified; members and metadata
// are copied.
func Build(results []models.GroupedResult, lessons []models.StrategyGroupedResult, overrides Overrides) []*Group {
	var groups []*Group
	byKey := make(map[string]*Group)

	lookup := func(name string) (*Group, bool) {
		key := Normalize(name)
		if g, ok := byKey[key]; ok {
			return g, false
		}
		g := &Group{Key: key, Name: name}
		byKey[key] = g
		groups = append(groups, g)
		return g, true
	}

	for _, fg := range results {
		g, created := lookup(overrides.Apply(FocusGroupName(fg.Metadata)))
		if created {
			g.Metadata.Outcome = fg.Metadata.Outcome
		}
		g.FocusGroups = append(g.FocusGroups, copyResult(fg))
	}

	for _, s := range lessons {
		meta := s.Metadata
		g, created := lookup(overrides.Apply(StrategyName(meta)))
		if created {
			g.Metadata = Metadata{
				Outcome: meta.Outcome,
				Margin:  copyFloat(meta.Margin),
				Year:    copyInt(meta.Year),
				State:   meta.State,
			}
		} else {
			if g.Metadata.Outcome == "" {
				g.Metadata.Outcome = meta.Outcome
			}
			if meta.Margin != nil {
				g.Metadata.Margin = copyFloat(meta.Margin)
			}
			if meta.Year != nil {
				g.Metadata.Year = copyInt(meta.Year)
			}
			if meta.State != "" {
				g.Metadata.State = meta.State
			}
		}
		g.Strategies = append(g.Strategies, copyLesson(s))
	}

	return groups
}

// Sort orders groups for display: groups with both result types first, then by
// descending size, then by case-insensitive name.
func Sort(groups []*Group) {
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.HasBoth() != b.HasBoth() {
			return a.HasBoth()
		}
		if a.Total() != b.Total() {
			return a.Total() > b.Total()
		}
		an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
		if an != bn {
			return an < bn
		}
		return a.Key < b.Key
	})
}

// Sorted builds and sorts the race groups.
func Sorted(results []models.GroupedResult, lessons []models.StrategyGroupedResult, overrides Overrides) []*Group {
	groups := Build(results, lessons, overrides)
	Sort(groups)
	return groups
}

// Find returns the group holding the focus group or race id.
func Find(groups []*Group, id string) (*Group, bool) {
	for _, g := range groups {
		for _, fg := range g.FocusGroups {
			if fg.FocusGroupID == id {
				return g, true
			}
		}
		for _, s := range g.Strategies {
			if s.RaceID == id {
				return g, true
			}
		}
	}
	return nil, false
}

func copyResult(r models.GroupedResult) models.GroupedResult {
	r.Metadata = r.Metadata.Clone()
	r.Chunks = append([]models.RetrievalChunk(nil), r.Chunks...)
	return r
}

func copyLesson(s models.StrategyGroupedResult) models.StrategyGroupedResult {
	s.Metadata = s.Metadata.Clone()
	s.Chunks = append([]models.StrategyChunk(nil), s.Chunks...)
	return s
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
