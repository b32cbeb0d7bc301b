package race

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hyperjump/kikoe/internal/models"
)

func fg(id, raceName, outcome string) models.GroupedResult {
	return models.GroupedResult{
		FocusGroupID: id,
		Metadata:     models.FocusGroupMetadata{RaceName: raceName, Outcome: outcome, Location: id},
		Chunks:       []models.RetrievalChunk{{ChunkID: id + "-c1", Content: "quote"}},
	}
}

func lesson(id, state, office string, year *int, margin *float64, outcome string) models.StrategyGroupedResult {
	return models.StrategyGroupedResult{
		RaceID:   id,
		Metadata: models.StrategyMetadata{State: state, Office: office, Year: year, Margin: margin, Outcome: outcome},
		Chunks:   []models.StrategyChunk{{ChunkID: id + "-s1"}},
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Ohio Senate", "ohiosenate"},
		{"  Wisconsin Senate 2024 ", "wisconsinsenate2024"},
		{"NC-Gov (2022)", "ncgov2022"},
		{"Other", "other"},
		{"Ünïcode Räce", "ncoderce"},
		{"", ""},
	}
	for _, tt := range tests {
		got := Normalize(tt.in)
		if got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if again := Normalize(got); again != got {
			t.Errorf("Normalize not idempotent for %q: %q", tt.in, again)
		}
	}
}

func TestOverrides_Apply(t *testing.T) {
	o := Overrides{"Wisconsin 2024": "Wisconsin Senate 2024"}
	if got := o.Apply("Wisconsin 2024"); got != "Wisconsin Senate 2024" {
		t.Errorf("Apply() = %q", got)
	}
	if got := o.Apply(" Wisconsin 2024 "); got != "Wisconsin Senate 2024" {
		t.Errorf("Apply() trimmed = %q", got)
	}
	if got := o.Apply("wisconsin 2024"); got != "wisconsin 2024" {
		t.Errorf("Apply() should match literally, got %q", got)
	}
	var none Overrides
	if got := none.Apply("Ohio Senate"); got != "Ohio Senate" {
		t.Errorf("nil Overrides Apply() = %q", got)
	}
}

func TestStrategyName(t *testing.T) {
	tests := []struct {
		meta models.StrategyMetadata
		want string
	}{
		{models.StrategyMetadata{State: "Ohio", Office: "Senate"}, "Ohio Senate"},
		{models.StrategyMetadata{State: "Ohio"}, "Ohio"},
		{models.StrategyMetadata{Office: "Governor"}, "Unknown Governor"},
		{models.StrategyMetadata{}, "Unknown"},
	}
	for _, tt := range tests {
		if got := StrategyName(tt.meta); got != tt.want {
			t.Errorf("StrategyName(%+v) = %q, want %q", tt.meta, got, tt.want)
		}
	}
}

func TestBuild_OhioScenario(t *testing.T) {
	results := []models.GroupedResult{
		fg("fg-cle", "Ohio Senate", "loss"),
		fg("fg-cin", "Ohio Senate", "loss"),
		fg("fg-mke", "Wisconsin Senate 2024", "win"),
		fg("fg-mke2", "Wisconsin Senate 2024", "win"),
		fg("fg-mke3", "Wisconsin Senate 2024", "win"),
	}
	lessons := []models.StrategyGroupedResult{
		lesson("oh-sen-2024", "Ohio", "Senate", models.IntPtr(2024), models.FloatPtr(-3.6), "loss"),
	}

	groups := Sorted(results, lessons, nil)
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	first := groups[0]
	if first.Key != "ohiosenate" {
		t.Errorf("first group key = %q, want ohiosenate", first.Key)
	}
	if len(first.FocusGroups) != 2 || len(first.Strategies) != 1 {
		t.Errorf("ohio group members = %d fg, %d strategies", len(first.FocusGroups), len(first.Strategies))
	}
	if first.Metadata.Year == nil || *first.Metadata.Year != 2024 || first.Metadata.State != "Ohio" {
		t.Errorf("merged metadata = %+v", first.Metadata)
	}
	if first.Metadata.Outcome != "loss" {
		t.Errorf("outcome = %q", first.Metadata.Outcome)
	}
	if first.YearLabel() != "2024" {
		t.Errorf("YearLabel() = %q", first.YearLabel())
	}
}

func TestBuild_Total(t *testing.T) {
	results := []models.GroupedResult{
		fg("a", "", "win"),
		fg("b", "Ohio Senate", "loss"),
		fg("c", "  ", "win"),
		fg("d", "Wisconsin 2024", "win"),
		fg("e", "Wisconsin Senate 2024", "win"),
	}
	lessons := []models.StrategyGroupedResult{
		lesson("r1", "Ohio", "Senate", nil, nil, "loss"),
		lesson("r2", "", "", nil, nil, ""),
		lesson("r3", "Montana", "Senate", nil, nil, "win"),
	}
	groups := Build(results, lessons, Overrides{"Wisconsin 2024": "Wisconsin Senate 2024"})

	seen := map[string]int{}
	for _, g := range groups {
		for _, id := range g.FocusGroupIDs() {
			seen[id]++
		}
		for _, id := range g.RaceIDs() {
			seen[id]++
		}
	}
	for _, id := range []string{"a", "b", "c", "d", "e", "r1", "r2", "r3"} {
		if seen[id] != 1 {
			t.Errorf("%s appears in %d groups, want 1", id, seen[id])
		}
	}

	other, ok := Find(groups, "a")
	if !ok || other.Name != OtherName || len(other.FocusGroups) != 2 {
		t.Errorf("Other bucket = %+v", other)
	}
	wi, ok := Find(groups, "d")
	if !ok || wi.Key != "wisconsinsenate2024" || len(wi.FocusGroups) != 2 {
		t.Errorf("override did not merge Wisconsin variants: %+v", wi)
	}
	unknown, ok := Find(groups, "r2")
	if !ok || unknown.Key != "unknown" {
		t.Errorf("strategy without state = %+v", unknown)
	}
}

func TestBuild_Empty(t *testing.T) {
	if got := Sorted(nil, nil, nil); len(got) != 0 {
		t.Errorf("Sorted(nil, nil) = %v", got)
	}
}

func TestBuild_NonDestructiveMerge(t *testing.T) {
	lessons := []models.StrategyGroupedResult{
		lesson("r1", "Ohio", "Senate", models.IntPtr(2024), models.FloatPtr(-3.6), "loss"),
		lesson("r2", "Ohio", "Senate", nil, nil, ""),
		lesson("r3", "Ohio", "Senate", nil, models.FloatPtr(-4.1), "win"),
	}
	groups := Build(nil, lessons, nil)
	if len(groups) != 1 {
		t.Fatalf("got %d groups", len(groups))
	}
	m := groups[0].Metadata
	if m.Year == nil || *m.Year != 2024 {
		t.Errorf("year cleared by absent value: %v", m.Year)
	}
	if m.Margin == nil || *m.Margin != -4.1 {
		t.Errorf("margin = %v, want -4.1", m.Margin)
	}
	if m.Outcome != "loss" {
		t.Errorf("outcome = %q, want first seen loss", m.Outcome)
	}
}

func TestBuild_DoesNotMutateInputs(t *testing.T) {
	results := []models.GroupedResult{fg("a", "Ohio Senate", "")}
	lessons := []models.StrategyGroupedResult{lesson("r1", "Ohio", "Senate", models.IntPtr(2022), nil, "win")}
	groups := Build(results, lessons, nil)
	*groups[0].Metadata.Year = 1999
	groups[0].FocusGroups[0].Chunks[0].Content = "changed"
	groups[0].FocusGroups[0].Metadata.Location = "changed"

	if diff := cmp.Diff([]models.GroupedResult{fg("a", "Ohio Senate", "")}, results); diff != "" {
		t.Errorf("results mutated (-want +got):\n%s", diff)
	}
	if *lessons[0].Metadata.Year != 2022 {
		t.Errorf("lesson year mutated to %d", *lessons[0].Metadata.Year)
	}
}

func TestSorted_Deterministic(t *testing.T) {
	results := []models.GroupedResult{
		fg("1", "beta race", ""), fg("2", "Alpha race", ""), fg("3", "Gamma", ""),
		fg("4", "Gamma", ""), fg("5", "", ""), fg("6", "Delta Senate", ""),
	}
	lessons := []models.StrategyGroupedResult{
		lesson("r1", "Delta", "Senate", nil, nil, ""),
		lesson("r2", "Epsilon", "House", nil, nil, ""),
	}

	first := Sorted(results, lessons, nil)
	second := Sorted(results, lessons, nil)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("grouping not deterministic (-first +second):\n%s", diff)
	}

	var names []string
	for _, g := range first {
		names = append(names, g.Name)
	}
	want := []string{"Delta Senate", "Gamma", "Alpha race", "beta race", "Epsilon House", "Other"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("order (-want +got):\n%s", diff)
	}
}

func TestGroup_YearLabel(t *testing.T) {
	tests := []struct {
		name string
		g    Group
		want string
	}{
		{"metadata year", Group{Name: "Ohio Senate", Metadata: Metadata{Year: models.IntPtr(2022)}}, "2022"},
		{"name year", Group{Name: "Wisconsin Senate 2024"}, "2024"},
		{"date year", Group{Name: "Ohio Senate", FocusGroups: []models.GroupedResult{{Metadata: models.FocusGroupMetadata{Date: "2018-10-02"}}}}, "2018"},
		{"none", Group{Name: "Ohio Senate"}, ""},
		{"not a year", Group{Name: "District 12345"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.g.YearLabel(); got != tt.want {
				t.Errorf("YearLabel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMarginLabel(t *testing.T) {
	tests := []struct {
		margin *float64
		want   string
	}{
		{models.FloatPtr(3.2), "+3.2%"},
		{models.FloatPtr(-1.5), "-1.5%"},
		{models.FloatPtr(0), ""},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := MarginLabel(tt.margin); got != tt.want {
			t.Errorf("MarginLabel(%v) = %q, want %q", tt.margin, got, tt.want)
		}
	}
}
