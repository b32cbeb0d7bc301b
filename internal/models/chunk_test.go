package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestFocusGroupMetadata_PreservesUnknownKeys(t *testing.T) {
	in := `{"location":"Milwaukee","race_name":"Wisconsin Senate 2024","outcome":"win","moderator_notes":{"key_themes":["cost"]},"num_participants":9}`

	var m FocusGroupMetadata
	if err := json.Unmarshal([]byte(in), &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if m.Location != "Milwaukee" || m.RaceName != "Wisconsin Senate 2024" || m.Outcome != "win" {
		t.Errorf("known fields = %+v", m)
	}
	if m.ModeratorNotes == nil || len(m.ModeratorNotes.KeyThemes) != 1 {
		t.Errorf("moderator notes = %+v", m.ModeratorNotes)
	}
	if v, ok := m.Extra["num_participants"]; !ok || v.(float64) != 9 {
		t.Errorf("Extra = %v", m.Extra)
	}
	if _, ok := m.Extra["location"]; ok {
		t.Error("known key leaked into Extra")
	}

	out, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(out), `"num_participants":9`) {
		t.Errorf("Marshal lost unknown key: %s", out)
	}
}

func TestFocusGroupMetadata_Clone(t *testing.T) {
	m := FocusGroupMetadata{
		ModeratorNotes: &ModeratorNotes{KeyThemes: []string{"a"}},
		Extra:          map[string]any{"k": "v"},
	}
	c := m.Clone()
	c.ModeratorNotes.KeyThemes[0] = "changed"
	c.Extra["k"] = "changed"
	if m.ModeratorNotes.KeyThemes[0] != "a" || m.Extra["k"] != "v" {
		t.Error("Clone shares state with the original")
	}
}

func TestStrategyMetadata_OptionalNumbers(t *testing.T) {
	var withYear, without StrategyMetadata
	if err := json.Unmarshal([]byte(`{"state":"Ohio","year":0,"margin":-1.5}`), &withYear); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(`{"state":"Ohio","office":"Senate"}`), &without); err != nil {
		t.Fatal(err)
	}
	if withYear.Year == nil || *withYear.Year != 0 {
		t.Errorf("explicit zero year lost: %v", withYear.Year)
	}
	if withYear.Margin == nil || *withYear.Margin != -1.5 {
		t.Errorf("margin = %v", withYear.Margin)
	}
	if without.Year != nil || without.Margin != nil {
		t.Error("absent numbers should stay nil")
	}

	c := withYear.Clone()
	*c.Year = 2024
	if *withYear.Year != 0 {
		t.Error("Clone shares year pointer")
	}
}
