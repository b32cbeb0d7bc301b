package synthesis

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kikoe/internal/client"
	"github.com/hyperjump/kikoe/internal/models"
)

// FocusGroupSummaryJob builds the light summary request for one focus group.
func FocusGroupSummaryJob(query string, group models.GroupedResult) Job {
	return Job{
		Path: client.PathSynthesizeLight,
		Payload: models.SynthesisRequest{
			Quotes:         group.Chunks,
			Query:          query,
			FocusGroupName: group.Name(),
		},
	}
}

// FocusGroupDeepJob builds the streamed deep synthesis request for one focus group.
func FocusGroupDeepJob(query string, group models.GroupedResult) Job {
	return Job{
		Path: client.PathSynthesizeDeep,
		Payload: models.SynthesisRequest{
			Quotes:         group.Chunks,
			Query:          query,
			FocusGroupName: group.Name(),
		},
		Stream: true,
	}
}

// StrategySummaryJob builds the light summary request for one race's strategy lessons.
func StrategySummaryJob(query string, lesson models.StrategyGroupedResult) Job {
	return Job{
		Path: client.PathSynthesizeStrategyLight,
		Payload: models.StrategySynthesisRequest{
			Chunks:   lesson.Chunks,
			Query:    query,
			RaceName: StrategySummaryName(lesson.Metadata),
		},
	}
}

// StrategyDeepJob builds the streamed deep analysis request for one race.
func StrategyDeepJob(query string, lesson models.StrategyGroupedResult) Job {
	return Job{
		Path: client.PathSynthesizeStrategyDeep,
		Payload: models.StrategySynthesisRequest{
			Chunks:   lesson.Chunks,
			Query:    query,
			RaceName: StrategyDeepName(lesson.Metadata),
		},
		Stream: true,
	}
}

// StrategySummaryName formats a race as "State Year (outcome)".
func StrategySummaryName(meta models.StrategyMetadata) string {
	outcome := meta.Outcome
	if outcome == "" {
		outcome = "unknown"
	}
	return fmt.Sprintf("%s (%s)", StrategyDeepName(meta), outcome)
}

// StrategyDeepName formats a race as "State Year".
func StrategyDeepName(meta models.StrategyMetadata) string {
	state := meta.State
	if state == "" {
		state = "Unknown"
	}
	year := ""
	if meta.Year != nil {
		year = fmt.Sprint(*meta.Year)
	}
	return strings.TrimSpace(state + " " + year)
}
