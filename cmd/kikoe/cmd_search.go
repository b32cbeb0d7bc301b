package main

import (
	"errors"
	"fmt"

	"github.com/hyperjump/kikoe/internal/cli"
	"github.com/hyperjump/kikoe/internal/search"
	"github.com/hyperjump/kikoe/internal/synthesis"
	"github.com/hyperjump/kikoe/internal/workspace"
	"github.com/spf13/cobra"
)

type searchOptions struct {
	output    string
	summaries bool
	deep      string
}

func newSearchCmd(a *app) *cobra.Command {
	var opts searchOptions
	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Search focus groups and strategy memos",
		Long: `Runs a streaming search and prints its progress steps, then the results grouped
by race. The query is all remaining arguments joined by spaces, so multi-word
queries work with or without quotes.`,
		Example: `  kikoe search Ohio economy
  kikoe search --summaries "working class voters"
  kikoe search --deep fg-columbus Ohio economy
  kikoe search --output json inflation`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, a, opts, buildSearchQuery(args))
		},
	}
	cmd.Flags().StringVarP(&opts.output, "output", "o", "text", "output format: text or json")
	cmd.Flags().BoolVar(&opts.summaries, "summaries", false, "generate a light summary for every focus group and race")
	cmd.Flags().StringVar(&opts.deep, "deep", "", "stream a deep synthesis of the focus group with this id")
	return cmd
}

func runSearch(cmd *cobra.Command, a *app, opts searchOptions, query string) error {
	format, err := cli.ParseOutputFormat(opts.output)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	ws := a.workspace()
	defer ws.Close()

	outcome, err := searchAndWait(cmd, ws, query, format == cli.OutputText)
	if err != nil {
		return err
	}
	if err := cli.WriteSearchResults(out, query, ws.Response(), ws.Races(), format); err != nil {
		return fmt.Errorf("output failed: %w", err)
	}
	if outcome != workspace.OutcomeResults {
		return nil
	}

	if opts.summaries {
		if err := ws.Summarize(ctx); err != nil {
			return fmt.Errorf("summaries failed: %w", err)
		}
		if format == cli.OutputText {
			cli.WriteSummaries(out, ws.Races(),
				ws.Store().Texts(synthesis.FocusGroupSummary),
				ws.Store().Texts(synthesis.StrategySummary))
		}
	}
	if opts.deep != "" {
		key := synthesis.Key{Kind: synthesis.FocusGroupDeep, ID: opts.deep}
		if _, err := cli.StreamSynthesis(ctx, out, ws.Store(), key, func() (bool, error) {
			return ws.StartSynthesis(ctx, key)
		}); err != nil {
			return fmt.Errorf("deep synthesis failed: %w", err)
		}
	}
	return nil
}

// searchAndWait runs a streaming search, writing its steps to stderr when showSteps is
// set, and waits for its results.
func searchAndWait(cmd *cobra.Command, ws *workspace.Workspace, query string, showSteps bool) (workspace.Outcome, error) {
	sess, err := ws.Search(cmd.Context(), query)
	if err != nil {
		return workspace.OutcomeIdle, errors.New(search.UserMessage(err))
	}
	if showSteps {
		for u := range sess.Updates() {
			if u.Kind == search.UpdateStep {
				cli.WriteStep(cmd.ErrOrStderr(), u.Step)
			}
		}
	}
	outcome, err := ws.Wait(cmd.Context(), sess)
	if err != nil {
		return outcome, errors.New(search.UserMessage(err))
	}
	return outcome, nil
}
