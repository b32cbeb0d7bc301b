package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hyperjump/kikoe/internal/export"
	"github.com/hyperjump/kikoe/internal/synthesis"
	"github.com/hyperjump/kikoe/internal/workspace"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type reportOptions struct {
	format  string
	out     string
	deepAll bool
	macro   bool
	themes  bool
	sources bool
}

func newReportCmd(a *app) *cobra.Command {
	var opts reportOptions
	cmd := &cobra.Command{
		Use:   "report <query...>",
		Short: "Search, synthesize and export a report",
		Long: `Runs a search, generates the light summaries of every focus group and race and
writes a report. Deep analyses, the cross-race macro synthesis and the theme
analysis are added on request.

The report is written to --out, or to Report_<query>.<format> in the current
directory. Use --out - for standard output.`,
		Example: `  kikoe report Ohio economy
  kikoe report --deep-all --macro --format pdf "working class voters"
  kikoe report --format xlsx --out quotes.xlsx inflation`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, a, opts, buildSearchQuery(args))
		},
	}
	cmd.Flags().StringVarP(&opts.format, "format", "f", "md", "report format: md, pdf or xlsx")
	cmd.Flags().StringVarP(&opts.out, "out", "O", "", "output file (default Report_<query>.<format>, - for stdout)")
	cmd.Flags().BoolVar(&opts.deepAll, "deep-all", false, "add a deep analysis of every focus group and race")
	cmd.Flags().BoolVar(&opts.macro, "macro", false, "add a macro synthesis across every focus group and race")
	cmd.Flags().BoolVar(&opts.themes, "themes", false, "add the theme analysis across every focus group")
	cmd.Flags().BoolVar(&opts.sources, "sources", false, "cite the source file and line of each quote (markdown only)")
	return cmd
}

func runReport(cmd *cobra.Command, a *app, opts reportOptions, query string) error {
	format, err := export.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	ws := a.workspace()
	defer ws.Close()

	outcome, err := searchAndWait(cmd, ws, query, true)
	if err != nil {
		return err
	}
	if outcome != workspace.OutcomeResults {
		return fmt.Errorf("no results for %q", query)
	}

	progress := cmd.ErrOrStderr()
	fmt.Fprintln(progress, "Generating summaries...")
	if err := ws.Summarize(ctx); err != nil {
		return fmt.Errorf("summaries failed: %w", err)
	}
	if opts.deepAll {
		fmt.Fprintln(progress, "Generating deep analyses...")
		if err := deepAll(ctx, ws); err != nil {
			return err
		}
	}
	if opts.macro || opts.themes {
		ws.Coordinator().SelectAll()
	}
	if opts.macro {
		fmt.Fprintln(progress, "Generating macro synthesis...")
		if _, err := ws.RequestMacro(ctx); err != nil && !errors.Is(err, synthesis.ErrPrerequisiteFailed) {
			return fmt.Errorf("macro synthesis failed: %w", err)
		}
		state, err := ws.Coordinator().Wait(ctx)
		if err != nil {
			return err
		}
		if state == synthesis.MacroFailed {
			a.logger.Warn("macro synthesis failed", zap.Error(ws.Coordinator().Err()))
		}
	}
	if opts.themes {
		fmt.Fprintln(progress, "Finding themes...")
		if _, err := ws.Themes(ctx, nil); err != nil {
			return fmt.Errorf("theme analysis failed: %w", err)
		}
	}

	data := ws.ExportData()
	path := opts.out
	if path == "" {
		path = export.Filename(query, string(format))
	}
	if err := writeReport(cmd.OutOrStdout(), path, format, data, export.Options{IncludeSources: opts.sources}); err != nil {
		return err
	}
	if path != "-" {
		fmt.Fprintf(progress, "Wrote %s\n", path)
	}
	return nil
}

// deepAll runs the deep synthesis of every focus group and race and waits for all of
// them. Individual failures are left in the store and omitted from the report.
func deepAll(ctx context.Context, ws *workspace.Workspace) error {
	res := ws.Response()
	var keys []synthesis.Key
	for _, fg := range res.FocusGroups() {
		keys = append(keys, synthesis.Key{Kind: synthesis.FocusGroupDeep, ID: fg.FocusGroupID})
	}
	for _, l := range res.Lessons {
		keys = append(keys, synthesis.Key{Kind: synthesis.StrategyDeep, ID: l.RaceID})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, key := range keys {
		g.Go(func() error {
			if _, err := ws.StartSynthesis(ctx, key); err != nil {
				return err
			}
			_, err := ws.Store().Wait(gctx, key)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("deep synthesis failed: %w", err)
	}
	return nil
}

func writeReport(stdout io.Writer, path string, format export.Format, data export.Data, opts export.Options) (err error) {
	if path == "-" {
		return export.Write(stdout, format, data, opts)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	if err := export.Write(f, format, data, opts); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
