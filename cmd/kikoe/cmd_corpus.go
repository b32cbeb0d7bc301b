package main

import (
	"fmt"
	"io"
	"os"

	"github.com/hyperjump/kikoe/internal/cli"
	"github.com/hyperjump/kikoe/internal/corpus"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const defaultWrapWidth = 100

func newCorpusCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "corpus [filter...]",
		Short: "Browse the research corpus",
		Long: `Lists every focus group transcript and strategy memo grouped by race. Words
given as arguments filter the list by title, location, race, outcome or type;
every word must match. Close misspellings are suggested when nothing matches.`,
		Example: `  kikoe corpus
  kikoe corpus ohio
  kikoe corpus show focus_group fg-columbus`,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			browser := corpus.NewBrowser(a.client(), a.logger.Named("corpus"))
			defer browser.Close()
			if err := browser.Load(cmd.Context()); err != nil {
				return err
			}
			filter := buildSearchQuery(args)
			items, err := browser.Filter(filter)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if err := cli.WriteCorpus(out, corpus.GroupByRace(items), format); err != nil {
				return err
			}
			if len(items) == 0 && filter != "" && format == cli.OutputText {
				if s := browser.Suggest(filter); s != "" {
					fmt.Fprintf(out, "Did you mean %q?\n", s)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	cmd.AddCommand(newCorpusShowCmd(a))
	return cmd
}

func newCorpusShowCmd(a *app) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "show <type> <id>",
		Short: "Show one corpus document",
		Long:  `Renders a focus_group or strategy_memo document. Use --raw for the Markdown source.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			browser := corpus.NewBrowser(a.client(), a.logger.Named("corpus"))
			defer browser.Close()
			doc, err := browser.Document(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if raw {
				_, err := io.WriteString(out, doc.Content)
				return err
			}
			tty, width := terminal(out)
			rendered, err := cli.RenderMarkdown(doc.Content, width, tty)
			if err != nil {
				return err
			}
			_, err = io.WriteString(out, rendered)
			return err
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the Markdown source")
	return cmd
}

// terminal reports whether w is a terminal and the width to wrap at.
func terminal(w io.Writer) (bool, int) {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return false, defaultWrapWidth
	}
	if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
		return true, width
	}
	return true, defaultWrapWidth
}
