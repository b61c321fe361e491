package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"storydub/internal/api"
	"storydub/internal/apiclient"
	"storydub/internal/catalog"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	var local bool
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List supported languages, speakers, themes and moods",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp api.CatalogResponse
			if local {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				cat, err := catalog.Load(cfg.Catalog.Path)
				if err != nil {
					return err
				}
				resp = api.FromCatalog(cat)
			} else {
				err := ctx.withClient(func(client *apiclient.Client) error {
					var err error
					resp, err = client.Catalog(cmd.Context())
					return err
				})
				if err != nil {
					return err
				}
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, resp)
			}
			renderCatalog(cmd.OutOrStdout(), resp)
			return nil
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "Read the configured catalog without contacting the daemon")
	return cmd
}

func renderCatalog(out io.Writer, resp api.CatalogResponse) {
	langRows := make([][]string, 0, len(resp.Languages))
	for _, lang := range resp.Languages {
		langRows = append(langRows, []string{lang.Code, catalog.DisplayName(lang.Name), dashIfEmpty(lang.DefaultSpeaker)})
	}
	fmt.Fprintln(out, renderTable([]string{"Code", "Language", "Default speaker"}, langRows, nil))

	themeRows := make([][]string, 0, len(resp.Themes))
	for _, theme := range resp.Themes {
		themeRows = append(themeRows, []string{theme.Name, theme.Title})
	}
	fmt.Fprintln(out, renderTable([]string{"Theme", "Collection"}, themeRows, nil))

	moodRows := make([][]string, 0, len(resp.Moods))
	for _, mood := range resp.Moods {
		moodRows = append(moodRows, []string{mood.Name, fmt.Sprintf("%.2f", mood.Pace)})
	}
	fmt.Fprintln(out, renderTable([]string{"Mood", "Pace"}, moodRows, []columnAlignment{alignLeft, alignRight}))

	fmt.Fprintf(out, "Speakers: %s\n", strings.Join(resp.Speakers, ", "))
}
