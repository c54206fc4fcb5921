// Command lookup resolves queries through the same providers as the server.
//
//	$ lookup geocode table lamp spoon
//	table.lamp.spoon	51.507400,-0.127800
//	$ lookup reverse --zoom 17 -- 51.5074 -0.1278
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/wordloc/internal/app"
	"github.com/couchcryptid/wordloc/internal/config"
	"github.com/couchcryptid/wordloc/internal/domain"
	"github.com/couchcryptid/wordloc/internal/observability"
)

type geocoder interface {
	Geocode(ctx context.Context, query string) []domain.Result
	Suggest(ctx context.Context, query string) []domain.Result
	Reverse(ctx context.Context, p domain.Point, scale float64) []domain.Result
}

type options struct {
	asJSON  bool
	verbose bool
	timeout time.Duration
	zoom    float64
}

func main() {
	if err := newRootCmd(newAggregator).Execute(); err != nil {
		os.Exit(1)
	}
}

func newAggregator(verbose bool) (geocoder, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return app.BuildAggregator(cfg, logger, observability.NewMetrics()), nil
}

func newRootCmd(build func(verbose bool) (geocoder, error)) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "lookup",
		Short: "Resolve three-word codes, coordinates and place names",
		Long: `
lookup runs a query through every configured geocoding provider and prints
the merged results, one per line: the name, a tab, then lat,lng.

Providers are configured with the same environment variables as the server.
`,
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "print results as JSON")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log provider activity to stderr")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "overall deadline per query")

	forward := func(use, short string, call func(geocoder, context.Context, string) []domain.Result) *cobra.Command {
		return &cobra.Command{
			Use:   use + " [query...]",
			Short: short,
			Long:  short + ".\n\nWithout arguments, queries are read from stdin, one per line.",
			RunE: func(cmd *cobra.Command, args []string) error {
				g, err := build(opts.verbose)
				if err != nil {
					return err
				}
				queries := []string{strings.Join(args, " ")}
				if len(args) == 0 {
					if queries, err = readLines(cmd.InOrStdin()); err != nil {
						return err
					}
				}
				for _, q := range queries {
					ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
					results := call(g, ctx, q)
					cancel()
					if err := printResults(cmd.OutOrStdout(), results, opts.asJSON); err != nil {
						return err
					}
				}
				return nil
			},
		}
	}

	root.AddCommand(
		forward("geocode", "Resolve a query to locations", geocoder.Geocode),
		forward("suggest", "List type-ahead suggestions for a partial query", geocoder.Suggest),
		newReverseCmd(opts, build),
	)
	return root
}

func newReverseCmd(opts *options, build func(bool) (geocoder, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reverse LAT LNG",
		Short: "Resolve a point to locations",
		Long:  "Resolve a point to locations.\n\nPut negative coordinates after -- so they are not read as flags.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lat, err := strconv.ParseFloat(args[0], 64)
			if err != nil || lat < -90 || lat > 90 {
				return fmt.Errorf("invalid latitude %q", args[0])
			}
			lng, err := strconv.ParseFloat(args[1], 64)
			if err != nil || lng < -180 || lng > 180 {
				return fmt.Errorf("invalid longitude %q", args[1])
			}
			if !(opts.zoom >= 0 && opts.zoom <= 22) {
				return fmt.Errorf("invalid zoom %v", opts.zoom)
			}
			g, err := build(opts.verbose)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			results := g.Reverse(ctx, domain.Point{Lat: lat, Lng: lng}, domain.ScaleForZoom(opts.zoom))
			return printResults(cmd.OutOrStdout(), results, opts.asJSON)
		},
	}
	cmd.Flags().Float64Var(&opts.zoom, "zoom", 17, "map zoom the lookup precision is derived from")
	return cmd
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return lines, nil
}

func printResults(w io.Writer, results []domain.Result, asJSON bool) error {
	if asJSON {
		if results == nil {
			results = []domain.Result{}
		}
		return json.NewEncoder(w).Encode(results)
	}
	for _, r := range results {
		if _, err := fmt.Fprintf(w, "%s\t%s\n", r.Name, r.Center); err != nil {
			return err
		}
	}
	return nil
}
