// Package main provides the scorewisectl binary: offline companion jobs for
// the scoring service (global importance, bundle verification, one-shot
// predictions).
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/scorewise/scorewise/internal/bundle"
	"github.com/scorewise/scorewise/internal/client"
	"github.com/scorewise/scorewise/internal/explain"
	"github.com/scorewise/scorewise/internal/schema"
)

const appName = "scorewisectl"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   appName,
		Short: "Offline companion for the credit scoring service",
		Long: `scorewisectl runs the jobs that do not belong in the request path:
computing the global feature-importance artifact over a background sample,
verifying a model bundle against its manifest, and firing one-shot
predictions against a running service.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(globalImportanceCmd())
	cmd.AddCommand(verifyCmd())
	cmd.AddCommand(predictCmd())
	return cmd
}

func globalImportanceCmd() *cobra.Command {
	var (
		bundleDir string
		csvPath   string
		outPath   string
		maxRows   int
	)

	cmd := &cobra.Command{
		Use:   "global-importance",
		Short: "Compute the mean absolute attribution per feature over a background sample",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := bundle.Load(bundleDir)
			if err != nil {
				return err
			}
			explainer, err := explain.NewExplainer(b.Schema, b.Transform, b.Ensemble)
			if err != nil {
				return err
			}

			var background []schema.Record
			if csvPath != "" {
				background, err = readBackground(csvPath, b.Schema, maxRows)
				if err != nil {
					return err
				}
			} else {
				// no sample given: the baseline record alone still yields a
				// usable, if coarse, ranking
				background = []schema.Record{b.Schema.Baseline()}
			}

			summary, err := explainer.GlobalImportance(background)
			if err != nil {
				return err
			}
			if err := explain.SaveImportance(outPath, summary); err != nil {
				return err
			}
			fmt.Printf("wrote %s: %d features over %d background rows\n",
				outPath, len(summary.Features), summary.SampleSize)
			return nil
		},
	}

	cmd.Flags().StringVar(&bundleDir, "bundle", "./artifacts/bundle", "Model bundle directory")
	cmd.Flags().StringVar(&csvPath, "csv", "", "Background sample CSV (defaults to the baseline record)")
	cmd.Flags().StringVar(&outPath, "out", "./artifacts/global_importance.json", "Output artifact path")
	cmd.Flags().IntVar(&maxRows, "max-rows", 1000, "Background rows to read at most (0 = all)")
	return cmd
}

func verifyCmd() *cobra.Command {
	var bundleDir string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a model bundle's checksums and cross-artifact consistency",
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := bundle.VerifyManifest(bundleDir)
			if err != nil {
				return err
			}
			if manifest == nil {
				fmt.Println("no manifest present, skipping checksum verification")
			} else {
				fmt.Printf("manifest ok: %d files verified\n", len(manifest.Files))
			}

			b, err := bundle.Load(bundleDir)
			if err != nil {
				return err
			}
			fmt.Printf("bundle ok: version=%s features=%d columns=%d trees=%d threshold=%v\n",
				b.Version, b.Schema.Len(), b.Transform.Len(), len(b.Ensemble.Trees), b.Ensemble.Threshold)
			return nil
		},
	}

	cmd.Flags().StringVar(&bundleDir, "bundle", "./artifacts/bundle", "Model bundle directory")
	return cmd
}

func predictCmd() *cobra.Command {
	var apiURL string

	cmd := &cobra.Command{
		Use:   "predict value...",
		Short: "Score one applicant against a running service",
		Long: `Sends one positional value list to POST /predict. Arguments that parse
as numbers are sent as numbers; everything else is sent as a string.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values := make([]any, len(args))
			for i, arg := range args {
				if num, err := strconv.ParseFloat(arg, 64); err == nil {
					values[i] = num
				} else {
					values[i] = arg
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			resp, err := client.New(apiURL).Predict(ctx, values)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(resp, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&apiURL, "api", "http://localhost:8080", "Base URL of the prediction service")
	return cmd
}

// readBackground reads declared feature columns out of a CSV sample, merging
// each row over the baseline so partial samples still form full records.
func readBackground(path string, sc *schema.Schema, maxRows int) ([]schema.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open background csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read background csv header: %w", err)
	}

	// column index -> declared feature name
	kept := make(map[int]string)
	for i, name := range header {
		name = strings.TrimSpace(name)
		if sc.Index(name) >= 0 {
			kept[i] = name
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("background csv shares no columns with the declared features")
	}

	var records []schema.Record
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read background csv row %d: %w", len(records)+1, err)
		}
		partial := make(map[string]any, len(kept))
		for i, name := range kept {
			if i >= len(row) {
				continue
			}
			cell := strings.TrimSpace(row[i])
			if cell == "" {
				continue
			}
			if num, err := strconv.ParseFloat(cell, 64); err == nil {
				partial[name] = num
			} else {
				partial[name] = cell
			}
		}
		records = append(records, sc.MergeWithBaseline(partial))
		if maxRows > 0 && len(records) >= maxRows {
			break
		}
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("background csv has no data rows")
	}
	return records, nil
}
