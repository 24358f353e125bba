package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Brownie44l1/crop-disease-api/internal/model"
	"github.com/Brownie44l1/crop-disease-api/internal/pipeline"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// BatchResult is one line of the batch report.
type BatchResult struct {
	Path       string  `json:"path"`
	Display    string  `json:"display"`
	Class      string  `json:"class,omitempty"`
	Confidence float32 `json:"confidence,omitempty"`
	Error      string  `json:"error,omitempty"`
}

func (a *app) batchCmd() *cobra.Command {
	var jsonOut string
	cmd := &cobra.Command{
		Use:   "batch <dir>",
		Short: "Classify every JPEG and PNG under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := listImages(args[0])
			if err != nil {
				return err
			}
			if len(files) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No images found.")
				return nil
			}

			p, release := a.openPipeline()
			defer release()

			bar := progressbar.NewOptions(len(files),
				progressbar.OptionSetDescription("🌱 Classifying"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
			)
			results := classifyAll(cmd.Context(), p, files, func() { bar.Add(1) })
			bar.Finish()

			failed := writeReport(cmd.OutOrStdout(), results)
			a.log.Infof("Classified %d images, %d failed", len(results), failed)

			if jsonOut != "" {
				if err := writeJSON(jsonOut, results); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&jsonOut, "out", "o", "", "also write the results to this JSON file")
	return cmd
}

// listImages returns the image files under root in lexical order.
func listImages(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && imageExtensions[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list images in %v: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

// classifyAll runs every file through p, stopping early when ctx is cancelled.
func classifyAll(ctx context.Context, p *pipeline.Pipeline, files []string, progress func()) []BatchResult {
	results := make([]BatchResult, 0, len(files))
	for _, path := range files {
		if ctx.Err() != nil {
			break
		}
		results = append(results, classifyOne(p, path))
		if progress != nil {
			progress()
		}
	}
	return results
}

func classifyOne(p *pipeline.Pipeline, path string) BatchResult {
	res := BatchResult{Path: path, Display: model.FailureText}
	f, err := os.Open(path)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer f.Close()

	outcome, err := p.RunReader(f)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Display = outcome.Result.Display()
	res.Class = outcome.Result.Label
	res.Confidence = outcome.Result.Confidence
	return res
}

// writeReport prints "path<TAB>display" lines and returns the number of failures.
func writeReport(w io.Writer, results []BatchResult) int {
	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
		fmt.Fprintf(w, "%s\t%s\n", r.Path, r.Display)
	}
	return failed
}

func writeJSON(path string, results []BatchResult) error {
	raw, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return fmt.Errorf("failed to write %v: %w", path, err)
	}
	return nil
}
