package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Brownie44l1/crop-disease-api/internal/model"
	"github.com/Brownie44l1/crop-disease-api/internal/pipeline"
)

var errPredictionFailed = errors.New("prediction failed")

func (a *app) predictCmd() *cobra.Command {
	var asJSON bool
	var top int
	cmd := &cobra.Command{
		Use:   "predict <image>",
		Short: "Classify a single JPEG or PNG leaf photo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, release := a.openPipeline()
			defer release()
			return predictFile(p, args[0], cmd.OutOrStdout(), asJSON, top)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full response as JSON")
	cmd.Flags().IntVar(&top, "top", 5, "number of ranked labels in the JSON output, 0 for all")
	return cmd
}

// predictFile prints the prediction for path. The fallback text is printed on failure too,
// followed by a non-nil error so the process exits non-zero.
func predictFile(p *pipeline.Pipeline, path string, w io.Writer, asJSON bool, top int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	outcome, err := p.RunReader(f)
	if err != nil {
		fmt.Fprintln(w, model.FailureText)
		return fmt.Errorf("%w: %v", errPredictionFailed, path)
	}

	if !asJSON {
		fmt.Fprintln(w, outcome.Result.Display())
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(outcome.Response(top))
}
