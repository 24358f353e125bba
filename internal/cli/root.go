// Package cli wires configuration, the model and the pipeline into the cropdd commands.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cyclopcam/logs"
	"github.com/spf13/cobra"

	"github.com/Brownie44l1/crop-disease-api/internal/config"
	"github.com/Brownie44l1/crop-disease-api/internal/inference"
	"github.com/Brownie44l1/crop-disease-api/internal/model"
	"github.com/Brownie44l1/crop-disease-api/internal/pipeline"
)

// Version is the application version.
const Version = "0.1.0"

type app struct {
	cfg *config.Config
	log logs.Log

	// Flag values. They only override the environment when set explicitly.
	modelPath    string
	metadataPath string
	labelsPath   string
	backend      string
	threads      int
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{})
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "cropdd",
		Short:         "Crop leaf disease classifier",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				a.log.Close()
			}
		},
	}
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	pf := root.PersistentFlags()
	pf.StringVar(&a.modelPath, "model", "", "model file (default $MODEL_PATH)")
	pf.StringVar(&a.metadataPath, "metadata", "", "model metadata JSON (default $METADATA_PATH)")
	pf.StringVar(&a.labelsPath, "labels", "", "class file, one label per line (default $LABELS_PATH)")
	pf.StringVar(&a.backend, "backend", "", "inference backend: onnx or tflite (default $MODEL_BACKEND)")
	pf.IntVar(&a.threads, "threads", 0, "interpreter threads, 0 lets the runtime decide (default $MODEL_THREADS)")

	root.AddCommand(
		a.serveCmd(),
		a.predictCmd(),
		a.batchCmd(),
		a.botCmd(),
	)
	return root
}

// Execute runs the command line with args and exits non-zero on failure.
func Execute(args []string) {
	// Ctrl+C and SIGTERM cancel the command context.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("model") {
		cfg.ModelPath = a.modelPath
	}
	if flags.Changed("metadata") {
		cfg.MetadataPath = a.metadataPath
	}
	if flags.Changed("labels") {
		cfg.LabelsPath = a.labelsPath
	}
	if flags.Changed("backend") {
		cfg.Backend = a.backend
	}
	if flags.Changed("threads") {
		cfg.Threads = a.threads
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	if a.log == nil {
		if a.log, err = logs.NewLog(); err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
	}
	return nil
}

// openPipeline loads the model and builds the pipeline around it. A model that fails to load is
// reported here once, and the pipeline then answers every request with the fallback text.
// The returned func releases the model.
func (a *app) openPipeline() (*pipeline.Pipeline, func()) {
	var handle *inference.Handle
	lc, md, err := a.cfg.LoadConfig()
	if err == nil {
		a.log.Infof("Loading %v model from %v", lc.Backend, lc.ModelPath)
		handle, err = inference.Load(lc, a.log)
	}
	if err != nil {
		a.log.Errorf("Failed to load model: %v", err)
	}

	labels, err := model.ResolveLabels(a.cfg.LabelsPath, md)
	if err != nil {
		a.log.Errorf("Failed to load labels, using the built-in table: %v", err)
		labels = model.DefaultLabels
	}

	p := pipeline.New(handle, labels, a.log)
	return p, func() {
		if handle != nil {
			handle.Close()
		}
	}
}
