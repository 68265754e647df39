package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/clamsproject/spoken-lid/cmd/lid/config"
	"github.com/clamsproject/spoken-lid/cmd/lid/metadata"
	"github.com/clamsproject/spoken-lid/cmd/lid/mmif"
	"github.com/clamsproject/spoken-lid/cmd/lid/output"
	"github.com/clamsproject/spoken-lid/cmd/lid/pipeline"
	"github.com/clamsproject/spoken-lid/cmd/lid/server"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type cli struct {
	v   *viper.Viper
	cfg config.LIDConfig
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:           "lid",
		Short:         "Spoken language identification for MMIF documents",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			path, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			if path == "" {
				path = os.Getenv("LID_CONFIG")
			}
			cfg, err := c.loadConfig(path)
			if err != nil {
				return err
			}
			c.cfg = cfg
			setupLogger(cfg.LogLevel)
			slog.Debug("config loaded", slog.String("backend", string(cfg.Backend)))
			return nil
		},
	}

	f := root.PersistentFlags()
	f.String("config", "", "config file (yaml, json or toml)")
	f.String("backend", "", "classifier backend: whisper.cpp, voxlingua, ambernet, azure or remote")
	f.String("model-size", "", "whisper model size: tiny, base, small, medium, large or turbo")
	f.String("device", "", "inference device: cpu, gpu or auto")
	f.String("models-dir", "", "directory holding the model files")
	f.Int("num-threads", 0, "number of inference threads")
	f.String("python-path", "", "python interpreter used by the ambernet backend")
	f.String("remote-url", "", "endpoint of the remote backend")
	f.String("azure-speech-key", "", "Azure speech key")
	f.String("azure-speech-region", "", "Azure speech region")
	f.String("azure-languages", "", "comma separated Azure candidate locales")
	f.Float64("chunk", 0, "window length in seconds")
	f.Int("top", 0, "number of scores kept per window")
	f.Float64("fallback-probability", 0, "probability assigned to label-only results")
	f.Int("min-window-ms", 0, "windows shorter than this are dropped")
	f.Bool("vad", false, "skip windows without speech")
	f.Float64("vad-threshold", 0, "speech probability threshold")
	f.String("scores-property", "", "annotation property for scores: classification or scores")
	f.String("log-level", "", "log level: debug, info, warn or error")

	f.VisitAll(func(fl *pflag.Flag) {
		if fl.Name == "config" {
			return
		}
		if err := c.v.BindPFlag(flagKey(fl.Name), fl); err != nil {
			panic(err)
		}
	})

	root.AddCommand(
		c.annotateCmd(),
		c.fileCmd(),
		c.serveCmd(),
		c.metadataCmd(),
	)

	return root
}

func flagKey(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// configKeys returns every key the config understands.
func configKeys() []string {
	var cfg config.LIDConfig
	cfg.SetDefaults()
	keys := make([]string, 0, len(cfg.ToMap())+1)
	for k := range cfg.ToMap() {
		keys = append(keys, k)
	}
	// Alias of chunk, only read from config files.
	return append(keys, "window")
}

// loadConfig merges environment, config file and flags, in this order.
func (c *cli) loadConfig(path string) (config.LIDConfig, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return cfg, fmt.Errorf("failed to load config from env: %w", err)
	}

	if path != "" {
		c.v.SetConfigFile(path)
		if err := c.v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	settings := make(map[string]any)
	for _, key := range configKeys() {
		if c.v.IsSet(key) {
			settings[key] = c.v.Get(key)
		}
	}
	cfg.FromMap(settings)
	cfg.SetDefaults()

	if err := cfg.IsValid(); err != nil {
		return cfg, fmt.Errorf("failed to validate config: %w", err)
	}

	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// newPipeline loads the configured classifier and gate. The returned func
// releases them.
func (c *cli) newPipeline() (*pipeline.Pipeline, func(), error) {
	classifier, err := pipeline.NewClassifier(c.cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create classifier: %w", err)
	}

	gate, releaseGate, err := pipeline.NewGate(c.cfg)
	if err != nil {
		if err := classifier.Destroy(); err != nil {
			slog.Error("failed to destroy classifier", slog.String("err", err.Error()))
		}
		return nil, nil, fmt.Errorf("failed to create gate: %w", err)
	}

	release := func() {
		if err := classifier.Destroy(); err != nil {
			slog.Error("failed to destroy classifier", slog.String("err", err.Error()))
		}
		releaseGate()
	}

	p, err := pipeline.New(c.cfg, classifier, gate)
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	return p, release, nil
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

func createOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopWriteCloser{os.Stdout}, nil
	}
	return os.Create(path)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

func (c *cli) annotateCmd() *cobra.Command {
	var pretty bool

	cmd := &cobra.Command{
		Use:   "annotate [IN [OUT]]",
		Short: "Annotate an MMIF file",
		Long: `Annotate every audio and video document of an MMIF file with the
languages spoken in it.

IN and OUT default to stdin and stdout. "-" can be used for either.
If a document fails mid way, the partial output is still written and the
command exits with an error.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var inPath, outPath string
			if len(args) > 0 {
				inPath = args[0]
			}
			if len(args) > 1 {
				outPath = args[1]
			}

			in, err := openInput(inPath)
			if err != nil {
				return fmt.Errorf("failed to open input: %w", err)
			}
			m, err := mmif.Read(in)
			in.Close()
			if err != nil {
				return err
			}

			p, release, err := c.newPipeline()
			if err != nil {
				return err
			}
			defer release()

			ctx, cancel := signalContext()
			defer cancel()

			m, runErr := p.Run(ctx, m)

			out, err := createOutput(outPath)
			if err != nil {
				return fmt.Errorf("failed to create output: %w", err)
			}
			defer out.Close()
			if err := m.Write(out, pretty); err != nil {
				return err
			}

			return runErr
		},
	}

	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent the output")

	return cmd
}

// sourceMmif wraps media files into an MMIF with one document each.
func sourceMmif(paths []string) (*mmif.Mmif, error) {
	m := mmif.New()
	for i, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve path: %w", err)
		}
		m.Documents = append(m.Documents, &mmif.Document{
			Type: mmif.AudioDocument,
			Properties: map[string]any{
				"id":       fmt.Sprintf("d%d", i+1),
				"location": "file://" + abs,
			},
		})
	}
	return m, nil
}

func (c *cli) fileCmd() *cobra.Command {
	var format string
	var outPath string

	cmd := &cobra.Command{
		Use:   "file AUDIO...",
		Short: "Annotate media files",
		Long: `Annotate media files directly and print the detected languages.

Supported formats are vtt, text, csv and mmif.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := config.OutputFormat(format)
			if format == "" {
				f = c.cfg.OutputFormat
			}
			if !f.IsValid() {
				return fmt.Errorf("invalid output format %q", format)
			}

			p, release, err := c.newPipeline()
			if err != nil {
				return err
			}
			defer release()

			ctx, cancel := signalContext()
			defer cancel()

			out, err := createOutput(outPath)
			if err != nil {
				return fmt.Errorf("failed to create output: %w", err)
			}
			defer out.Close()

			if f == config.OutputFormatMMIF {
				m, err := sourceMmif(args)
				if err != nil {
					return err
				}
				m, runErr := p.Run(ctx, m)
				if err := m.Write(out, true); err != nil {
					return err
				}
				return runErr
			}

			var labels output.Labels
			var runErr error
			for _, path := range args {
				l, err := p.RunFile(ctx, path)
				if err != nil {
					slog.Error("failed to annotate file", slog.String("path", path), slog.String("err", err.Error()))
					runErr = err
					if ctx.Err() != nil {
						break
					}
				}
				labels = append(labels, l)
			}

			if err := writeLabels(out, labels, f, c.cfg.OutputOptions); err != nil {
				return err
			}

			return runErr
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "output format: vtt, text, csv or mmif")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "output file, defaults to stdout")

	return cmd
}

func writeLabels(w io.Writer, labels output.Labels, f config.OutputFormat, opts config.OutputOptions) error {
	switch f {
	case config.OutputFormatVTT:
		return labels.WebVTT(w, opts.WebVTT)
	case config.OutputFormatText:
		return labels.Text(w, opts.Text)
	case config.OutputFormatCSV:
		return labels.CSV(w)
	default:
		return fmt.Errorf("unsupported output format %q", f)
	}
}

func (c *cli) serveCmd() *cobra.Command {
	var port int
	var production bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Long: `Run the HTTP service.

GET / returns the app metadata. POST or PUT / with an MMIF body returns
the annotated MMIF. Query parameters override the configuration for a
single request.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := server.NewService(c.cfg, nil, nil, production)
			if err != nil {
				return fmt.Errorf("failed to create service: %w", err)
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- s.ListenAndServe(fmt.Sprintf(":%d", port))
			}()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				if stopErr := s.Stop(); stopErr != nil {
					slog.Error("failed to stop service", slog.String("err", stopErr.Error()))
				}
				return err
			case <-sig:
				slog.Info("received SIGTERM, stopping service")
			}

			if err := s.Stop(); err != nil {
				return fmt.Errorf("failed to stop service: %w", err)
			}

			slog.Info("service has stopped, exiting")

			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 5000, "port to listen on")
	cmd.Flags().BoolVar(&production, "production", false, "run gin in release mode")

	return cmd
}

func (c *cli) metadataCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metadata",
		Short: "Print the app metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return metadata.New(c.cfg).Write(cmd.OutOrStdout())
		},
	}
}
