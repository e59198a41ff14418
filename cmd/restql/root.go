package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"restql/internal/config"
	"restql/internal/logging"
	"restql/internal/output"
	"restql/internal/serverapp"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

type rootOptions struct {
	outputFmt string
	noHeaders bool
	data      string
	dataFile  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "restql",
		Short: "Query REST APIs with SQL-like statements",
		Long: `restql runs SELECT, INSERT, UPDATE and DELETE statements against a REST API.

Examples:
  restql exec --api.url https://api.example.com "SELECT name FROM users WHERE id = 1"
  restql explain "SELECT users.name, title FROM users JOIN posts ON users.id = posts.userId"
  restql serve --server.port 8080`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	config.DefineFlags(flags)
	flags.StringVarP(&opts.outputFmt, "output", "o", "", "output format: table, json, yaml (default table on a terminal, json otherwise)")
	flags.BoolVar(&opts.noHeaders, "no-headers", false, "hide table headers")

	root.AddCommand(
		newExecCmd(opts),
		newExplainCmd(opts),
		newServeCmd(),
		newTokenCmd(),
		newVersionCmd(),
	)
	return root
}

// loadConfig reads configuration using the command's parsed flags and
// builds a logger that writes to stderr so results stay clean on stdout.
func loadConfig(cmd *cobra.Command) (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := logging.NewLogger(logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
		Output: cmd.ErrOrStderr(),
	})
	if err := serverapp.ReportValidation(cfg, logger.Logger); err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func (o *rootOptions) formatter(w io.Writer) (*output.Formatter, error) {
	format, err := output.ParseFormat(o.outputFmt)
	if err != nil {
		return nil, err
	}
	return output.NewFormatter(format, o.noHeaders, w), nil
}

// payload decodes --data or --data-file ("-" reads stdin). It returns nil
// when neither is set.
func (o *rootOptions) payload(stdin io.Reader) (any, error) {
	if o.data != "" && o.dataFile != "" {
		return nil, fmt.Errorf("--data and --data-file are mutually exclusive")
	}

	raw := []byte(o.data)
	switch o.dataFile {
	case "":
	case "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read data from stdin: %w", err)
		}
		raw = b
	default:
		b, err := os.ReadFile(o.dataFile)
		if err != nil {
			return nil, fmt.Errorf("read data file: %w", err)
		}
		raw = b
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, nil
	}

	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("data must be JSON: %w", err)
	}
	return data, nil
}

func addDataFlags(cmd *cobra.Command, opts *rootOptions) {
	cmd.Flags().StringVarP(&opts.data, "data", "d", "", "JSON payload for INSERT and UPDATE")
	cmd.Flags().StringVar(&opts.dataFile, "data-file", "", "file holding the JSON payload (- for stdin)")
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "restql %s (%s)\n", Version, Commit)
		},
	}
}
