package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"

	"restql/internal/config"
	"restql/internal/engine"
	"restql/internal/output"
	"restql/internal/serverapp"

	"github.com/spf13/cobra"
)

func newExecCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec <statement>",
		Short: "Run a statement against the API",
		Long: `Run a SELECT, INSERT, UPDATE or DELETE statement and print the result.

The statement may be given as one quoted argument or as several words.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := opts.payload(cmd.InOrStdin())
			if err != nil {
				return err
			}
			formatter, err := opts.formatter(cmd.OutOrStdout())
			if err != nil {
				return err
			}

			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ec, err := serverapp.BuildEngine(cfg, logger, nil)
			if err != nil {
				return err
			}
			defer func() { _ = ec.Client.Store.Close() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			result, err := engine.New(ec).Exec(ctx, strings.Join(args, " "), data)
			if err != nil {
				return err
			}
			return formatter.Print(result)
		},
	}
	addDataFlags(cmd, opts)
	return cmd
}

func newExplainCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explain <statement>",
		Short: "Show the compiled statement and the requests it would send",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := opts.payload(cmd.InOrStdin())
			if err != nil {
				return err
			}
			formatter, err := opts.formatter(cmd.OutOrStdout())
			if err != nil {
				return err
			}

			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ec, err := serverapp.BuildEngine(cfg, logger, nil)
			if err != nil {
				return err
			}
			defer func() { _ = ec.Client.Store.Close() }()

			plan, err := engine.New(ec).Explain(strings.Join(args, " "), data)
			if err != nil {
				return err
			}
			if formatter.Format != output.FormatTable {
				return formatter.Print(plan)
			}
			return printPlanTable(cmd, formatter, plan)
		},
	}
	addDataFlags(cmd, opts)
	return cmd
}

func printPlanTable(cmd *cobra.Command, formatter *output.Formatter, plan *engine.Plan) error {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "command: %s\n", plan.Command)
	if plan.SQL != "" {
		fmt.Fprintf(w, "sql:     %s\n", plan.SQL)
		if len(plan.Args) > 0 {
			fmt.Fprintf(w, "args:    %s\n", output.Cell(plan.Args))
		}
	}
	fmt.Fprintln(w)

	table := output.TableData{Title: "requests", Headers: []string{"method", "path", "body"}}
	for _, r := range plan.Requests {
		table.Rows = append(table.Rows, []string{r.Method, r.Path, output.Cell(r.Body)})
	}
	return formatter.PrintTable(table)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP query gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return serverapp.Run(cfg, Version)
		},
	}
}
