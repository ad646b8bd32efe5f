// Command eql is the EQL engine's CLI: a cobra-based replacement for the
// teacher's flag-based cmd/datalog/main.go, carrying the same
// verbose/interactive/single-run shape across three subcommands (repl, run,
// explain) since EQL has no textual query syntax to parse from a script
// file — queries are built against the Go API, so the CLI drives a
// registry of named, host-embedded scenarios instead of a `-query` string.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	verboseCount int
	noColor      bool
	logger       *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "eql",
	Short: "EQL — an in-memory entity query language engine",
	Long: `eql drives the EQL engine's built-in scenarios: query construction,
evaluation and result rendering over the host's registered entities.

Run without a subcommand to start the interactive REPL.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor {
			color.NoColor = true
		}
		cfg := zap.NewProductionConfig()
		switch {
		case verboseCount >= 2:
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		case verboseCount == 1:
			cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		default:
			cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		}
		cfg.Encoding = "console"
		cfg.EncoderConfig.TimeKey = ""
		cfg.EncoderConfig.CallerKey = ""
		l, err := cfg.Build()
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runREPL()
	},
}

var runCmd = &cobra.Command{
	Use:   "run <scenario>",
	Short: "Build, evaluate and print one scenario's results as a table",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		list, _ := cmd.Flags().GetBool("list")
		if list || len(args) == 0 {
			printScenarios()
			return nil
		}
		d, err := findDemo(args[0])
		if err != nil {
			return err
		}
		logger.Info("running scenario", zap.String("name", d.name))
		q, err := d.run(seedRegistry())
		if err != nil {
			return err
		}
		table, err := q.Table()
		if err != nil {
			return err
		}
		fmt.Println(table)
		return nil
	},
}

var explainCmd = &cobra.Command{
	Use:   "explain <scenario>",
	Short: "Build and evaluate one scenario with tracing, printing its event log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := findDemo(args[0])
		if err != nil {
			return err
		}
		q, err := d.run(seedRegistry())
		if err != nil {
			return err
		}
		q.EnableTrace()
		if _, err := q.ToList(); err != nil {
			return err
		}
		fmt.Println(q.Explain())
		return nil
	},
}

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactively pick and run scenarios",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runREPL()
	},
}

func printScenarios() {
	fmt.Println("available scenarios:")
	for _, d := range demos {
		fmt.Printf("  %-20s %s\n", d.name, d.desc)
	}
}

func runREPL() error {
	fmt.Println("eql repl — type a scenario name, `list`, or `quit`")
	scanner := bufio.NewScanner(os.Stdin)
	registry := seedRegistry()
	for {
		fmt.Print("eql> ")
		if !scanner.Scan() {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "quit", "exit":
			return nil
		case "list":
			printScenarios()
			continue
		}
		d, err := findDemo(line)
		if err != nil {
			fmt.Println(err)
			continue
		}
		q, err := d.run(registry)
		if err != nil {
			fmt.Println(err)
			continue
		}
		table, err := q.Table()
		if err != nil {
			fmt.Println(err)
			continue
		}
		fmt.Println(table)
	}
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verboseCount, "verbose", "v", "increase log verbosity (-v, -vv)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored trace output")
	runCmd.Flags().Bool("list", false, "list available scenarios")

	rootCmd.AddCommand(runCmd, explainCmd, replCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
