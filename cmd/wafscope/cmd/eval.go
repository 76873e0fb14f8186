package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/solatis/wafscope/internal/rules"
	"github.com/solatis/wafscope/internal/ruleset"
	"github.com/solatis/wafscope/internal/types"
)

var evalCmd = &cobra.Command{
	Use:   "eval <rules-file>",
	Short: "Evaluate a request against a rule set",
	Long: `Evaluate offers the request to every rule in priority order and prints the report.
With --steps the request is driven through a session one rule at a time.`,
	Args: cobra.ExactArgs(1),
	RunE: runEval,
}

func init() {
	rootCmd.AddCommand(evalCmd)
	evalCmd.Flags().String("request", "", "request file (JSON or YAML)")
	evalCmd.Flags().Bool("halt-on-terminal", false, "stop after the first matched terminal rule")
	evalCmd.Flags().Bool("steps", false, "print every session step and the final projection")
	_ = evalCmd.MarkFlagRequired("request")
}

// stepOutput is one line of --steps output.
type stepOutput struct {
	Step         rules.Step `json:"step"`
	ActiveLabels []string   `json:"activeLabels"`
}

func runEval(cmd *cobra.Command, args []string) error {
	requestFile, _ := cmd.Flags().GetString("request")
	halt, _ := cmd.Flags().GetBool("halt-on-terminal")
	steps, _ := cmd.Flags().GetBool("steps")

	decoded, err := ruleset.LoadFile(args[0])
	if err != nil {
		return err
	}
	for _, w := range decoded.Skipped {
		slog.Warn("skipped rule set entry", slog.Int("index", w.Index), slog.String("reason", w.Message))
	}
	req, err := ruleset.LoadRequest(requestFile)
	if err != nil {
		return err
	}

	engine, err := rules.NewEngine(rules.WithTracer(rules.LogTracer{Logger: slog.Default()}))
	if err != nil {
		return err
	}

	if steps {
		return runSteps(cmd.OutOrStdout(), engine, decoded.Rules, req)
	}

	report, err := engine.EvaluateAll(&req, decoded.Rules, rules.EvaluateOptions{HaltOnTerminal: halt})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), report)
}

// runSteps walks a session to the end, printing each step.
func runSteps(w io.Writer, engine *rules.Engine, ruleList []types.Rule, req types.Request) error {
	session, err := rules.NewSession(engine, ruleList)
	if err != nil {
		return err
	}

	step, err := session.Start(req)
	for err == nil {
		if err := printJSON(w, stepOutput{Step: step, ActiveLabels: session.ActiveLabels()}); err != nil {
			return err
		}
		step, err = session.StepForward()
	}
	if !errors.Is(err, types.ErrAtEnd) {
		return fmt.Errorf("session stopped: %w", err)
	}
	return printJSON(w, session.Projection())
}
