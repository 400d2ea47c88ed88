// Command lmisdp prepares and solves semidefinite programs described in
// YAML problem files.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/njchilds90/lmisdp"
	"github.com/njchilds90/lmisdp/config"
	"github.com/njchilds90/lmisdp/solver"
)

const (
	Version = "0.1.0"
	appName = "lmisdp"
)

func main() {
	defer glog.Flush()
	if err := rootCmd().Execute(); err != nil {
		glog.Errorf("%v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Symbolic LMI to SDP array preparation",
		Long: `lmisdp reads a YAML problem (objective, direction, matrix constraints)
and turns it into the numeric arrays semidefinite-programming solvers
consume: per-variable coefficient matrices, constant matrices, the
objective vector, and cvxopt's (c, Gs, hs) layout.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// glog reads its flags from the standard flag set.
			return flag.CommandLine.Parse(nil)
		},
	}
	cmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	cmd.PersistentFlags().StringVarP(&format, "format", "o", "json", "Output format (json, yaml)")

	cmd.AddCommand(
		prepareCmd(&format),
		objectiveCmd(&format),
		splitCmd(&format),
		varsCmd(&format),
		arraysCmd(&format),
		solveCmd(&format),
		initCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
			},
		},
	)
	return cmd
}

func loadModel(path string) (*config.Model, error) {
	p, err := config.LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	m, err := p.Build()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	glog.V(1).Infof("loaded %s: %d constraints over %v", path, len(m.Constraints), lmisdp.SymNames(m.Vars))
	return m, nil
}

func write(w io.Writer, format string, v interface{}) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	}
	return fmt.Errorf("unknown format %q", format)
}

func prepareCmd(format *string) *cobra.Command {
	var split bool
	cmd := &cobra.Command{
		Use:   "prepare <problem.yaml>",
		Short: "Print per-block coefficient and constant matrices",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadModel(args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("split") {
				m.Problem.SplitDiagBlocks = split
			}
			prepared, err := m.Prepare()
			if err != nil {
				return err
			}
			return write(cmd.OutOrStdout(), *format, map[string]interface{}{
				"vars":   lmisdp.SymNames(m.Vars),
				"blocks": lmisdp.PreparedToJSON(prepared),
			})
		},
	}
	cmd.Flags().BoolVar(&split, "split", false, "Split constraints into diagonal blocks (overrides the problem file)")
	return cmd
}

func objectiveCmd(format *string) *cobra.Command {
	return &cobra.Command{
		Use:   "objective <problem.yaml>",
		Short: "Print the objective vector in minimization form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadModel(args[0])
			if err != nil {
				return err
			}
			c, err := m.PrepareObjective()
			if err != nil {
				return err
			}
			return write(cmd.OutOrStdout(), *format, map[string]interface{}{
				"vars":      lmisdp.SymNames(m.Vars),
				"direction": m.Direction.String(),
				"c":         c,
			})
		},
	}
}

func splitCmd(format *string) *cobra.Command {
	return &cobra.Command{
		Use:   "split <problem.yaml>",
		Short: "Print the diagonal blocks of every constraint's greater side",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadModel(args[0])
			if err != nil {
				return err
			}
			out := make([]map[string]interface{}, len(m.Constraints))
			for i, lmi := range m.Constraints {
				gts := lmi.GreaterSide()
				bounds, err := lmisdp.DiagBlockIndexes(gts)
				if err != nil {
					return fmt.Errorf("constraint %d: %w", i, err)
				}
				blocks, err := lmisdp.SplitByDiagBlocks(gts)
				if err != nil {
					return fmt.Errorf("constraint %d: %w", i, err)
				}
				strs := make([]string, len(blocks))
				for k, b := range blocks {
					strs[k] = b.String()
				}
				out[i] = map[string]interface{}{
					"name":         m.Names[i],
					"greater_side": gts.String(),
					"bounds":       bounds,
					"blocks":       strs,
				}
			}
			return write(cmd.OutOrStdout(), *format, out)
		},
	}
}

func varsCmd(format *string) *cobra.Command {
	return &cobra.Command{
		Use:   "vars <problem.yaml>",
		Short: "Print the problem's variables in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadModel(args[0])
			if err != nil {
				return err
			}
			return write(cmd.OutOrStdout(), *format, lmisdp.SymNames(m.Vars))
		},
	}
}

// configureBackend applies the problem's solver settings to the
// registered cvxopt backend.
func configureBackend(m *config.Model) {
	sc := m.Problem.Solver
	if sc.Backend != solver.CVXOPTName || (sc.Python == "" && len(sc.Options) == 0) {
		return
	}
	b := solver.NewCVXOPT()
	if sc.Python != "" {
		b.Python = sc.Python
	}
	b.Options = sc.Options
	solver.Register(solver.CVXOPTName, b)
}

func withTimeout(m *config.Model) (context.Context, context.CancelFunc) {
	if t := m.Problem.Solver.Timeout; t > 0 {
		return context.WithTimeout(context.Background(), t)
	}
	return context.WithCancel(context.Background())
}

func arraysCmd(format *string) *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "arrays <problem.yaml>",
		Short: "Print cvxopt solvers.sdp arrays (c, Gs, hs)",
		Long: `Print cvxopt solvers.sdp arrays. Matrices are stored column-major.
With --format proto the output is the binary protobuf Struct encoding;
--format protojson prints its canonical JSON form.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadModel(args[0])
			if err != nil {
				return err
			}
			var a *solver.Arrays
			if check {
				configureBackend(m)
				ctx, cancel := withTimeout(m)
				defer cancel()
				a, err = solver.ToCVXOPT(ctx, m.Objective, m.Constraints, m.Vars, m.Direction, m.PrepareOptions()...)
			} else {
				a, err = solver.Layout(m.Objective, m.Constraints, m.Vars, m.Direction, m.PrepareOptions()...)
			}
			if err != nil {
				return err
			}
			switch *format {
			case "proto":
				b, err := a.MarshalProto()
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(b)
				return err
			case "protojson":
				b, err := a.MarshalProtoJSON()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
				return err
			}
			return write(cmd.OutOrStdout(), *format, a.Export())
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "Fail unless the cvxopt backend is available")
	return cmd
}

func solveCmd(format *string) *cobra.Command {
	var backend string
	cmd := &cobra.Command{
		Use:   "solve <problem.yaml>",
		Short: "Solve the problem with a registered SDP backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadModel(args[0])
			if err != nil {
				return err
			}
			if backend == "" {
				backend = m.Problem.Solver.Backend
			}
			configureBackend(m)
			ctx, cancel := withTimeout(m)
			defer cancel()
			a, err := solver.Layout(m.Objective, m.Constraints, m.Vars, m.Direction, m.PrepareOptions()...)
			if err != nil {
				return err
			}
			sol, err := solver.Solve(ctx, backend, a)
			if err != nil {
				return err
			}
			sol.Orient(m.Direction)
			glog.Infof("%s: %s after %d iterations", backend, sol.Status, sol.Iterations)
			return write(cmd.OutOrStdout(), *format, map[string]interface{}{
				"solution": sol,
				"values":   sol.Values(a.Vars),
			})
		},
	}
	cmd.Flags().StringVar(&backend, "backend", "", "Backend name (default from the problem file)")
	return cmd
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init <problem.yaml>",
		Short: "Write an example problem file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err == nil {
				return fmt.Errorf("%s already exists", args[0])
			}
			if err := config.ExampleProblem().SaveToFile(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
			return nil
		},
	}
}
