package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"nosh/log"
	"nosh/nutrition"
	"nosh/store"
)

func newGoalsCommand(flags *rootFlags) *cobra.Command {
	goalsCmd := &cobra.Command{
		Use:   "goals",
		Short: "View or set daily nutrition targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	goalsCmd.AddCommand(newGoalsGetCommand(flags))
	goalsCmd.AddCommand(newGoalsSetCommand(flags))
	return goalsCmd
}

func newGoalsGetCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Print the current targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(flags)
			if err != nil {
				return err
			}
			defer log.Close()

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			goals, err := st.Goals(cmd.Context(), cfg.Client.UserID)
			if errors.Is(err, store.ErrNotFound) {
				fmt.Fprintln(cmd.OutOrStdout(), "no goals set; use `nosh goals set`")
				return nil
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "calories  %.0f kcal\n", goals.Calories)
			fmt.Fprintf(out, "protein   %.0f g\n", goals.Protein)
			fmt.Fprintf(out, "carbs     %.0f g\n", goals.Carbs)
			fmt.Fprintf(out, "fat       %.0f g\n", goals.Fat)
			fmt.Fprintf(out, "fiber     %.0f g\n", goals.Fiber)
			return nil
		},
	}
}

func newGoalsSetCommand(flags *rootFlags) *cobra.Command {
	var goals nutrition.Goals
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Set daily targets",
		Example: "  nosh goals set --calories 2200 --protein 140 --carbs 220 --fat 70 --fiber 30\n" +
			"  nosh goals set 2200 140 220 70 30",
		Args: cobra.MaximumNArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields := []*float64{&goals.Calories, &goals.Protein, &goals.Carbs, &goals.Fat, &goals.Fiber}
			for i, arg := range args {
				v, err := strconv.ParseFloat(arg, 64)
				if err != nil {
					return fmt.Errorf("invalid value %q: %w", arg, err)
				}
				*fields[i] = v
			}
			for _, f := range fields {
				if *f < 0 {
					return errors.New("targets must be non-negative")
				}
			}

			cfg, err := setup(flags)
			if err != nil {
				return err
			}
			defer log.Close()

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.SetGoals(cmd.Context(), cfg.Client.UserID, goals); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "goals updated")
			return nil
		},
	}
	setCmd.Flags().Float64Var(&goals.Calories, "calories", 0, "Daily calorie target (kcal)")
	setCmd.Flags().Float64Var(&goals.Protein, "protein", 0, "Daily protein target (g)")
	setCmd.Flags().Float64Var(&goals.Carbs, "carbs", 0, "Daily carbohydrate target (g)")
	setCmd.Flags().Float64Var(&goals.Fat, "fat", 0, "Daily fat target (g)")
	setCmd.Flags().Float64Var(&goals.Fiber, "fiber", 0, "Daily fiber target (g)")
	return setCmd
}
