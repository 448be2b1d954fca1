package main

import (
	"errors"

	"github.com/spf13/cobra"

	"nosh/config"
	"nosh/doctor"
)

func newDoctorCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run interactive environment diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, resolved, _, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			if doctor.Run(cfg, resolved) != 0 {
				return errors.New("diagnostics failed")
			}
			return nil
		},
	}
}
