package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nosh/audio"
)

// newDevicesCommand opens the interactive device picker and prints the
// config line for the chosen microphone.
func newDevicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "Pick a capture device and print its config entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			actx, err := audio.NewContext()
			if err != nil {
				return err
			}
			defer actx.Close()

			device, err := audio.SelectDevice(actx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nAdd to the [client] section of your config:\n\n  device_name = %q\n", device.Name)
			return nil
		},
	}
}
