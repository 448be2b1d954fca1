package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"nosh/log"
	"nosh/store"
)

// newImportCommand migrates meals from the local key-value store into the
// configured backend. It is a one-shot operation; rerunning it is a no-op.
func newImportCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Import meals from the local store into the configured backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(flags)
			if err != nil {
				return err
			}
			defer log.Close()

			if cfg.Storage.Backend == "local" {
				return errors.New("configured backend is already the local store; nothing to import")
			}

			src, err := store.OpenLocal(store.LocalOptions{Dir: cfg.Storage.LocalDir})
			if err != nil {
				return fmt.Errorf("open local store: %w", err)
			}
			defer src.Close()

			dst, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer dst.Close()

			err = store.Migrate(cmd.Context(), cfg.Client.UserID, src, dst, cfg.Storage.Backend)
			if errors.Is(err, store.ErrImportDone) {
				fmt.Fprintln(cmd.OutOrStdout(), "already imported; nothing to do")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported meals into %s backend\n", cfg.Storage.Backend)
			return nil
		},
	}
}
