package store

import (
	"context"
	"fmt"

	"nosh/log"
)

// Migrate runs the one-shot bulk import of the local cache into dst. The
// local import marker gates it: a second call is a no-op returning
// ErrImportDone. The marker is written only after the import commits, so
// a failed run can be retried.
func Migrate(ctx context.Context, user string, from *Local, to Store, dest string) error {
	if prev, done, err := from.ImportMarker(ctx, user); err != nil {
		return fmt.Errorf("read import marker: %w", err)
	} else if done {
		log.Info(fmt.Sprintf("local data already imported to %s", prev))
		return ErrImportDone
	}

	snap, err := from.Snapshot(ctx, user)
	if err != nil {
		return fmt.Errorf("snapshot local store: %w", err)
	}
	if err := to.ImportSnapshot(ctx, user, snap); err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}
	if err := from.SetImportMarker(ctx, user, dest); err != nil {
		return fmt.Errorf("set import marker: %w", err)
	}
	log.Info(fmt.Sprintf("imported %d meals, %d items to %s",
		len(snap.Meals), len(snap.Items), dest))
	return nil
}
