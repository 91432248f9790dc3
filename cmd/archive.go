package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/stationsync/internal/archive"
	"github.com/desertthunder/stationsync/internal/shared"
)

// Backup writes the station store to a zip file.
func (r *Runner) Backup(ctx context.Context, cmd *cli.Command) error {
	dest := cmd.StringArg("dest")
	if dest == "" {
		return fmt.Errorf("%w: destination archive", shared.ErrMissingArgument)
	}

	svc := archive.New(r.logger, nil)
	if err := svc.BackupFile(ctx, r.config.Storage.Root, dest); err != nil {
		return err
	}
	return r.writePlain("✓ Backup written to %s\n", dest)
}

// Restore extracts a zip file into the station store and reloads the collection.
func (r *Runner) Restore(ctx context.Context, cmd *cli.Command) error {
	src := cmd.StringArg("src")
	if src == "" {
		return fmt.Errorf("%w: source archive", shared.ErrMissingArgument)
	}

	a, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.archive.RestoreFile(ctx, src, r.config.Storage.Root)
	if err != nil {
		return err
	}

	r.writePlain("✓ Restored %d file(s), %d folder(s)\n", result.Files, result.Dirs)
	for _, v := range result.Rejected {
		r.writePlain("✗ rejected %s\n", v.Name)
	}
	for _, err := range result.Failed {
		r.writePlain("✗ %v\n", err)
	}
	return r.writePlain("Stations in collection: %d\n", len(a.collection.Collection().Stations))
}
