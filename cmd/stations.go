package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/stationsync/internal/formatter"
	"github.com/desertthunder/stationsync/internal/models"
	"github.com/desertthunder/stationsync/internal/shared"
)

// Fetch downloads each playlist URL, merges the stations and waits for the stream probes.
func (r *Runner) Fetch(ctx context.Context, cmd *cli.Command) error {
	urls := cmd.Args().Slice()
	if len(urls) == 0 {
		return fmt.Errorf("%w: at least one playlist url", shared.ErrMissingArgument)
	}

	a, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	before := len(a.collection.Collection().Stations)
	ids, err := a.downloads.EnqueuePlaylists(ctx, urls)
	if err != nil {
		r.logger.Error("some downloads were not submitted", "error", err)
	}
	r.logger.Info("waiting for downloads", "count", len(ids))
	a.wait()

	after := a.collection.Collection()
	return r.writePlain("✓ %d download(s) processed, %d new station(s), %d total\n",
		len(ids), len(after.Stations)-before, len(after.Stations))
}

// RefreshImages downloads the remote image of every station.
func (r *Runner) RefreshImages(ctx context.Context, cmd *cli.Command) error {
	a, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.downloads.RefreshAllImages(ctx); err != nil {
		return err
	}
	a.wait()
	return r.writePlain("✓ Station images updated\n")
}

// RefreshStationImage downloads the remote image of the station named by its uuid.
func (r *Runner) RefreshStationImage(ctx context.Context, cmd *cli.Command) error {
	uuid := cmd.StringArg("uuid")
	if uuid == "" {
		return fmt.Errorf("%w: station uuid", shared.ErrMissingArgument)
	}

	a, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	c := a.collection.Collection()
	idx := c.IndexOf(models.ByUUID(uuid))
	if idx < 0 {
		return fmt.Errorf("%w: %s", shared.ErrStationNotFound, uuid)
	}
	station := c.Stations[idx]
	if station.RemoteImageLocation == "" {
		return r.writePlain("%s has no remote image\n", station.Name)
	}

	if err := a.downloads.RefreshStationImage(ctx, station); err != nil {
		return err
	}
	a.wait()
	return r.writePlain("✓ Image of %s updated\n", station.Name)
}

// CleanImages removes references to the built-in default image.
func (r *Runner) CleanImages(ctx context.Context, cmd *cli.Command) error {
	a, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if _, err := a.collection.RemoveDefaultImageReferences(ctx); err != nil {
		return err
	}
	return r.writePlain("✓ Default image references removed\n")
}

// Stations prints the collection.
func (r *Runner) Stations(ctx context.Context, cmd *cli.Command) error {
	a, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	c := a.collection.Collection()
	if cmd.Bool("json") {
		return r.writeJSON(c, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("Stations (%d)", len(c.Stations)))
	for _, station := range c.Stations {
		status := "✓"
		if !station.IsValid() {
			status = "✗"
		}
		r.writePlain("%s %s\n", status, station.Name)
		r.writePlain("  uuid:    %s\n", station.UUID)
		if uri := station.StreamURI(); uri != "" {
			r.writePlain("  stream:  %s (%s)\n", uri, station.StreamContent)
		}
		if station.RemoteStationLocation != "" {
			r.writePlain("  origin:  %s\n", station.RemoteStationLocation)
		}
	}
	return nil
}

// Export writes the collection to the path argument.
func (r *Runner) Export(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("path")
	if path == "" {
		return fmt.Errorf("%w: output path", shared.ErrMissingArgument)
	}

	a, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	format := cmd.String("format")
	if err := formatter.WriteExport(a.collection.Collection(), path, format); err != nil {
		return err
	}
	if format == "" {
		format = formatter.FormatFromPath(path)
	}
	return r.writePlain("✓ Exported %s to %s\n", strings.ToUpper(format), path)
}

// History prints recent download records.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	a, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	var records []models.DownloadRecord
	if origin := cmd.String("origin"); origin != "" {
		records, err = a.history.ByOrigin(origin)
	} else {
		records, err = a.history.Recent(int(cmd.Int("limit")))
	}
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(records, true)
	}
	if len(records) == 0 {
		return r.writePlain("No downloads recorded\n")
	}
	for _, rec := range records {
		line := fmt.Sprintf("%s  #%d  %-9s %s", rec.FinishedAt.Local().Format(time.DateTime), rec.DownloadID, rec.Outcome, rec.OriginURL)
		if rec.Outcome == models.OutcomeFailed {
			line += fmt.Sprintf(" (reason %d)", rec.Reason)
		} else if rec.ContentType != "" {
			line += fmt.Sprintf(" [%s]", rec.ContentType)
		}
		r.writePlain("%s\n", line)
	}
	return nil
}
