// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// setupCommand initializes config, database and station store folders
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Initialize config, database and station store",
		Action: r.Setup,
	}
}

// fetchCommand downloads playlists and merges them into the collection
func fetchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Aliases:   []string{"add"},
		Usage:     "Download playlist files and add or update their stations",
		ArgsUsage: "<url> [url...]",
		Action:    r.Fetch,
	}
}

// imagesCommand refreshes station images
func imagesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "images",
		Usage: "Station image operations",
		Commands: []*cli.Command{
			{
				Name:   "refresh",
				Usage:  "Download the remote image of every station",
				Action: r.RefreshImages,
			},
			{
				Name:  "set",
				Usage: "Download the remote image of one station",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "uuid",
					},
				},
				Action: r.RefreshStationImage,
			},
			{
				Name:   "clean",
				Usage:  "Remove references to the built-in default image",
				Action: r.CleanImages,
			},
		},
	}
}

// stationsCommand lists the collection
func stationsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "stations",
		Aliases: []string{"ls"},
		Usage:   "List stations in the collection",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print output",
				Value: true,
			},
		},
		Action: r.Stations,
	}
}

// exportCommand writes the collection as a playlist or CSV
func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export the collection to M3U, PLS, CSV or text",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "path",
			},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Export format (m3u, pls, csv, txt); guessed from the file extension when empty",
			},
		},
		Action: r.Export,
	}
}

// historyCommand shows finished downloads
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recent downloads and how they were handled",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of records to show",
				Value: 20,
			},
			&cli.StringFlag{
				Name:  "origin",
				Usage: "Only show downloads of this URL",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.History,
	}
}

// backupCommand archives the station store
func backupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Write the station store to a zip archive",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "dest",
			},
		},
		Action: r.Backup,
	}
}

// restoreCommand extracts an archive into the station store
func restoreCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "restore",
		Usage: "Restore the station store from a zip archive",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "src",
			},
		},
		Action: r.Restore,
	}
}

// serveCommand runs the HTTP daemon
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address; defaults to server.host:server.port from the config",
			},
		},
		Action: r.Serve,
	}
}
