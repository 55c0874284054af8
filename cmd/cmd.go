// submodule cmd contains command definitions
package main

import (
	"strings"

	"github.com/desertthunder/portalsync/internal/formatter"
	"github.com/desertthunder/portalsync/internal/models"
	"github.com/urfave/cli/v3"
)

func formatFlag() cli.Flag {
	names := make([]string, len(formatter.Formats))
	for i, f := range formatter.Formats {
		names[i] = string(f)
	}
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format (" + strings.Join(names, ", ") + ")",
		Value:   string(formatter.FormatTable),
	}
}

func courseFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "course",
		Usage: "Course code; omit for every course of the current semester",
	}
}

func directoryFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "dir",
		Aliases: []string{"directory"},
		Usage:   "Document directory id within --course",
	}
}

// setupCommand handles config and database initialization.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write an example config.toml",
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize the run journal and apply migrations",
				Action: r.SetupDatabase,
			},
		},
	}
}

// sessionCommand manages the imported portal session.
func sessionCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "session",
		Usage: "Manage the portal session",
		Commands: []*cli.Command{
			{
				Name:  "import",
				Usage: "Import a session from a browser request (DevTools → Copy as cURL)",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "curl",
						Usage: "cURL command copied from the browser",
					},
					&cli.StringFlag{
						Name:  "curl-file",
						Usage: "Path to a .sh file containing the cURL command",
					},
				},
				Action: r.SessionImport,
			},
			{
				Name:   "status",
				Usage:  "Check whether the portal still accepts the session",
				Action: r.SessionStatus,
			},
			{
				Name:  "login",
				Usage: "Open the portal login page in the browser",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "print",
						Usage: "Only print the login URL",
					},
				},
				Action: r.SessionLogin,
			},
		},
	}
}

func homeworkCommand(r *Runner) *cli.Command {
	return resourceCommand(r, models.KindHomework, "hw", "Homework of the current semester", nil)
}

func documentsCommand(r *Runner) *cli.Command {
	return resourceCommand(r, models.KindDocuments, "docs", "Course documents of the current semester", []cli.Flag{directoryFlag()})
}

// resourceCommand builds the get/refresh/stream subcommands shared by homework and documents.
func resourceCommand(r *Runner, kind models.Kind, alias, usage string, extra []cli.Flag) *cli.Command {
	flags := func(more ...cli.Flag) []cli.Flag {
		out := []cli.Flag{courseFlag(), formatFlag()}
		out = append(out, extra...)
		return append(out, more...)
	}

	return &cli.Command{
		Name:    string(kind),
		Aliases: []string{alias},
		Usage:   usage,
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Return cached data when present, otherwise fetch",
				Flags: flags(&cli.BoolFlag{
					Name:  "skip-cache",
					Usage: "Fetch even when cached data exists",
				}),
				Action: r.syncAction(kind, opGet),
			},
			{
				Name:   "refresh",
				Usage:  "Discard cached data and fetch with progress",
				Flags:  flags(),
				Action: r.syncAction(kind, opRefresh),
			},
			{
				Name:   "stream",
				Usage:  "Show cached data, then merge live results as they arrive",
				Flags:  flags(),
				Action: r.syncAction(kind, opStream),
			},
		},
	}
}

// watchCommand launches the terminal watch view.
func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "watch",
		Aliases: []string{"ui"},
		Usage:   "Follow homework or documents in an interactive view",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "kind", Value: string(models.KindHomework)},
		},
		Flags:  []cli.Flag{courseFlag(), directoryFlag()},
		Action: r.Watch,
	}
}

// serveCommand runs the WebSocket bridge.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the sync engine over WebSocket for UI clients",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address; defaults to server.host:server.port",
			},
		},
		Action: r.Serve,
	}
}

// historyCommand lists the run journal.
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recorded sync runs",
		Flags: []cli.Flag{
			formatFlag(),
			&cli.StringFlag{Name: "kind", Usage: "Only runs of this kind"},
			&cli.StringFlag{Name: "status", Usage: "Only runs with this status (success, error, superseded)"},
			&cli.IntFlag{Name: "limit", Usage: "Maximum number of runs", Value: 20},
			&cli.DurationFlag{Name: "prune", Usage: "Delete runs older than this before listing (e.g. 720h)"},
		},
		Action: r.History,
	}
}
