package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/tether/internal"
	"github.com/starford/tether/internal/apperr"
	"github.com/starford/tether/internal/companion"
	"github.com/starford/tether/internal/models"
	"github.com/starford/tether/internal/notify"
	pkgconfig "github.com/starford/tether/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadWithDefaults(cmd.String("config"), "", cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithReload(func() (*internal.Config, error) { return loadConfig(cmd) }),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunMCP(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("mcp run error: %w", err)
	}
	return nil
}

// printer shows notices on the terminal.
type printer struct {
	out io.Writer
}

func (p printer) Notify(level notify.Level, msg string) {
	if level == notify.LevelError {
		fmt.Fprintln(p.out, "error:", msg)
		return
	}
	fmt.Fprintln(p.out, msg)
}

// withRuntime opens the vault for a one-shot command. Logs go to stderr.
func withRuntime(cmd *cli.Command, fn func(rt *internal.Runtime) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := internal.NewLogger(os.Stderr, cfg.App.LogLevel)
	rt, err := internal.Open(cfg, logger, companion.WithNotifier(printer{out: cmd.Root().Writer}))
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}

func create(ctx context.Context, cmd *cli.Command) error {
	folder := strings.Trim(cmd.String("folder"), "/")
	paths := cmd.Args().Slice()
	if folder == "" && len(paths) == 0 {
		return errors.New("give source paths or --folder")
	}
	return withRuntime(cmd, func(rt *internal.Runtime) error {
		svc := rt.Companions
		if folder == "" && len(paths) == 1 {
			src, err := svc.Source(paths[0])
			if err != nil {
				return err
			}
			_, err = svc.CreateNote(ctx, src)
			if errors.Is(err, apperr.ErrAlreadyExists) {
				return nil
			}
			return err
		}

		var srcs []models.SourceFile
		if folder != "" {
			eligible, err := svc.EligibleSources(ctx, folder)
			if err != nil {
				return err
			}
			srcs = eligible
		}
		for _, p := range paths {
			src, err := svc.Source(p)
			if err != nil {
				fmt.Fprintln(cmd.Root().ErrWriter, "skip:", err)
				continue
			}
			srcs = append(srcs, src)
		}
		svc.CreateNotes(ctx, srcs)
		return nil
	})
}

func remove(ctx context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return errors.New("give source paths")
	}
	return withRuntime(cmd, func(rt *internal.Runtime) error {
		srcs := make([]models.SourceFile, 0, len(paths))
		for _, p := range paths {
			srcs = append(srcs, models.NewSourceFile(p))
		}
		if len(srcs) == 1 {
			err := rt.Companions.RemoveNote(ctx, srcs[0])
			if errors.Is(err, apperr.ErrNotFound) {
				return nil
			}
			return err
		}
		rt.Companions.RemoveNotes(ctx, srcs)
		return nil
	})
}

func find(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return errors.New("give exactly one source path")
	}
	src := models.NewSourceFile(cmd.Args().First())
	return withRuntime(cmd, func(rt *internal.Runtime) error {
		note, err := rt.Companions.FindNote(ctx, src)
		if errors.Is(err, apperr.ErrNotFound) {
			return cli.Exit(fmt.Sprintf("no note for %s (would be %s)", src.Path, rt.Companions.NotePath(ctx, src)), 2)
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.Root().Writer, note.Path)
		return nil
	})
}

func status(ctx context.Context, cmd *cli.Command) error {
	dir := strings.Trim(cmd.Args().First(), "/")
	return withRuntime(cmd, func(rt *internal.Runtime) error {
		svc := rt.Companions
		settings := svc.Settings()
		eligible, err := svc.EligibleSources(ctx, dir)
		if err != nil {
			return err
		}
		bound := svc.ExistingNotes(ctx, eligible)

		w := cmd.Root().Writer
		fmt.Fprintf(w, "placement:  %s\n", settings.Placement)
		fmt.Fprintf(w, "declared:   %t\n", settings.DeclareBinding)
		fmt.Fprintf(w, "extensions: %s\n", strings.Join(settings.Extensions(), ","))
		fmt.Fprintf(w, "sources:    %d\n", len(eligible))
		fmt.Fprintf(w, "with notes: %d\n", len(bound))
		return nil
	})
}

func main() {
	cmd := &cli.Command{
		Name:   "tether",
		Usage:  "Companion Markdown notes for the binary files of a vault",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("TETHER_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, watcher and periodic resync",
				Action: serve,
			},
			{
				Name:      "create",
				Usage:     "Create companion notes",
				ArgsUsage: "[source...]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "folder", Aliases: []string{"f"}, Usage: "Bind every eligible file in a folder"},
				},
				Action: create,
			},
			{
				Name:      "remove",
				Usage:     "Move companion notes to the vault trash",
				ArgsUsage: "source...",
				Action:    remove,
			},
			{
				Name:      "find",
				Usage:     "Print the companion note of a source",
				ArgsUsage: "source",
				Action:    find,
			},
			{
				Name:      "status",
				Usage:     "Summarize settings and note coverage",
				ArgsUsage: "[folder]",
				Action:    status,
			},
			{
				Name:   "mcp",
				Usage:  "Serve companion tools over MCP stdio",
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
