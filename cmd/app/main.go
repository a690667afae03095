package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/mdeck/internal"
	"github.com/starford/mdeck/internal/convert"
	pkgconfig "github.com/starford/mdeck/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command, required bool) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	load := pkgconfig.LoadOptional[internal.Config]
	if required {
		load = pkgconfig.Load[internal.Config]
	}
	if err := load(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd, !cmd.Bool("no-config"))
	if err != nil {
		return err
	}

	if err := internal.Run(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd, !cmd.Bool("no-config"))
	if err != nil {
		return err
	}

	if err := internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("mcp run error: %w", err)
	}
	return nil
}

func convertDocuments(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}
	if cmd.IsSet("heading-depth") {
		cfg.Parser.InitialHeadingDepth = int(cmd.Int("heading-depth"))
		if err := cfg.Parser.Validate(); err != nil {
			return fmt.Errorf("heading-depth: %w", err)
		}
	}

	logger := cfg.App.NewLogger(os.Stderr, internal.LogFormatText)
	slog.SetDefault(logger)

	req := convert.Request{
		Inputs:              cmd.Args().Slice(),
		Stdin:               os.Stdin,
		InitialHeadingDepth: cfg.Parser.InitialHeadingDepth,
		FileDirs:            append(cfg.Parser.FileDirs, cmd.StringSlice("file-dir")...),
		MarkdownFiles:       cmd.StringSlice("o-md"),
		MarkdownDir:         firstNonEmpty(cmd.String("o-md-dir"), cfg.Output.MarkdownDir),
		BackupDir:           firstNonEmpty(cmd.String("o-backup-dir"), cfg.Output.BackupDir),
		JSONFile:            cmd.String("o-json"),
		YAMLFile:            cmd.String("o-yaml"),
		RemoveIDs:           cmd.Bool("remove-ids") || cfg.Output.RemoveIDs,
	}

	res, err := convert.Run(ctx, req, logger)
	if err != nil {
		return err
	}
	logger.Info("conversion finished",
		slog.Int("documents", len(res.Documents)),
		slog.Int("decks", len(res.Decks())))
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func main() {
	cmd := &cli.Command{
		Name:    "mdeck",
		Usage:   "Parse Markdown documents into flashcard deck trees and serve them from a local vault",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "convert",
				Usage:     "Parse Markdown documents and write the requested outputs",
				ArgsUsage: "FILE... (use - for stdin)",
				Action:    convertDocuments,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "heading-depth",
						Aliases: []string{"d"},
						Usage:   "Heading depth of the root deck (1-6)",
						Value:   1,
					},
					&cli.StringSliceFlag{
						Name:  "file-dir",
						Usage: "Additional directory searched for local assets",
					},
					&cli.StringSliceFlag{
						Name:  "o-md",
						Usage: "Markdown output file; one merges all inputs, several map one to one to the inputs",
					},
					&cli.StringFlag{
						Name:  "o-md-dir",
						Usage: "Directory receiving one Markdown file per input",
					},
					&cli.StringFlag{
						Name:  "o-backup-dir",
						Usage: "Directory receiving the merged documents and their assets",
					},
					&cli.StringFlag{
						Name:  "o-json",
						Usage: "JSON export of the deck trees",
					},
					&cli.StringFlag{
						Name:  "o-yaml",
						Usage: "YAML export of the deck trees",
					},
					&cli.BoolFlag{
						Name:  "remove-ids",
						Usage: "Omit deck and note ids from Markdown outputs",
					},
				},
			},
			{
				Name:   "serve",
				Usage:  "Index the vault and serve the HTTP API",
				Action: serve,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "no-config",
						Usage: "Run with defaults when the config file is missing",
					},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Index the vault and serve MCP tools over stdio",
				Action: serveMCP,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "no-config",
						Usage: "Run with defaults when the config file is missing",
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
