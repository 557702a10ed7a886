package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/puffnotes/internal"
	pkgconfig "github.com/starford/puffnotes/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if dir := cmd.String("dir"); dir != "" {
		cfg.Storage.Directory = dir
	}

	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, opts...)
}

func exportNote(ctx context.Context, cmd *cli.Command) error {
	name := cmd.Args().First()
	if name == "" {
		return fmt.Errorf("usage: puffnotes export <name>")
	}
	opts, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	path, err := internal.ExportNote(ctx, name, cmd.String("out"), opts...)
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func setKey(ctx context.Context, cmd *cli.Command) error {
	key := cmd.Args().First()
	if key == "" {
		return fmt.Errorf("usage: puffnotes key set <api-key>")
	}
	return storeKey(ctx, cmd, key)
}

func clearKey(ctx context.Context, cmd *cli.Command) error {
	return storeKey(ctx, cmd, "")
}

func storeKey(ctx context.Context, cmd *cli.Command, key string) error {
	opts, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	present, err := internal.SetUserKey(ctx, key, opts...)
	if err != nil {
		return err
	}
	if present {
		fmt.Println("API key saved")
	} else {
		fmt.Println("API key removed")
	}
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "puffnotes",
		Usage:   "Minimal Markdown note editor with AI rewrite review and PDF export",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "dir",
				Aliases: []string{"d"},
				Usage:   "Notes folder to grant on startup",
				Sources: cli.EnvVars("PUFFNOTES_DIR"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API (default)",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools on stdio",
				Action: mcp,
			},
			{
				Name:      "export",
				Usage:     "Export a stored note to PDF",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "out",
						Usage: "Output directory",
						Value: ".",
					},
				},
				Action: exportNote,
			},
			{
				Name:  "key",
				Usage: "Manage your own rewrite API key",
				Commands: []*cli.Command{
					{Name: "set", Usage: "Store a key", ArgsUsage: "<api-key>", Action: setKey},
					{Name: "clear", Usage: "Remove the stored key", Action: clearKey},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
