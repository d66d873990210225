package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/broady/mxapi/internal/config"
)

// Globals are the flags shared by every command.
type Globals struct {
	Config     string `help:"Path to the YAML config file. Defaults to the user config directory." type:"path" env:"MXAPI_CONFIG"`
	Homeserver string `help:"Homeserver base URL. Overrides the config file." env:"MXAPI_HOMESERVER"`
	Token      string `help:"Access token. Overrides the config file." env:"MXAPI_ACCESS_TOKEN"`

	Stdout io.Writer `kong:"-"`
	Stderr io.Writer `kong:"-"`
}

type CLI struct {
	Globals

	Version VersionCmd `cmd:"" help:"Print version information."`
	Routes  RoutesCmd  `cmd:"" help:"List every endpoint with its method, path and policy."`
	Render  RenderCmd  `cmd:"" help:"Render the HTTP request for an endpoint without sending it."`
	Call    CallCmd    `cmd:"" help:"Send a request to the homeserver and print the response."`
}

type VersionCmd struct{}

func (c *VersionCmd) Run(g *Globals) error {
	fmt.Fprintln(g.Stdout, Version())
	return nil
}

// loadConfig merges the config file with command line overrides. A missing
// default config file is not an error.
func (g *Globals) loadConfig() (*config.Config, error) {
	path := g.Config
	explicit := path != ""
	if !explicit {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			path = ""
		}
	}

	cfg, err := config.Parse(nil)
	if err != nil {
		return nil, err
	}
	if path != "" {
		loaded, err := config.Load(path)
		switch {
		case err == nil:
			cfg = loaded
		case explicit || !errors.Is(err, fs.ErrNotExist):
			return nil, err
		}
	}

	if g.Homeserver != "" {
		cfg.HomeserverURL = g.Homeserver
	}
	if g.Token != "" {
		cfg.AccessToken = g.Token
		cfg.AccessTokenFile = ""
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (g *Globals) logger(cfg *config.Config) *slog.Logger {
	level, _ := cfg.Level()
	return slog.New(slog.NewTextHandler(g.Stderr, &slog.HandlerOptions{Level: level}))
}

func main() {
	cli := &CLI{Globals: Globals{Stdout: os.Stdout, Stderr: os.Stderr}}
	ctx := kong.Parse(cli,
		kong.Name("mxapi"),
		kong.Description("Render and send typed Matrix client-server API requests."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
