package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/broady/mxapi"
	"github.com/broady/mxapi/catalog"
	"github.com/broady/mxapi/client"
	"github.com/broady/mxapi/internal/config"
	"github.com/broady/mxapi/r0"
)

// RequestFlags describe one operation's inputs in untyped form.
type RequestFlags struct {
	Endpoint   string            `arg:"" help:"Endpoint name, as listed by 'mxapi routes'."`
	Path       map[string]string `help:"Path parameter as name=value. Repeatable." short:"p" mapsep:"none"`
	Query      []string          `help:"Query parameter as name=value. Repeatable." short:"q" sep:"none"`
	Body       string            `help:"JSON request body, or @file to read JSONC from a file." short:"d"`
	FilterFile string            `help:"JSONC filter definition for sync." type:"path"`
}

func (f *RequestFlags) raw(filterFile string) (mxapi.RawRequest, error) {
	raw := mxapi.RawRequest{Path: f.Path, Query: url.Values{}}
	for _, kv := range f.Query {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return raw, fmt.Errorf("query parameter %q: expected name=value", kv)
		}
		raw.Query.Add(name, value)
	}

	if filterFile != "" && f.Endpoint == r0.Sync.Name() && !raw.Query.Has("filter") {
		filter, err := config.ReadFilterFile(filterFile)
		if err != nil {
			return raw, err
		}
		text, err := filter.MarshalText()
		if err != nil {
			return raw, fmt.Errorf("%s: %w", filterFile, err)
		}
		raw.Query.Set("filter", string(text))
	}

	switch {
	case strings.HasPrefix(f.Body, "@"):
		data, err := os.ReadFile(strings.TrimPrefix(f.Body, "@"))
		if err != nil {
			return raw, fmt.Errorf("reading body: %w", err)
		}
		raw.Body = jsonc.ToJSON(data)
	case f.Body != "":
		raw.Body = []byte(f.Body)
	}
	return raw, nil
}

// build looks up the endpoint and renders its request. filterFile is used
// when the flags name none.
func (f *RequestFlags) build(filterFile string) (mxapi.Descriptor, *mxapi.Request, error) {
	d, ok := catalog.Default().Lookup(f.Endpoint)
	if !ok {
		return nil, nil, fmt.Errorf("unknown endpoint %q (see 'mxapi routes')", f.Endpoint)
	}
	if f.FilterFile != "" {
		filterFile = f.FilterFile
	}
	raw, err := f.raw(filterFile)
	if err != nil {
		return nil, nil, err
	}
	req, err := d.BuildRequest(raw)
	if err != nil {
		return nil, nil, err
	}
	return d, req, nil
}

type RenderCmd struct {
	RequestFlags
}

func (c *RenderCmd) Run(g *Globals) error {
	_, req, err := c.build("")
	if err != nil {
		return err
	}
	line := string(req.Method) + " " + req.Path
	if req.Query != "" {
		line += "?" + req.Query
	}
	fmt.Fprintln(g.Stdout, line)
	if req.Body != nil {
		fmt.Fprintln(g.Stdout, string(req.Body))
	}
	return nil
}

type CallCmd struct {
	RequestFlags
}

func (c *CallCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	d, req, err := c.build(cfg.FilterFile)
	if err != nil {
		return err
	}
	token, err := cfg.Token()
	if err != nil {
		return err
	}

	cl, err := client.New(client.Config{
		HomeserverURL:      cfg.HomeserverURL,
		AccessToken:        token,
		AlwaysAuthenticate: cfg.AlwaysAuthenticate,
		RateLimitRetries:   cfg.RateLimitRetries,
		HTTPClient:         &http.Client{Timeout: cfg.Timeout},
		Logger:             g.logger(cfg),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	data, err := cl.Do(ctx, d, req)
	if err != nil {
		return err
	}
	if _, err := d.DecodeResponseValue(data); err != nil {
		return err
	}

	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return fmt.Errorf("formatting response: %w", err)
	}
	out.WriteByte('\n')
	_, err = out.WriteTo(g.Stdout)
	return err
}
