package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/broady/mxapi/catalog"
)

type RoutesCmd struct {
	JSON bool `help:"Print routes as JSON."`
}

func (c *RoutesCmd) Run(g *Globals) error {
	routes := catalog.Default().Routes()
	if c.JSON {
		enc := json.NewEncoder(g.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(routes)
	}

	tw := tabwriter.NewWriter(g.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tMETHOD\tPATH\tAUTH\tRATE LIMITED")
	for _, r := range routes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Name, r.Method, r.Path, yesNo(r.RequiresAuthentication), yesNo(r.RateLimited))
	}
	return tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
