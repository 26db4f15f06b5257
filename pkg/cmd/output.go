package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/livepkg/livepkg/pkg/pkg"
	"github.com/livepkg/livepkg/pkg/source"
	"sigs.k8s.io/yaml"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

func validateOutput(format string) error {
	switch format {
	case outputTable, outputJSON, outputYAML:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want %s, %s or %s)", format, outputTable, outputJSON, outputYAML)
	}
}

// writeStructured writes v as JSON or YAML. YAML goes through the JSON
// tags so both formats share field names and dependency order.
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		out, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		_, err = w.Write(out)
		return err
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func writePackages(w io.Writer, format string, packages []*pkg.Package) error {
	if format != outputTable {
		if packages == nil {
			packages = []*pkg.Package{}
		}
		return writeStructured(w, format, packages)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tVERSION\tDEPENDENCIES\tLOCATION")
	for _, p := range packages {
		deps := make([]string, 0, len(p.Dependencies))
		for _, d := range p.Dependencies {
			deps = append(deps, d.Name+"@"+d.Range)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Name, p.Version, orDash(strings.Join(deps, ",")), p.Location)
	}
	return tw.Flush()
}

func writeMetadata(w io.Writer, format string, meta *source.Metadata) error {
	if format != outputTable {
		return writeStructured(w, format, meta)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Name:\t%s\n", meta.Name)
	fmt.Fprintf(tw, "Version:\t%s\n", meta.Version)
	fmt.Fprintf(tw, "Source:\t%s\n", meta.Kind)
	fmt.Fprintf(tw, "Archive:\t%s\n", orDash(meta.ArchiveURL))
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
