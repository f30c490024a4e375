package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// yamlOut prints data as a YAML document to stdout.
func yamlOut(data any) {
	yamlTo(os.Stdout, data)
}

func yamlTo(w io.Writer, data any) {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	enc.Encode(data)
	enc.Close()
}

// printTable prints a simple formatted table header with separator.
func printTable(w io.Writer, format string, width int, columns ...any) {
	fmt.Fprintf(w, format+"\n", columns...)
	fmt.Fprintln(w, strings.Repeat("-", width))
}

func truncateStr(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// parseKeyValues turns ["k=v", ...] into a map. A bare key maps to "".
func parseKeyValues(pairs []string) (map[string]string, error) {
	data := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, _ := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if k == "" {
			return nil, fmt.Errorf("invalid key=value pair %q", p)
		}
		data[k] = v
	}
	return data, nil
}

// formatData renders a data map as "k=v k=v" in key order.
func formatData(data map[string]string) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+data[k])
	}
	return strings.Join(parts, " ")
}
