package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/iln-nexus/iln/pkg/core"
)

func render(w io.Writer, format string, v interface{}) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "text":
		if res, ok := v.(*core.ExecutionResult); ok {
			writeResult(w, res)
			return nil
		}
		_, err := fmt.Fprintf(w, "%+v\n", v)
		return err
	}
	return fmt.Errorf("unknown output format %q: use text, json or yaml", format)
}

func writeResult(w io.Writer, res *core.ExecutionResult) {
	if !res.Success {
		fmt.Fprintf(w, "Error [%s]: %s\n", res.ErrorKind, res.Error)
		return
	}
	fmt.Fprintf(w, "Success! Level %d\n", res.Level)
	fmt.Fprintf(w, "Backend: %s\n", res.Backend)
	fmt.Fprintf(w, "Time: %.3fs\n", res.ExecutionTime.Seconds())
	fmt.Fprintf(w, "Annotations: %s\n", strings.Join(res.AnnotationsUsed, ", "))
	if len(res.Metadata) == 0 {
		return
	}
	keys := make([]string, 0, len(res.Metadata))
	for k := range res.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintln(w, "Metadata:")
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %v\n", k, res.Metadata[k])
	}
}
