package cli

import (
	"encoding/json"
	"io"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	sqlColor    = color.New(color.FgGreen)
	nameColor   = color.New(color.FgYellow)
	dimColor    = color.New(color.Faint)
)

// writeStructured renders v as JSON or YAML. It reports false for text.
func writeStructured(w io.Writer, format string, v interface{}) (bool, error) {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		enc.SetIndent(2)
		return true, enc.Encode(v)
	}
	return false, nil
}
