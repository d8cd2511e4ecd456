// Package transcript reads and writes conversations and trigger options in
// JSON, JSONC, JSONL and YAML.
package transcript

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/zhy0216/offramp/pkg/trigger"
	"github.com/zhy0216/offramp/pkg/types"
)

// Format is an on-disk encoding.
type Format string

const (
	FormatJSON  Format = "json"  // also accepts JSONC comments and trailing commas
	FormatJSONL Format = "jsonl" // one message per line
	FormatYAML  Format = "yaml"
)

// FormatFromPath picks a format from the file extension, defaulting to JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return FormatJSONL
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// ParseFormat accepts a format name as given on the command line.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "json", "jsonc":
		return FormatJSON, nil
	case "jsonl", "ndjson":
		return FormatJSONL, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown format %q (want json, jsonl or yaml)", name)
	}
}

// document is the object form of a transcript: {"messages": [...]}.
type document struct {
	Messages []types.Message `json:"messages" yaml:"messages"`
}

// Decode reads a conversation from r. JSON and YAML input may be either a
// bare list of messages or an object with a "messages" key.
func Decode(r io.Reader, f Format) ([]types.Message, error) {
	if f == FormatJSONL {
		return decodeJSONL(r)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading transcript: %w", err)
	}

	switch f {
	case FormatYAML:
		return decodeYAML(data)
	default:
		return decodeJSON(data)
	}
}

func decodeJSON(data []byte) ([]types.Message, error) {
	stripped := bytes.TrimSpace(jsonc.ToJSON(data))
	if len(stripped) == 0 {
		return nil, nil
	}

	if stripped[0] == '{' {
		var doc document
		if err := json.Unmarshal(stripped, &doc); err != nil {
			return nil, fmt.Errorf("parsing transcript: %w", err)
		}
		return doc.Messages, nil
	}

	var msgs []types.Message
	if err := json.Unmarshal(stripped, &msgs); err != nil {
		return nil, fmt.Errorf("parsing transcript: %w", err)
	}
	return msgs, nil
}

func decodeYAML(data []byte) ([]types.Message, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parsing transcript: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, nil
	}

	root := node.Content[0]
	if root.Kind == yaml.MappingNode {
		var doc document
		if err := root.Decode(&doc); err != nil {
			return nil, fmt.Errorf("parsing transcript: %w", err)
		}
		return doc.Messages, nil
	}

	var msgs []types.Message
	if err := root.Decode(&msgs); err != nil {
		return nil, fmt.Errorf("parsing transcript: %w", err)
	}
	return msgs, nil
}

func decodeJSONL(r io.Reader) ([]types.Message, error) {
	var msgs []types.Message
	scanner := bufio.NewScanner(r)
	// Allow large lines (up to 1MB)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var m types.Message
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, fmt.Errorf("malformed message on line %d: %w", lineNum, err)
		}
		msgs = append(msgs, m)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading transcript: %w", err)
	}
	return msgs, nil
}

// Encode writes msgs to w. JSON output is an indented bare list.
func Encode(w io.Writer, msgs []types.Message, f Format) error {
	if msgs == nil {
		msgs = []types.Message{}
	}

	switch f {
	case FormatJSONL:
		enc := json.NewEncoder(w)
		for _, m := range msgs {
			if err := enc.Encode(m); err != nil {
				return fmt.Errorf("cannot write message: %w", err)
			}
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(msgs); err != nil {
			return fmt.Errorf("cannot write transcript: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(msgs); err != nil {
			return fmt.Errorf("cannot write transcript: %w", err)
		}
		return nil
	}
}

// ReadFile reads a transcript, choosing the format from the extension.
func ReadFile(path string) ([]types.Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open transcript: %w", err)
	}
	defer f.Close()

	msgs, err := Decode(f, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return msgs, nil
}

// WriteFile writes a transcript atomically, choosing the format from the
// extension.
func WriteFile(path string, msgs []types.Message) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("cannot create transcript directory: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("cannot create temp transcript file: %w", err)
	}

	if err := Encode(f, msgs, FormatFromPath(path)); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("cannot close temp transcript file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("cannot rename temp transcript file: %w", err)
	}
	return nil
}

// DecodeOptions reads trigger options keyed by detector name. Unknown keys
// are ignored. JSONL is not a valid options format.
func DecodeOptions(r io.Reader, f Format) (trigger.Options, error) {
	var opts trigger.Options

	data, err := io.ReadAll(r)
	if err != nil {
		return opts, fmt.Errorf("reading options: %w", err)
	}

	switch f {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &opts); err != nil {
			return opts, fmt.Errorf("parsing options: %w", err)
		}
	case FormatJSON:
		stripped := bytes.TrimSpace(jsonc.ToJSON(data))
		if len(stripped) == 0 {
			return opts, nil
		}
		if err := json.Unmarshal(stripped, &opts); err != nil {
			return opts, fmt.Errorf("parsing options: %w", err)
		}
	default:
		return opts, fmt.Errorf("options cannot be read as %s", f)
	}
	return opts, nil
}

// ReadOptionsFile reads trigger options from a JSON, JSONC or YAML file.
func ReadOptionsFile(path string) (trigger.Options, error) {
	f, err := os.Open(path)
	if err != nil {
		return trigger.Options{}, fmt.Errorf("cannot open options file: %w", err)
	}
	defer f.Close()

	opts, err := DecodeOptions(f, FormatFromPath(path))
	if err != nil {
		return opts, fmt.Errorf("%s: %w", path, err)
	}
	return opts, nil
}
