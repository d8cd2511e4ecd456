package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/zhy0216/offramp/pkg/types"
)

// ValidatePath returns path made absolute and clean, with symlinks resolved
// in the longest prefix of it that exists, so a transcript that is about to
// be created still resolves through a symlinked directory. When allowedDir
// is not empty the result must lie inside it.
func ValidatePath(path, allowedDir string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	resolved, err := resolvePath(path)
	if err != nil {
		return "", err
	}
	if allowedDir == "" {
		return resolved, nil
	}

	root, err := resolvePath(allowedDir)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside the allowed directory %s", path, allowedDir)
	}
	return resolved, nil
}

func resolvePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	// walk up to the first component that exists
	existing := abs
	var missing []string
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return abs, nil
		}
		missing = append(missing, filepath.Base(existing))
		existing = parent
	}

	out, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", fmt.Errorf("failed to resolve symlinks: %w", err)
	}
	for i := len(missing) - 1; i >= 0; i-- {
		out = filepath.Join(out, missing[i])
	}
	return out, nil
}

// TruncateOutput keeps the first maxLen code points of output and appends a
// truncation notice. It never splits a multi-byte character.
func TruncateOutput(output string, maxLen int) string {
	n := utf8.RuneCountInString(output)
	if n <= maxLen {
		return output
	}
	cut := 0
	for i := 0; i < maxLen; i++ {
		_, size := utf8.DecodeRuneInString(output[cut:])
		cut += size
	}
	return output[:cut] + fmt.Sprintf("\n... (truncated, %d more chars)", n-maxLen)
}

// Preview returns a single-line prefix of s for log fields.
func Preview(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen]) + "..."
}

// EstimateMessageChars returns the total code point count across all messages.
func EstimateMessageChars(messages []types.Message) int {
	total := 0
	for _, m := range messages {
		total += utf8.RuneCountInString(m.Content)
	}
	return total
}

// GetEnvOrDefault returns environment variable or default value.
func GetEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// StripCodeFence removes markdown code fences from LLM responses.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		// drop an info string such as "text" or "json"
		if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], " \t") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
