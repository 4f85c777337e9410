package builtin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aegisrun/aegis/internal/policy"
	"github.com/aegisrun/aegis/internal/skill"
)

const fileReadParamsSchema = `{
	"type": "object",
	"properties": {
		"path": {"type": "string", "description": "Absolute path to the file to read."}
	},
	"required": ["path"]
}`

const maxReadChars = 20000

// FileRead reads a file from any zone the policy engine's file-access rule
// allows, routed entirely through policy.CheckFileAccess rather than a
// hardcoded allowlist.
type FileRead struct {
	policyEngine *policy.Engine
}

// NewFileRead constructs a FileRead skill bound to engine.
func NewFileRead(engine *policy.Engine) *FileRead {
	return &FileRead{policyEngine: engine}
}

func (s *FileRead) Metadata() skill.Metadata {
	return skill.Metadata{
		Name: "file_read",
		Description: "Read the contents of a file. Allowed locations depend on configured zones " +
			"(typically the agent's sandbox workspace, identity files, and application code). " +
			"Use this to inspect files, read notes, or load data.",
		Parameters:       json.RawMessage(fileReadParamsSchema),
		RiskLevel:        policy.RiskLow,
		RateLimitKey:     "file_read",
		RequiresApproval: false,
		MaxCallsPerTurn:  10,
	}
}

func (s *FileRead) Validate(params map[string]any) (bool, string) {
	path, ok := pathParam(params)
	if !ok {
		return false, "parameter 'path' must be a non-empty string"
	}

	result := s.policyEngine.CheckFileAccess(path, policy.ActionRead)
	if result.Decision == policy.DecisionDeny {
		return false, result.Reason
	}
	return true, ""
}

func (s *FileRead) Execute(_ context.Context, params map[string]any) (any, error) {
	path := params["path"].(string)

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("file not found: %s", path)
		}
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("permission denied: %s", path)
		}
		return nil, fmt.Errorf("could not read file: %w", err)
	}
	defer f.Close()

	if info, statErr := f.Stat(); statErr == nil && info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", path)
	}

	buf := make([]byte, maxReadChars+1)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("could not read file: %w", err)
	}

	truncated := n > maxReadChars
	if truncated {
		n = maxReadChars
	}

	real, _ := filepath.Abs(path)
	return readResult{Content: string(buf[:n]), Path: real, Truncated: truncated}, nil
}

type readResult struct {
	Content   string
	Path      string
	Truncated bool
}

func (s *FileRead) Sanitize(result any) (string, error) {
	r, ok := result.(readResult)
	if !ok {
		return fmt.Sprintf("%v", result), nil
	}
	out := fmt.Sprintf("[%s]\n%s", r.Path, r.Content)
	if r.Truncated {
		out += fmt.Sprintf("\n[truncated at %d chars]", maxReadChars)
	}
	return out, nil
}

func pathParam(params map[string]any) (string, bool) {
	path, ok := params["path"].(string)
	if !ok || path == "" {
		return "", false
	}
	return path, true
}
