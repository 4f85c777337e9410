package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aegisrun/aegis/internal/policy"
	"github.com/aegisrun/aegis/internal/skill"
)

const fileWriteParamsSchema = `{
	"type": "object",
	"properties": {
		"path": {"type": "string", "description": "Absolute path to write to."},
		"content": {"type": "string", "description": "Text content to write."},
		"mode": {"type": "string", "enum": ["write", "append"], "description": "'write' (default) or 'append'."}
	},
	"required": ["path", "content"]
}`

const maxWriteChars = 100000

// FileWrite writes or appends to a file in whatever zone the policy
// engine's write rule allows. Whether a given call needs approval depends
// on that zone's configured rule, so FileWrite implements DynamicApproval
// rather than declaring a single fixed value in Metadata.
type FileWrite struct {
	policyEngine *policy.Engine
}

// NewFileWrite constructs a FileWrite skill bound to engine.
func NewFileWrite(engine *policy.Engine) *FileWrite {
	return &FileWrite{policyEngine: engine}
}

func (s *FileWrite) Metadata() skill.Metadata {
	return skill.Metadata{
		Name: "file_write",
		Description: "Write or append content to a file. Creates the file and any missing parent " +
			"directories automatically. Use mode='write' to create/overwrite, mode='append' to add " +
			"to an existing file. Writes outside the sandbox zone require owner approval.",
		Parameters:       json.RawMessage(fileWriteParamsSchema),
		RiskLevel:        policy.RiskMedium,
		RateLimitKey:     "file_write",
		RequiresApproval: false,
		MaxCallsPerTurn:  10,
	}
}

func (s *FileWrite) RequiresApprovalFor(params map[string]any) bool {
	path, ok := pathParam(params)
	if !ok {
		return false
	}
	return s.policyEngine.CheckFileAccess(path, policy.ActionWrite).Decision == policy.DecisionRequiresApproval
}

func (s *FileWrite) Validate(params map[string]any) (bool, string) {
	path, ok := pathParam(params)
	if !ok {
		return false, "parameter 'path' must be a non-empty string"
	}
	content, ok := params["content"].(string)
	if !ok {
		return false, "parameter 'content' must be a string"
	}
	if len(content) > maxWriteChars {
		return false, fmt.Sprintf("parameter 'content' must be under %d characters", maxWriteChars)
	}
	if mode, present := params["mode"]; present {
		if m, ok := mode.(string); !ok || (m != "write" && m != "append") {
			return false, "parameter 'mode' must be 'write' or 'append'"
		}
	}

	result := s.policyEngine.CheckFileAccess(path, policy.ActionWrite)
	if result.Decision == policy.DecisionDeny {
		return false, result.Reason
	}
	return true, ""
}

func (s *FileWrite) Execute(_ context.Context, params map[string]any) (any, error) {
	path := params["path"].(string)
	content := params["content"].(string)
	mode, _ := params["mode"].(string)
	if mode == "" {
		mode = "write"
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("could not create parent directories: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if mode == "append" {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("could not write file: %w", err)
	}
	defer f.Close()

	n, err := f.WriteString(content)
	if err != nil {
		return nil, fmt.Errorf("could not write file: %w", err)
	}

	real, _ := filepath.Abs(path)
	return writeResult{Path: real, BytesWritten: n, Mode: mode}, nil
}

type writeResult struct {
	Path         string
	BytesWritten int
	Mode         string
}

func (s *FileWrite) Sanitize(result any) (string, error) {
	r, ok := result.(writeResult)
	if !ok {
		return fmt.Sprintf("%v", result), nil
	}
	action := "Written"
	if r.Mode == "append" {
		action = "Appended"
	}
	return fmt.Sprintf("%s %d bytes to %s.", action, r.BytesWritten, r.Path), nil
}
