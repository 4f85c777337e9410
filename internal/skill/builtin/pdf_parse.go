package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/aegisrun/aegis/internal/policy"
	"github.com/aegisrun/aegis/internal/skill"
)

const pdfParseParamsSchema = `{
	"type": "object",
	"properties": {
		"path": {"type": "string", "description": "Absolute path to the PDF file."}
	},
	"required": ["path"]
}`

const maxPDFOutputChars = 20000

// PdfParse extracts text from a PDF file in any zone the policy engine's
// read rule allows. No PDF SDK appears anywhere in the example pack, so
// this ports only the contract (read-only, zone-gated, plain-text output)
// and extracts text with a minimal stream-object scanner good enough for
// uncompressed PDF content streams — documented as a stdlib-only
// simplification rather than a full PDF renderer.
type PdfParse struct {
	policyEngine *policy.Engine
}

// NewPdfParse constructs a PdfParse skill bound to engine.
func NewPdfParse(engine *policy.Engine) *PdfParse {
	return &PdfParse{policyEngine: engine}
}

func (s *PdfParse) Metadata() skill.Metadata {
	return skill.Metadata{
		Name: "pdf_parse",
		Description: "Extract and return the text content of a PDF file. Use this to read " +
			"documents, papers, or reports that have been saved to the sandbox.",
		Parameters:       json.RawMessage(pdfParseParamsSchema),
		RiskLevel:        policy.RiskLow,
		RateLimitKey:     "pdf_parse",
		RequiresApproval: false,
		MaxCallsPerTurn:  5,
	}
}

func (s *PdfParse) Validate(params map[string]any) (bool, string) {
	path, ok := pathParam(params)
	if !ok {
		return false, "parameter 'path' must be a non-empty string"
	}
	if !strings.HasSuffix(strings.ToLower(path), ".pdf") {
		return false, "parameter 'path' must point to a .pdf file"
	}
	result := s.policyEngine.CheckFileAccess(path, policy.ActionRead)
	if result.Decision == policy.DecisionDeny {
		return false, result.Reason
	}
	return true, ""
}

func (s *PdfParse) Execute(_ context.Context, params map[string]any) (any, error) {
	path := params["path"].(string)

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read PDF: %w", err)
	}

	text, pages := extractPDFText(raw)
	return pdfResult{Text: text, Pages: pages, Path: path}, nil
}

type pdfResult struct {
	Text  string
	Pages int
	Path  string
}

func (s *PdfParse) Sanitize(result any) (string, error) {
	r, ok := result.(pdfResult)
	if !ok {
		return fmt.Sprintf("%v", result), nil
	}
	text := r.Text
	if len(text) > maxPDFOutputChars {
		text = text[:maxPDFOutputChars] + "\n[truncated]"
	}
	pageWord := "pages"
	if r.Pages == 1 {
		pageWord = "page"
	}
	return fmt.Sprintf("[%s] (%d %s)\n\n%s", r.Path, r.Pages, pageWord, text), nil
}

var (
	pdfPagePattern   = regexp.MustCompile(`/Type\s*/Page[^s]`)
	pdfTextBlockRe   = regexp.MustCompile(`(?s)BT(.*?)ET`)
	pdfLiteralStrRe  = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)\s*Tj`)
	pdfEscapeCharsRe = regexp.MustCompile(`\\(.)`)
)

// extractPDFText walks a PDF byte stream for BT/ET text-showing blocks and
// pulls literal-string Tj operands out of them. It does not decompress
// FlateDecode content streams, so it only recovers text from PDFs written
// with uncompressed streams.
func extractPDFText(raw []byte) (string, int) {
	pages := len(pdfPagePattern.FindAll(raw, -1))
	if pages == 0 {
		pages = 1
	}

	var sb strings.Builder
	for _, block := range pdfTextBlockRe.FindAllSubmatch(raw, -1) {
		for _, m := range pdfLiteralStrRe.FindAllSubmatch(block[1], -1) {
			unescaped := pdfEscapeCharsRe.ReplaceAll(m[1], []byte("$1"))
			sb.Write(unescaped)
			sb.WriteByte('\n')
		}
	}
	return sb.String(), pages
}
