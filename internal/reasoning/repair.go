package reasoning

import (
	"encoding/json"
	"strings"

	"github.com/julianstephens/daylitd/internal/errors"
)

// DecodeJSON unmarshals model output into v. When the text does not parse
// it is repaired once (markdown fences trimmed, then cut to the outermost
// braces) before the answer is rejected as INVALID_RESPONSE_SHAPE.
func DecodeJSON(text string, v interface{}) error {
	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}

	repaired := RepairJSON(text)
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		violation := errors.Guardrail(errors.CodeInvalidResponseShape, "response is not valid JSON: %v", err)
		violation.Details = map[string]interface{}{"length": len(text)}
		return violation
	}
	return nil
}

// RepairJSON trims markdown code fences and slices from the first '{' to the
// last '}'. It returns the trimmed input when no braces are present.
func RepairJSON(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			// drop the language tag line, e.g. ```json
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}

	first := strings.IndexByte(s, '{')
	last := strings.LastIndexByte(s, '}')
	if first >= 0 && last > first {
		return s[first : last+1]
	}
	return s
}
