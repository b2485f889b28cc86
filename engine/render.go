package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/oliveagle/jsonpath"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Render substitutes {{variable}} placeholders from the session variable
// bag. Keys starting with $ are jsonpath lookups into the bag. Unresolved
// placeholders are left verbatim, never raised as errors.
func Render(text string, variables map[string]any) string {
	if len(text) == 0 || !strings.Contains(text, "{{") {
		return text
	}
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		key := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(match, "{{"), "}}"))
		var value any
		if strings.HasPrefix(key, "$") {
			resolved, err := jsonpath.JsonPathLookup(variables, key)
			if err != nil {
				return match
			}
			value = resolved
		} else {
			resolved, ok := variables[key]
			if !ok {
				return match
			}
			value = resolved
		}
		return formatValue(value, match)
	})
}

func formatValue(value any, fallback string) string {
	switch v := value.(type) {
	case nil:
		return fallback
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
