package engine

import (
	"regexp"

	"github.com/boothlabs/boothflow/internal/models"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([\w.-]+)\s*\}\}`)

// Interpolate resolves {{key}} placeholders in a prompt template against the
// session's collected data. Static variables substitute their authored value;
// input and capture variables substitute the string form of the referenced
// step's input. Missing or unresolved references degrade to an empty string
// substitution rather than an error.
func Interpolate(template string, data models.SessionData, defs []models.VariableDef) string {
	if template == "" {
		return template
	}

	values := make(map[string]string, len(defs))
	for _, def := range defs {
		values[def.Key] = resolveVariable(def, data)
	}
	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		key := placeholderRe.FindStringSubmatch(match)[1]
		return values[key]
	})
}

func resolveVariable(def models.VariableDef, data models.SessionData) string {
	switch def.SourceType {
	case models.VariableSourceStatic:
		return def.StaticValue
	case models.VariableSourceInput, models.VariableSourceCapture:
		input, ok := data[def.SourceStepID]
		if !ok {
			return ""
		}
		return input.DisplayString()
	default:
		return ""
	}
}
