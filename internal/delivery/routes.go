package delivery

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rbright/viva/internal/exam"
)

// Routes are request-target templates. {room}, {participant} and
// {question} are path-escaped on expansion.
type Routes struct {
	Status    string
	Prompt    string
	Playing   string
	Recording string
	Upload    string
}

const (
	FlowExam       = "exam"
	FlowAssignment = "assignment"
)

// PresetRoutes returns the route set for one of the two call sites.
func PresetRoutes(flow string) (Routes, error) {
	var prefix string
	switch strings.ToLower(strings.TrimSpace(flow)) {
	case "", FlowExam:
		prefix = "/api/rooms/{room}/participants/{participant}"
	case FlowAssignment:
		prefix = "/api/assignments/{room}/students/{participant}"
	default:
		return Routes{}, fmt.Errorf("unknown flow %q", flow)
	}
	return Routes{
		Status:    prefix + "/status",
		Prompt:    prefix + "/prompt",
		Playing:   prefix + "/playing",
		Recording: prefix + "/recording",
		Upload:    prefix + "/answers/{question}",
	}, nil
}

// Merge overlays non-empty overrides onto r.
func (r Routes) Merge(overrides Routes) Routes {
	pick := func(base, override string) string {
		if strings.TrimSpace(override) != "" {
			return strings.TrimSpace(override)
		}
		return base
	}
	return Routes{
		Status:    pick(r.Status, overrides.Status),
		Prompt:    pick(r.Prompt, overrides.Prompt),
		Playing:   pick(r.Playing, overrides.Playing),
		Recording: pick(r.Recording, overrides.Recording),
		Upload:    pick(r.Upload, overrides.Upload),
	}
}

// Validate checks every template addresses the participant it serves.
func (r Routes) Validate() error {
	named := []struct {
		name     string
		template string
	}{
		{"status", r.Status},
		{"prompt", r.Prompt},
		{"playing", r.Playing},
		{"recording", r.Recording},
		{"upload", r.Upload},
	}
	for _, route := range named {
		if !strings.HasPrefix(route.template, "/") {
			return fmt.Errorf("route %s must start with /", route.name)
		}
		if !strings.Contains(route.template, "{room}") || !strings.Contains(route.template, "{participant}") {
			return fmt.Errorf("route %s must contain {room} and {participant}", route.name)
		}
	}
	if !strings.Contains(r.Upload, "{question}") {
		return fmt.Errorf("route upload must contain {question}")
	}
	return nil
}

func expand(template string, room, participant string, question exam.Question) string {
	return strings.NewReplacer(
		"{room}", url.PathEscape(room),
		"{participant}", url.PathEscape(participant),
		"{question}", strconv.Itoa(question.Index),
	).Replace(template)
}
