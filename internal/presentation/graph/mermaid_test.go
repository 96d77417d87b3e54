package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/parley/internal/presentation/graph"
	"github.com/aretw0/parley/pkg/domain"
)

var handlers = []domain.HandlerDescriptor{
	{Name: "StoryTeller", Description: "Agent to create Cthulhu Dark Stories"},
	{Name: "Story-Guider", Description: `The "guide"`},
	{Name: "Hidden"},
}

func TestGenerateMermaid(t *testing.T) {
	tests := []struct {
		name        string
		unreachable []string
		overlay     *graph.Overlay
		contains    []string
		excludes    []string
	}{
		{
			name: "Shapes",
			contains: []string{
				"graph TD\n",
				`user(("user"))`,
				`Router{{"Router"}}`,
				"user --> Router",
				`StoryTeller["StoryTeller"]`,
			},
			excludes: []string{"classDef"},
		},
		{
			name: "Edge labels are escaped and ids sanitized",
			contains: []string{
				`Router -- "Agent to create Cthulhu Dark Stories" --> StoryTeller`,
				`Router -- "The 'guide'" --> Story_Guider`,
				"Router --> Hidden",
			},
		},
		{
			name:        "Unreachable handler is dotted",
			unreachable: []string{"Hidden"},
			contains:    []string{"Router -.-> Hidden"},
		},
		{
			name:    "Overlay",
			overlay: &graph.Overlay{Visits: map[string]int{"StoryTeller": 2, "Story-Guider": 1}, Current: "Story-Guider"},
			contains: []string{
				`StoryTeller["StoryTeller <br/> 2 turn(s)"]`,
				"class StoryTeller visited;",
				"class Story_Guider current;",
			},
			excludes: []string{"class Hidden"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := graph.GenerateMermaid("Router", handlers, tt.unreachable, tt.overlay)
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("GenerateMermaid() missing %q\nGot:\n%s", want, got)
				}
			}
			for _, bad := range tt.excludes {
				if strings.Contains(got, bad) {
					t.Errorf("GenerateMermaid() unexpectedly contains %q\nGot:\n%s", bad, got)
				}
			}
		})
	}
}

func TestOverlayFromState(t *testing.T) {
	state := domain.NewDialogueState("s1")
	state.Append(domain.RoleUser, "", "hola")
	state.Append(domain.RoleHandler, "Router", `{"agent":"StoryTeller"}`)
	state.Append(domain.RoleHandler, "StoryTeller", "Érase una vez")
	state.Append(domain.RoleUser, "", "y luego?")
	state.Append(domain.RoleHandler, "Router", `{"agent":"StoryGuider"}`)
	state.Append(domain.RoleHandler, "StoryGuider", "Investiga")

	o := graph.OverlayFromState(state, "Router")
	if o.Current != "StoryGuider" {
		t.Errorf("Current = %q, want StoryGuider", o.Current)
	}
	if o.Visits["StoryTeller"] != 1 || o.Visits["Router"] != 0 {
		t.Errorf("unexpected visits %v", o.Visits)
	}

	if empty := graph.OverlayFromState(nil, "Router"); len(empty.Visits) != 0 || empty.Current != "" {
		t.Errorf("nil state should give an empty overlay, got %+v", empty)
	}
}
