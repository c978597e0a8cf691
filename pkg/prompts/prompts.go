// Package prompts manages the library of business analysis prompt templates.
package prompts

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("prompt not found")
	ErrInvalid  = errors.New("invalid prompt")
)

// Prompt is a named template. Square-bracketed text such as "[Activities]" marks
// a slot the user fills in.
type Prompt struct {
	ID   string `json:"id" toml:"id"`
	Name string `json:"name" toml:"name"`
	Text string `json:"text" toml:"text"`
}

func (p Prompt) validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if strings.TrimSpace(p.Text) == "" {
		return fmt.Errorf("%w: text is required", ErrInvalid)
	}
	return nil
}

var placeholder = regexp.MustCompile(`\[([^\[\]\n]+)\]`)

// Placeholders lists the slot names in text, in order of first appearance.
func (p Prompt) Placeholders() []string {
	seen := map[string]bool{}
	var names []string
	for _, m := range placeholder.FindAllStringSubmatch(p.Text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Render fills the slots named in vars. Slots without a value are left as
// they are so the model sees what was not provided. A non-empty context
// document is appended.
func (p Prompt) Render(vars map[string]string, context string) string {
	out := placeholder.ReplaceAllStringFunc(p.Text, func(m string) string {
		if v, ok := vars[m[1:len(m)-1]]; ok {
			return v
		}
		return m
	})

	if strings.TrimSpace(context) != "" {
		out += "\n\nContext document:\n" + strings.TrimSpace(context)
	}
	return out
}

// Defaults returns the built-in templates with fresh IDs.
func Defaults() []Prompt {
	defaults := []Prompt{
		{
			Name: "User Story Map",
			Text: "Help me create a user story map with the following structure:\n\nUser Activities (Top Level):\n[Activities]\n\nUser Tasks (Second Level):\n[Tasks]\n\nUser Stories (Details):\n[Stories]\n\nContext:\n[Project/Feature Context]",
		},
		{
			Name: "Customer Journey Map",
			Text: "Help me create a customer journey map with these components:\n\nPersona:\n[Customer Type]\n\nStages:\n[Journey Stages]\n\nActions:\n[Customer Actions]\n\nThoughts & Feelings:\n[Customer Experience]\n\nPain Points:\n[Issues & Challenges]\n\nOpportunities:\n[Potential Improvements]",
		},
		{
			Name: "Page Navigations",
			Text: "Help me design the page structure and navigation:\n\nSite Map:\n[Page Hierarchy]\n\nNavigation Flow:\n[User Navigation Paths]\n\nPage Components:\n[Key UI Elements]\n\nInteraction Points:\n[User Interactions]",
		},
		{
			Name: "Page User Stories",
			Text: "Help me define the page requirements and user stories:\n\nPage Purpose:\n[Main Objectives]\n\nUser Stories:\n[As a... I want... So that...]\n\nAcceptance Criteria:\n[Criteria List]\n\nTechnical Notes:\n[Implementation Details]",
		},
		{
			Name: "Sprint Plan",
			Text: "Help me create a sprint plan:\n\nSprint Goal:\n[Objective]\n\nDeliverables:\n[User Stories/Tasks]\n\nEstimates:\n[Story Points/Time]\n\nDependencies:\n[Blockers/Prerequisites]\n\nRisks:\n[Potential Issues]",
		},
	}
	for i := range defaults {
		defaults[i].ID = uuid.NewString()
	}
	return defaults
}
