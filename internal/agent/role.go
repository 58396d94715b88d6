package agent

import (
	"fmt"
)

// Role identifies an agent's position in the pipeline. Context assembly and
// output routing dispatch on the Role tag, never on name strings.
type Role int

const (
	RoleProjectManager Role = iota
	RoleArchitect
	RoleArchitectCritic
	RoleTestCaseWriter
	RoleTestCritic
	RoleAutomationArchitect
	RoleAPIAutomation
	RoleDBAutomation
	RoleCLIAutomation
	RoleGUIAutomation
	RoleDocumentation
)

var roleNames = map[Role]string{
	RoleProjectManager:      "project_manager",
	RoleArchitect:           "architect",
	RoleArchitectCritic:     "architect_critic",
	RoleTestCaseWriter:      "test_case_writer",
	RoleTestCritic:          "test_critic",
	RoleAutomationArchitect: "automation_architect",
	RoleAPIAutomation:       "api_automation",
	RoleDBAutomation:        "db_automation",
	RoleCLIAutomation:       "cli_automation",
	RoleGUIAutomation:       "gui_automation",
	RoleDocumentation:       "documentation",
}

// Roles returns every role in pipeline order.
func Roles() []Role {
	return []Role{
		RoleProjectManager,
		RoleArchitect,
		RoleArchitectCritic,
		RoleTestCaseWriter,
		RoleTestCritic,
		RoleAutomationArchitect,
		RoleAPIAutomation,
		RoleDBAutomation,
		RoleCLIAutomation,
		RoleGUIAutomation,
		RoleDocumentation,
	}
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// ParseRole converts the wire/config form back to a Role.
func ParseRole(s string) (Role, error) {
	for role, name := range roleNames {
		if name == s {
			return role, nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

// DisplayName is the human-readable agent name used in logs and in the
// created_by field of results.
func (r Role) DisplayName() string {
	switch r {
	case RoleProjectManager:
		return "Project Manager"
	case RoleArchitect:
		return "Test Architect"
	case RoleArchitectCritic:
		return "Test Architect Critic"
	case RoleTestCaseWriter:
		return "Test Case Writer"
	case RoleTestCritic:
		return "Test Critic"
	case RoleAutomationArchitect:
		return "Automation Architect"
	case RoleAPIAutomation:
		return "API Automation Engineer"
	case RoleDBAutomation:
		return "Database Automation Engineer"
	case RoleCLIAutomation:
		return "CLI Automation Engineer"
	case RoleGUIAutomation:
		return "GUI Automation Engineer"
	case RoleDocumentation:
		return "Documentation Writer"
	default:
		return r.String()
	}
}

// OutputDir returns the subdirectory of the run's output root this role's
// artifacts are written to. An empty string means the output root itself.
func (r Role) OutputDir() string {
	switch r {
	case RoleArchitect, RoleArchitectCritic:
		return "test_plans"
	case RoleTestCaseWriter, RoleTestCritic:
		return "test_cases"
	case RoleAutomationArchitect, RoleAPIAutomation, RoleDBAutomation, RoleCLIAutomation, RoleGUIAutomation:
		return "automation_code"
	case RoleDocumentation:
		return "documentation"
	default:
		return ""
	}
}

// SourceType returns the knowledge source type this role's retrieval is
// restricted to; empty means unrestricted. Currently no role pins a source
// type, but the dispatch point exists so one can (e.g. restricting the
// documentation writer to Confluence pages).
func (r Role) SourceType() string {
	return ""
}

// IsCritic reports whether the role reviews another agent's output; critic
// results carry a review_status field.
func (r Role) IsCritic() bool {
	return r == RoleArchitectCritic || r == RoleTestCritic
}

// IsAutomation reports whether the role generates automation code.
func (r Role) IsAutomation() bool {
	switch r {
	case RoleAPIAutomation, RoleDBAutomation, RoleCLIAutomation, RoleGUIAutomation:
		return true
	default:
		return false
	}
}
