package core

import "fmt"

// DefaultRoles returns the canonical specialist pool. The pipeline accepts
// any ordered role set; this is the one the CLI and server use.
func DefaultRoles() []Role {
	return []Role{
		{
			Name:  RoleResearch,
			Focus: "factual background and foundational information",
			Instruction: "You are a research specialist focused on gathering comprehensive " +
				"factual information. Conduct thorough research and provide detailed, " +
				"well-sourced findings with high accuracy.",
		},
		{
			Name:  RoleAnalysis,
			Focus: "achievements, contributions, and impact analysis",
			Instruction: "You are an analysis expert focused on evaluating achievements, " +
				"contributions, and impact. Provide deep analytical insights with supporting " +
				"evidence and quantitative assessments where possible.",
		},
		{
			Name:  RolePerspective,
			Focus: "alternative viewpoints and broader context",
			Instruction: "You are a perspective analyst focused on alternative viewpoints " +
				"and broader context. Explore different angles, potential criticisms, and " +
				"various stakeholder perspectives to provide comprehensive understanding.",
		},
		{
			Name:  RoleVerification,
			Focus: "fact-checking and current status validation",
			Instruction: "You are a fact-checking specialist focused on verification and " +
				"current status validation. Cross-reference information from multiple angles " +
				"and provide confidence assessments for all claims.",
		},
	}
}

// ValidateRoles checks a role set is usable: non-empty, unique names, and an
// instruction per role.
func ValidateRoles(roles []Role) error {
	if len(roles) == 0 {
		return fmt.Errorf("at least one role is required")
	}
	seen := make(map[string]bool, len(roles))
	for _, r := range roles {
		if r.Name == "" {
			return fmt.Errorf("role with empty name")
		}
		if seen[r.Name] {
			return fmt.Errorf("duplicate role: %s", r.Name)
		}
		if r.Instruction == "" {
			return fmt.Errorf("role %s has no instruction", r.Name)
		}
		seen[r.Name] = true
	}
	return nil
}

// roleNames returns the names of a role set in construction order.
func roleNames(roles []Role) []string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.Name
	}
	return names
}

// specialistPrompt builds the prompt for one specialist call. The shared
// query and the role-scoped sub-question are the only inputs a specialist
// sees; tasks share no data with each other.
func specialistPrompt(role Role, query, question string) string {
	return fmt.Sprintf("%s\n\nContext: %s\nSpecific task: %s", role.Instruction, query, question)
}
