package rest

import (
	"github.com/dannoetc/baseliner/db"
	"github.com/dannoetc/baseliner/internal/compiler"
)

// compileForDevice loads a device's assignments and their active policies
// and runs the deterministic merge of spec §4.3. It is shared by the device
// policy endpoint and the admin debug bundle so both observe identical
// semantics.
func compileForDevice(tenantID, deviceID string) (compiler.CompiledEffectivePolicy, error) {
	assignments, err := db.ListAssignmentsForDevice(tenantID, deviceID)
	if err != nil {
		return compiler.CompiledEffectivePolicy{}, err
	}

	policyIDs := make([]string, 0, len(assignments))
	for _, a := range assignments {
		policyIDs = append(policyIDs, a.PolicyID)
	}

	policyRows, err := db.GetActivePoliciesByIDs(tenantID, policyIDs)
	if err != nil {
		return compiler.CompiledEffectivePolicy{}, err
	}

	inputs := make([]compiler.AssignmentInput, 0, len(assignments))
	for _, a := range assignments {
		inputs = append(inputs, compiler.AssignmentInput{
			ID:        a.ID,
			PolicyID:  a.PolicyID,
			Priority:  a.Priority,
			Mode:      a.Mode,
			CreatedAt: a.CreatedAt,
		})
	}

	policies := make(map[string]compiler.PolicyInput, len(policyRows))
	for id, p := range policyRows {
		doc, err := compiler.ParseDocument(p.Document)
		if err != nil {
			return compiler.CompiledEffectivePolicy{}, err
		}
		policies[id] = compiler.PolicyInput{ID: p.ID, Name: p.Name, Document: doc}
	}

	return compiler.Compile(inputs, policies), nil
}
