package compiler

import (
	"sort"
	"time"
)

// AssignmentInput is the subset of a PolicyAssignment row the compiler needs.
type AssignmentInput struct {
	ID        string
	PolicyID  string
	Priority  int
	Mode      string
	CreatedAt time.Time
}

// PolicyInput is the subset of an active Policy row the compiler needs,
// keyed by policy id by the caller.
type PolicyInput struct {
	ID       string
	Name     string
	Document Document
}

type Source struct {
	AssignmentID string `json:"assignment_id"`
	PolicyID     string `json:"policy_id"`
	PolicyName   string `json:"policy_name"`
	Priority     int    `json:"priority"`
	Mode         string `json:"mode"`
}

type Conflict struct {
	Key          string `json:"key"`
	WinnerPolicy string `json:"winner_policy"`
	LoserPolicy  string `json:"loser_policy"`
	Reason       string `json:"reason"`
}

type SkippedAssignment struct {
	AssignmentID string `json:"assignment_id"`
	PolicyID     string `json:"policy_id"`
	Reason       string `json:"reason"`
}

type CompiledEffectivePolicy struct {
	Document     Document            `json:"document"`
	Hash         string              `json:"hash"`
	SourcesByKey map[string]Source   `json:"sources_by_key"`
	Conflicts    []Conflict          `json:"conflicts"`
	ModeByKey    map[string]string   `json:"mode_by_key"`
	Skipped      []SkippedAssignment `json:"skipped"`
}

func keyString(k Key) string {
	return k.Type + "/" + k.ID
}

// CanonicalOrder sorts assignments by the total order of spec §4.3:
// priority ascending, then created_at ascending, then assignment id
// lexicographically. The sort is stable so ties are only ever broken by
// these three fields, never by input order.
func CanonicalOrder(assignments []AssignmentInput) []AssignmentInput {
	ordered := make([]AssignmentInput, len(assignments))
	copy(ordered, assignments)

	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return ordered
}

// Compile merges a device's assignments into one conflict-resolved
// effective policy, per spec §4.3. It is a pure function of its inputs:
// the same (assignments, policies) always produces byte-identical output.
func Compile(assignments []AssignmentInput, policies map[string]PolicyInput) CompiledEffectivePolicy {
	ordered := CanonicalOrder(assignments)

	result := CompiledEffectivePolicy{
		SourcesByKey: make(map[string]Source),
		ModeByKey:    make(map[string]string),
		Conflicts:    []Conflict{},
		Skipped:      []SkippedAssignment{},
	}

	resources := []Resource{}
	insertedAt := make(map[string]int) // key string -> index into resources

	for _, a := range ordered {
		policy, ok := policies[a.PolicyID]
		if !ok {
			result.Skipped = append(result.Skipped, SkippedAssignment{
				AssignmentID: a.ID,
				PolicyID:     a.PolicyID,
				Reason:       "policy_inactive_or_missing",
			})
			continue
		}

		source := Source{
			AssignmentID: a.ID,
			PolicyID:     policy.ID,
			PolicyName:   policy.Name,
			Priority:     a.Priority,
			Mode:         a.Mode,
		}

		for _, resource := range policy.Document.Resources {
			ks := keyString(resource.Key())

			if _, exists := insertedAt[ks]; exists {
				winner := result.SourcesByKey[ks]
				result.Conflicts = append(result.Conflicts, Conflict{
					Key:          ks,
					WinnerPolicy: winner.PolicyName,
					LoserPolicy:  policy.Name,
					Reason:       "first-wins-by-priority",
				})
				continue
			}

			insertedAt[ks] = len(resources)
			resources = append(resources, resource)
			result.SourcesByKey[ks] = source
			result.ModeByKey[ks] = a.Mode
		}
	}

	result.Document = Document{Resources: resources}

	hash, err := Hash(result.Document)
	if err != nil {
		// CanonicalJSON only fails on inputs containing types it cannot
		// encode; Document is always built from parsed JSON and therefore
		// always encodable.
		panic("compiler: failed to hash effective policy: " + err.Error())
	}
	result.Hash = hash

	return result
}
