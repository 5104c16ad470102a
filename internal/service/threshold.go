package service

import (
	"sort"

	"github.com/onayflow/be-approvals/internal/platform/errors"
	"github.com/onayflow/be-approvals/internal/repository"
)

// ValidateThresholdRules checks that a workflow's rules partition the
// non-negative amount axis: sorted by min_amount they must start at zero, be
// contiguous (each max equals the next min), and only the last rule may (and
// must) be unbounded. Violations fail the workflow at save time, never
// during routing.
func ValidateThresholdRules(rules []repository.ThresholdRule) error {
	if len(rules) == 0 {
		return repository.ErrInvalidThresholdPartition
	}

	sorted := make([]repository.ThresholdRule, len(rules))
	copy(sorted, rules)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].MinAmount < sorted[j].MinAmount
	})

	if sorted[0].MinAmount != 0 {
		return repository.ErrInvalidThresholdPartition
	}

	for i, rule := range sorted {
		if err := validateSteps(rule.Steps); err != nil {
			return err
		}

		last := i == len(sorted)-1
		if last {
			if rule.MaxAmount != nil {
				return repository.ErrInvalidThresholdPartition
			}
			continue
		}
		if rule.MaxAmount == nil || *rule.MaxAmount != sorted[i+1].MinAmount {
			return repository.ErrInvalidThresholdPartition
		}
	}
	return nil
}

// validateSteps checks a rule's step list: 1-based, strictly increasing,
// each step naming a role or an approver.
func validateSteps(steps []repository.StepSpec) error {
	if len(steps) == 0 {
		return errors.InvalidInput("required_steps", "a rule must define at least one step")
	}
	for i, s := range steps {
		if s.Step != i+1 {
			return errors.InvalidInput("required_steps", "step numbers must be 1-based and consecutive")
		}
		if s.ApproverRole == nil && s.ApproverID == nil {
			return errors.InvalidInput("required_steps", "each step needs an approver_role or approver_id")
		}
		if s.RequiredApprovals < 0 {
			return errors.InvalidInput("required_approvals", "must not be negative")
		}
		// A bound approver holds exactly one vote, so a higher fan-in
		// threshold could never be reached.
		if s.ApproverID != nil && s.RequiredApprovals > 1 {
			return errors.InvalidInput("required_approvals", "a step bound to a single approver cannot require multiple approvals")
		}
	}
	return nil
}

// SelectRule returns the single rule whose [min, max) interval contains
// amount. A workflow that validated at save time always matches; a miss
// signals a misconfiguration and must propagate to the submitter.
func SelectRule(wf *repository.ApprovalWorkflow, amount int64) (*repository.ThresholdRule, error) {
	for i := range wf.Rules {
		if wf.Rules[i].Contains(amount) {
			return &wf.Rules[i], nil
		}
	}
	return nil, repository.ErrNoMatchingRule
}
