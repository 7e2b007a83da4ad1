package model

import "fmt"

// GraphEmptyError means the store held zero accessible edges inside the
// requested area, even at the largest radius tried.
type GraphEmptyError struct {
	RadiusM float64
}

func (e *GraphEmptyError) Error() string {
	return fmt.Sprintf("no graph data within %.0fm of the requested area", e.RadiusM)
}

// InfeasiblePathError means graph data exists but no traversable path was
// found after exhausting radius growth and policy relaxation.
type InfeasiblePathError struct {
	Attempts    int
	LastRadiusM float64
	LastPolicy  RiskPolicy
}

func (e *InfeasiblePathError) Error() string {
	return fmt.Sprintf("no feasible path after %d attempts (last radius %.0fm, policy %s)",
		e.Attempts, e.LastRadiusM, e.LastPolicy)
}
