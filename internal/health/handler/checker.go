// Package handler reports liveness and readiness over HTTP and grpc.health.v1.
package handler

import (
	"context"
	"sort"
	"time"
)

// checkTimeout bounds every readiness check.
const checkTimeout = 2 * time.Second

// Pinger is used to verify database connectivity (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker verifies the policy engine (e.g. *engine.OPAEvaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Check is a named readiness check.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Report is the outcome of one readiness pass. Checks maps each check to "ok" or its error.
type Report struct {
	Ready  bool              `json:"ready"`
	Checks map[string]string `json:"checks"`
}

// Checker runs readiness checks.
type Checker struct {
	checks []Check
}

// NewChecker returns a checker over the database, the policy engine and extra checks.
// pinger and policy may be nil; then those checks are skipped.
func NewChecker(pinger Pinger, policy PolicyChecker, extra ...Check) *Checker {
	var checks []Check
	if pinger != nil {
		checks = append(checks, Check{Name: "database", Fn: pinger.PingContext})
	}
	if policy != nil {
		checks = append(checks, Check{Name: "policy_engine", Fn: policy.HealthCheck})
	}
	checks = append(checks, extra...)
	sort.SliceStable(checks, func(i, j int) bool { return checks[i].Name < checks[j].Name })
	return &Checker{checks: checks}
}

// Check runs every check and reports ready only when all pass.
func (c *Checker) Check(ctx context.Context) Report {
	r := Report{Ready: true, Checks: make(map[string]string, len(c.checks))}
	for _, chk := range c.checks {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := chk.Fn(cctx)
		cancel()
		if err != nil {
			r.Ready = false
			r.Checks[chk.Name] = err.Error()
			continue
		}
		r.Checks[chk.Name] = "ok"
	}
	return r
}
