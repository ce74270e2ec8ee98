package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

const denyReasonQuery = "data.checkpoint.deny_reason"

// DefaultRegoPolicy allows everything; deployments replace it via CHECKPOINT_POLICY_FILE.
const DefaultRegoPolicy = `package checkpoint

default deny_reason := ""
`

// OPAEvaluator evaluates data.checkpoint.deny_reason with a prepared query.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles the given Rego modules (name -> source) and prepares the deny query.
// With no modules the default allow-all policy is used.
func NewOPAEvaluator(ctx context.Context, modules map[string]string) (*OPAEvaluator, error) {
	if len(modules) == 0 {
		modules = map[string]string{"checkpoint_default.rego": DefaultRegoPolicy}
	}
	compiler, err := ast.CompileModules(modules)
	if err != nil {
		return nil, fmt.Errorf("compile policies: %w", err)
	}
	q, err := rego.New(
		rego.Query(denyReasonQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare policy query: %w", err)
	}
	return &OPAEvaluator{query: q}, nil
}

// LoadOPAEvaluator reads one Rego file and compiles it. An empty path yields the default policy.
func LoadOPAEvaluator(ctx context.Context, path string) (*OPAEvaluator, error) {
	if path == "" {
		return NewOPAEvaluator(ctx, nil)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return NewOPAEvaluator(ctx, map[string]string{path: string(src)})
}

// HealthCheck evaluates the prepared query against a minimal gate scan.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.DenyReason(ctx, Input{Kind: "GATE", Status: "ACTIVE", Now: time.Now().UTC()})
	return err
}

// DenyReason evaluates the policy. An undefined result means allow.
// A defined result that is not a string is an evaluation error.
func (e *OPAEvaluator) DenyReason(ctx context.Context, in Input) (string, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(buildInput(in)))
	if err != nil {
		return "", fmt.Errorf("eval policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return "", nil
	}
	v, ok := rs[0].Expressions[0].Value.(string)
	if !ok {
		return "", fmt.Errorf("policy: deny_reason is %T, want string", rs[0].Expressions[0].Value)
	}
	return v, nil
}

func buildInput(in Input) map[string]interface{} {
	allow := make([]interface{}, len(in.GateAllowlist))
	for i, g := range in.GateAllowlist {
		allow[i] = g
	}
	m := map[string]interface{}{
		"kind":           in.Kind,
		"checkpoint_id":  in.CheckpointID,
		"zone_id":        in.ZoneID,
		"ticket_id":      in.TicketID,
		"event_id":       in.EventID,
		"holder_name":    in.HolderName,
		"status":         in.Status,
		"gate_allowlist": allow,
		"now":            in.Now.UTC().Format(time.RFC3339),
		"now_ns":         in.Now.UnixNano(),
		"entitlement":    nil,
	}
	if in.Entitlement != nil {
		m["entitlement"] = map[string]interface{}{
			"zone_id":       in.Entitlement.ZoneID,
			"zone_name":     in.Entitlement.ZoneName,
			"reentry_limit": in.Entitlement.ReentryLimit,
			"reentry_used":  in.Entitlement.ReentryUsed,
		}
	}
	return m
}
