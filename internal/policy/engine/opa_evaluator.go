package engine

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/open-policy-agent/opa/v1/rego"
	"go.uber.org/zap"

	"authcore/internal/logger"
)

const linkPolicyQuery = "data.authcore.linking.provision"

// DefaultLinkPolicy rejects every unlinked identity unless auto-provisioning is enabled. With
// require_verified_email set, only identities whose provider verified the email qualify. An email
// already owned by another account is never auto-provisioned.
const DefaultLinkPolicy = `package authcore.linking

default provision := false

provision if {
	input.config.auto_provision
	input.identity.subject != ""
	not input.identity.email_taken
	email_acceptable
}

email_acceptable if {
	not input.config.require_verified_email
}

email_acceptable if {
	input.identity.email_verified
}
`

// LinkSettings are the deployment switches exposed to the policy as input.config.
type LinkSettings struct {
	AutoProvision        bool
	RequireVerifiedEmail bool
}

// OPAEvaluator evaluates the account-linking policy with an embedded OPA engine. The policy is
// compiled once at construction.
type OPAEvaluator struct {
	query    rego.PreparedEvalQuery
	settings LinkSettings
	log      *zap.Logger
}

// NewOPAEvaluator compiles policy (DefaultLinkPolicy when empty). The policy must define
// data.authcore.linking.provision for every input.
func NewOPAEvaluator(ctx context.Context, policy string, settings LinkSettings, log *zap.Logger) (*OPAEvaluator, error) {
	if strings.TrimSpace(policy) == "" {
		policy = DefaultLinkPolicy
	}
	pq, err := rego.New(
		rego.Query(linkPolicyQuery),
		rego.Module("link_policy.rego", policy),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile link policy: %w", err)
	}
	e := &OPAEvaluator{query: pq, settings: settings, log: logger.OrNop(log)}
	if err := e.HealthCheck(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// LoadPolicyFile reads a Rego policy from path. An empty path returns "" (use the default policy).
func LoadPolicyFile(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read link policy %s: %w", path, err)
	}
	return string(b), nil
}

// HealthCheck evaluates the compiled policy against a minimal input. Returns nil when it yields a
// boolean decision.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.eval(ctx, LinkInput{})
	return err
}

// ShouldProvision evaluates the policy for in.
func (e *OPAEvaluator) ShouldProvision(ctx context.Context, in LinkInput) (bool, error) {
	ok, err := e.eval(ctx, in)
	if err != nil {
		logger.From(ctx, e.log).Warn("policy: link evaluation failed; rejecting",
			zap.String("provider", string(in.Provider)), zap.Error(err))
		return false, err
	}
	return ok, nil
}

func (e *OPAEvaluator) eval(ctx context.Context, in LinkInput) (bool, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(e.buildInput(in)))
	if err != nil {
		return false, fmt.Errorf("eval link policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, fmt.Errorf("link policy query returned no result")
	}
	v, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("link policy returned %T, want bool", rs[0].Expressions[0].Value)
	}
	return v, nil
}

func (e *OPAEvaluator) buildInput(in LinkInput) map[string]interface{} {
	return map[string]interface{}{
		"config": map[string]interface{}{
			"auto_provision":         e.settings.AutoProvision,
			"require_verified_email": e.settings.RequireVerifiedEmail,
		},
		"identity": map[string]interface{}{
			"provider":       string(in.Provider),
			"subject":        in.Subject,
			"email":          in.Email,
			"email_verified": in.EmailVerified,
			"email_taken":    in.EmailTaken,
		},
	}
}
