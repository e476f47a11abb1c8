package policy

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"ekklesia.app/internal/auth"
	"ekklesia.app/internal/obs"
)

// Reason explains how a decision was reached.
type Reason string

const (
	ReasonBypass      Reason = "role_bypass"
	ReasonNoPolicy    Reason = "no_policy"
	ReasonUnparseable Reason = "unparseable_policy"
	ReasonReadFailure Reason = "policy_read_failure"
	ReasonUnset       Reason = "unset"
	ReasonExplicit    Reason = "explicit"
)

// Decision is the outcome of a permission check.
type Decision struct {
	Allowed bool
	Action  Action
	Reason  Reason
}

func allow(action Action, reason Reason) Decision {
	return Decision{Allowed: true, Action: action, Reason: reason}
}

// Message is a caller-facing explanation of a denial.
func (d Decision) Message() string {
	if d.Allowed {
		return ""
	}
	return fmt.Sprintf("permission denied: %s is not allowed for your role", d.Action)
}

// Reader fetches raw setting values; a nil value means no row.
type Reader interface {
	Get(ctx context.Context, tenantID *int64, key string) (*string, error)
}

// Evaluator is the dynamic permission check. It never fails: anything short of
// an explicit false in the tenant's document allows.
type Evaluator struct {
	reader Reader
	log    logrus.FieldLogger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger overrides the logger used for read failures.
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.log = l
		}
	}
}

// NewEvaluator constructs an evaluator reading documents through reader.
func NewEvaluator(reader Reader, opts ...Option) *Evaluator {
	e := &Evaluator{reader: reader, log: obs.Logger()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate decides whether id may perform action within tenantID. A nil
// tenant reads the global document.
func (e *Evaluator) Evaluate(ctx context.Context, id auth.Identity, tenantID *int64, action Action) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			e.readFailure(id, tenantID, action, fmt.Errorf("panic: %v", r))
			d = allow(action, ReasonReadFailure)
		}
		obs.PolicyDecision(decisionLabel(d))
	}()

	if id.Role.BypassesPolicy() {
		return allow(action, ReasonBypass)
	}
	if e.reader == nil {
		return allow(action, ReasonNoPolicy)
	}
	raw, err := e.reader.Get(ctx, tenantID, SettingKey)
	if err != nil {
		e.readFailure(id, tenantID, action, err)
		return allow(action, ReasonReadFailure)
	}
	if raw == nil {
		return allow(action, ReasonNoPolicy)
	}
	doc, err := ParseDocument(*raw)
	if err != nil {
		return allow(action, ReasonUnparseable)
	}
	granted, present := doc.Lookup(id.Role, action)
	if !present {
		return allow(action, ReasonUnset)
	}
	return Decision{Allowed: granted, Action: action, Reason: ReasonExplicit}
}

func (e *Evaluator) readFailure(id auth.Identity, tenantID *int64, action Action, err error) {
	obs.PolicyReadFailure()
	fields := logrus.Fields{
		"action":  string(action),
		"role":    string(id.Role),
		"user_id": id.ID,
		"error":   err.Error(),
	}
	if tenantID != nil {
		fields["tenant_id"] = *tenantID
	}
	e.log.WithFields(fields).Warn("policy read failed; allowing")
}

func decisionLabel(d Decision) string {
	if d.Allowed {
		return "allow"
	}
	return "deny"
}
