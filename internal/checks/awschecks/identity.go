package awschecks

import (
	"encoding/json"

	"github.com/yairfalse/warden/internal/check"
	"github.com/yairfalse/warden/pkg/finding"
	"github.com/yairfalse/warden/pkg/resource"
)

// IAMRoleTrustWildcard fails roles whose trust policy lets any principal
// assume them without a condition. Service-linked roles are managed by AWS
// and skipped. A role whose policy is missing or unreadable yields MANUAL.
// The first offending statement decides.
func IAMRoleTrustWildcard() check.Check {
	md := metadata("iam", "role_trust_no_wildcard_principal", finding.SeverityCritical, "identity")
	return check.PerResource(md, func(r resource.Record) (finding.Draft, bool) {
		if r.Bool("service_linked", false) {
			return finding.Draft{}, false
		}
		doc, ok := r.Attr("assume_role_policy")
		if !ok {
			return finding.Manual(r, "IAM role %s trust policy was not reported.", r.DisplayName()), true
		}
		statements, err := parseStatements(doc)
		if err != nil {
			return finding.Manual(r, "IAM role %s trust policy could not be parsed: %v", r.DisplayName(), err), true
		}
		for i, st := range statements {
			if st.Effect == "Allow" && !st.conditional() && wildcardPrincipal(st.Principal) {
				return finding.Fail(r, "IAM role %s trust policy statement %d allows any principal.", r.DisplayName(), i+1), true
			}
		}
		return finding.Pass(r, "IAM role %s trust policy names its principals.", r.DisplayName()), true
	})
}

type policyDocument struct {
	Statement json.RawMessage `json:"Statement"`
}

type statement struct {
	Effect    string          `json:"Effect"`
	Principal json.RawMessage `json:"Principal"`
	Condition json.RawMessage `json:"Condition"`
}

func (s statement) conditional() bool {
	return len(s.Condition) > 0 && string(s.Condition) != "null" && string(s.Condition) != "{}"
}

// parseStatements accepts a Statement given as a list or a single object.
func parseStatements(doc string) ([]statement, error) {
	var pd policyDocument
	if err := json.Unmarshal([]byte(doc), &pd); err != nil {
		return nil, err
	}
	if len(pd.Statement) == 0 {
		return nil, nil
	}
	var list []statement
	if err := json.Unmarshal(pd.Statement, &list); err == nil {
		return list, nil
	}
	var one statement
	if err := json.Unmarshal(pd.Statement, &one); err != nil {
		return nil, err
	}
	return []statement{one}, nil
}

// wildcardPrincipal matches "*" and {"AWS": "*"} in either string or list
// form.
func wildcardPrincipal(raw json.RawMessage) bool {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s == "*"
	}
	var m map[string]json.RawMessage
	if json.Unmarshal(raw, &m) != nil {
		return false
	}
	value, ok := m["AWS"]
	if !ok {
		return false
	}
	if json.Unmarshal(value, &s) == nil {
		return s == "*"
	}
	var list []string
	if json.Unmarshal(value, &list) != nil {
		return false
	}
	for _, p := range list {
		if p == "*" {
			return true
		}
	}
	return false
}

// KMSKeyRotation fails enabled symmetric customer keys without automatic
// rotation. Other keys cannot rotate and are skipped. rotation_enabled
// defaults to false.
func KMSKeyRotation() check.Check {
	md := metadata("kms", "cmk_rotation_enabled", finding.SeverityMedium, "encryption")
	return check.PerResource(md, func(r resource.Record) (finding.Draft, bool) {
		if r.AttrOr("key_state", "") != "Enabled" || r.AttrOr("key_spec", "") != "SYMMETRIC_DEFAULT" {
			return finding.Draft{}, false
		}
		if !r.Bool("rotation_enabled", false) {
			return finding.Fail(r, "KMS key %s does not rotate automatically.", r.DisplayName()), true
		}
		return finding.Pass(r, "KMS key %s rotates automatically.", r.DisplayName()), true
	})
}
