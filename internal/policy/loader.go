package policy

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// LoadError describes a failure to load or validate a policy directory.
type LoadError struct {
	Code    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Load error codes.
const (
	ErrCodeNotFound    = "POLICY_NOT_FOUND"
	ErrCodeLoadFailed  = "POLICY_LOAD_FAILED"
	ErrCodeBuildFailed = "POLICY_BUILD_FAILED"
	ErrCodeInvalid     = "POLICY_INVALID"
)

// Load reads the CUE files in dir and produces the effective policy.
// The files must define a top-level `policy` struct; fields left unset
// take their Default values. An empty dir string returns Default
// unchanged.
func Load(dir string) (Policy, error) {
	p := Default()
	if dir == "" {
		return p, nil
	}

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return p, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("policy directory not found: %s", dir)}
	}
	if err != nil {
		return p, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing policy directory: %v", err)}
	}
	if !info.IsDir() {
		return p, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	ctx := cuecontext.New()
	// Package "_" loads files without a package clause; policy files
	// are standalone documents, not CUE packages.
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir, Package: "_"})
	if len(instances) == 0 {
		return p, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return p, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return p, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	policyVal := value.LookupPath(cue.ParsePath("policy"))
	if !policyVal.Exists() {
		return p, &LoadError{Code: ErrCodeInvalid, Message: "no top-level `policy` struct defined"}
	}

	var loaded Policy
	if err := policyVal.Decode(&loaded); err != nil {
		return p, &LoadError{Code: ErrCodeInvalid, Message: fmt.Sprintf("decoding policy: %v", err)}
	}
	merge(&p, loaded)

	if err := validate(p); err != nil {
		return p, err
	}
	return p, nil
}

// merge overlays loaded fields onto defaults; zero values keep the
// default.
func merge(base *Policy, loaded Policy) {
	if loaded.TargetAlias != "" {
		base.TargetAlias = loaded.TargetAlias
	}
	if loaded.Placeholders != nil {
		base.Placeholders = loaded.Placeholders
	}
	if loaded.ProtectedFields != nil {
		base.ProtectedFields = loaded.ProtectedFields
	}
	if loaded.CollisionRetryLimit != 0 {
		base.CollisionRetryLimit = loaded.CollisionRetryLimit
	}
	if loaded.FillValue != "" {
		base.FillValue = loaded.FillValue
	}
	if loaded.MinTextGUIDLength != 0 {
		base.MinTextGUIDLength = loaded.MinTextGUIDLength
	}
}

func validate(p Policy) error {
	if p.TargetAlias == "" {
		return &LoadError{Code: ErrCodeInvalid, Message: "targetAlias must not be empty"}
	}
	if p.CollisionRetryLimit < 1 {
		return &LoadError{Code: ErrCodeInvalid, Message: "collisionRetryLimit must be at least 1"}
	}
	if p.MinTextGUIDLength < 0 {
		return &LoadError{Code: ErrCodeInvalid, Message: "minTextGuidLength must not be negative"}
	}
	return nil
}
