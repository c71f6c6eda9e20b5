package backupconfig

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kellyelton/maxbackup/internal/transport"
)

var structValidator = validator.New()

// ParseAndValidate decodes jsonText (already through pathexpand.JSONText)
// into a BackupConfig and runs A6's struct-tag validation plus the
// destination-is-not-an-ancestor-of-source invariant. On any failure it
// returns a non-empty ValidationError slice and a nil config; callers must
// not schedule any job from a config that failed validation.
func ParseAndValidate(jsonText string) (*BackupConfig, []transport.ValidationError) {
	var cfg BackupConfig
	if err := json.Unmarshal([]byte(jsonText), &cfg); err != nil {
		return nil, []transport.ValidationError{{
			Field: "JSON",
			Error: fmt.Sprintf("Invalid JSON: %v", err),
		}}
	}

	if errs := validateStruct(&cfg); len(errs) > 0 {
		return nil, errs
	}

	if errs := validateJobInvariants(&cfg); len(errs) > 0 {
		return nil, errs
	}

	return &cfg, nil
}

func validateStruct(cfg *BackupConfig) []transport.ValidationError {
	err := structValidator.Struct(cfg)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !asValidationErrors(err, &fieldErrs) {
		return []transport.ValidationError{{Field: "Backup", Error: err.Error()}}
	}

	var out []transport.ValidationError
	for _, fe := range fieldErrs {
		job, field := splitNamespace(fe.Namespace())
		out = append(out, transport.ValidationError{
			Job:   job,
			Field: field,
			Error: fmt.Sprintf("%s failed on the '%s' rule", field, fe.Tag()),
		})
	}

	return out
}

func validateJobInvariants(cfg *BackupConfig) []transport.ValidationError {
	var out []transport.ValidationError

	for i, job := range cfg.Backup.Jobs {
		if isAncestor(job.Destination, job.Source) {
			out = append(out, transport.ValidationError{
				Job:   fmt.Sprintf("Jobs[%d]", i),
				Field: "destination",
				Error: "destination must not be a proper ancestor of source",
			})
		}
	}

	return out
}

// isAncestor reports whether candidate is a proper ancestor directory of
// target, i.e. target lies strictly inside candidate.
func isAncestor(candidate, target string) bool {
	rel, err := filepath.Rel(candidate, target)
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..")
}

// splitNamespace turns a validator namespace like
// "BackupConfig.Backup.Jobs[0].Name" into a (job index label, field name)
// pair suitable for transport.ValidationError.
func splitNamespace(namespace string) (job, field string) {
	parts := strings.Split(namespace, ".")
	field = parts[len(parts)-1]

	for _, part := range parts {
		if strings.Contains(part, "Jobs[") {
			job = part
			break
		}
	}

	return job, field
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	if ve, ok := err.(validator.ValidationErrors); ok {
		*target = ve
		return true
	}
	return false
}
