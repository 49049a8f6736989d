// Package validation checks pipeline definitions.
//
// Validate runs go-playground/validator struct tags over decoded manifests;
// Validator collects programmatic checks such as argument uniqueness. Both
// report through a single INVALID_INPUT *errors.AppError whose "fields"
// detail lists each failure.
//
//	v := validation.New()
//	v.Required("name", name).Unique("stages", names)
//	if err := v.Err(); err != nil { ... }
package validation
