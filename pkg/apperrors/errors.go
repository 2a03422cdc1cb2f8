package apperrors

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrNoSampleData    = errors.New("no sample data available")
	ErrInvalidPolicy   = errors.New("invalid scoring policy")
	ErrPlanNotApproved = errors.New("mapping plan not approved")
	ErrUnknownField    = errors.New("canonical field not in catalog")
)
