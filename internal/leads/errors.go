package leads

import "errors"

var (
	// ErrInvalidName is returned when the name is invalid
	ErrInvalidName = errors.New("leads: name is required")

	// ErrMissingPhone is returned when the phone has no digits
	ErrMissingPhone = errors.New("leads: phone is required")

	// ErrMissingTenantID is returned when the tenant is unknown
	ErrMissingTenantID = errors.New("leads: tenant id is required")

	// ErrLeadNotFound is returned when a lead is not found
	ErrLeadNotFound = errors.New("leads: lead not found")

	// ErrLeadExists is returned when a lead already exists for the tenant and phone
	ErrLeadExists = errors.New("leads: lead already exists for phone")
)
