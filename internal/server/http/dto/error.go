package dto

// Error codes shared by the server and its clients.
const (
	CodeVersionConflict = "VERSION_CONFLICT"
	CodeConflict        = "CONFLICT"
	CodeNotFound        = "NOT_FOUND"
	CodeExpired         = "EXPIRED"
	CodeValidation      = "VALIDATION"
	CodeForbidden       = "FORBIDDEN"
	CodeBadRequest      = "BAD_REQUEST"
	CodeInternal        = "INTERNAL"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code            string   `json:"code"`
	Message         string   `json:"message"`
	Problems        []string `json:"problems,omitempty"`
	CurrentVersion  int64    `json:"current_version,omitempty"`
	ExpectedVersion int64    `json:"expected_version,omitempty"`
}
