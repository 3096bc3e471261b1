package model

// Result is the success envelope for every RPC and action response.
type Result struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

// OK wraps data in the success envelope.
func OK(data any) Result {
	return Result{OK: true, Data: data}
}

// ErrorBody is the failure envelope. Error carries the human-readable
// category, Message the specific description, Code the stable machine code.
type ErrorBody struct {
	OK             bool           `json:"ok"`
	Error          string         `json:"error"`
	Message        string         `json:"message"`
	Code           string         `json:"code"`
	Details        map[string]any `json:"details,omitempty"`
	RequiresReauth bool           `json:"requiresReauth,omitempty"`
}

// NewErrorBody builds the failure envelope from an APIError.
func NewErrorBody(e *APIError, category string) ErrorBody {
	return ErrorBody{
		OK:             false,
		Error:          category,
		Message:        e.Message,
		Code:           e.Code,
		Details:        e.Details,
		RequiresReauth: e.RequiresReauth,
	}
}
