package http

// APIResponse is the envelope around every JSON body.
type APIResponse struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ValidationError describes one rejected request field.
type ValidationError struct {
	Code    string                 `json:"code,omitempty"`
	Field   string                 `json:"field,omitempty"`
	Message string                 `json:"message,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// ListDataResponse pages a filtered list; Total counts matches before the
// limit was applied.
type ListDataResponse struct {
	Rows  interface{} `json:"rows"`
	Total int         `json:"total"`
}
