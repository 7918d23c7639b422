package api

// CreateRunRequest is the HTTP request body for POST /api/v1/runs and the
// mode-specific aliases.
type CreateRunRequest struct {
	Mode           string       `json:"mode"`
	Goal           string       `json:"goal"`
	Depth          string       `json:"depth,omitempty"`
	Focus          string       `json:"focus,omitempty"`
	Files          []FileUpload `json:"files,omitempty"`
	ChartTypes     []string     `json:"chartTypes,omitempty"`
	TemplateType   string       `json:"templateType,omitempty"`
	PlanFormat     string       `json:"planFormat,omitempty"`
	AllowWebSearch bool         `json:"allowWebSearch,omitempty"`
}

// FileUpload is one uploaded document in a run request. Content is the
// extracted plain text, not the raw upload.
type FileUpload struct {
	UploadID string `json:"uploadId"`
	FileName string `json:"fileName"`
	Content  string `json:"content"`
}

// ChatRequest is the HTTP request body for POST /api/v1/runs/:id/chat.
type ChatRequest struct {
	Question string `json:"question"`
}

// RegenerateRequest is the HTTP request body for POST /api/v1/runs/:id/regenerate.
type RegenerateRequest struct {
	Feedback string `json:"feedback"`
}
