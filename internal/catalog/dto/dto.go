package dto

type ImportResult struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

type BulkDeleteResult struct {
	Deleted int `json:"deleted"`
}
