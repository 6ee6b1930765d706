package dto

type ImportAccountsRequest struct {
	// Text holds one credential line per row, in the
	// email----password----client_id----refresh_token format.
	Text    string `json:"text" binding:"required"`
	GroupID string `json:"groupId"`
}

type ImportAccountsResponse struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}
