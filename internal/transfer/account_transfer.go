package transfer

// AccountConnection carries tokens produced by the external OAuth flow.
type AccountConnection struct {
	Platform    string `json:"platform"`
	AccountID   string `json:"account_id"`
	AccountName string `json:"account_name"`
	AccessToken string `json:"access_token"`
	TokenSecret string `json:"token_secret"`
}
