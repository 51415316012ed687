package transfer

type TwitterMediaUploadResponse struct {
	MediaID          int64                  `json:"media_id"`
	MediaIDString    string                 `json:"media_id_string"`
	Size             int64                  `json:"size,omitempty"`
	ExpiresAfterSecs int                    `json:"expires_after_secs,omitempty"`
	ProcessingInfo   *TwitterProcessingInfo `json:"processing_info,omitempty"`
}

type TwitterProcessingInfo struct {
	State           string                  `json:"state"`
	CheckAfterSecs  int                     `json:"check_after_secs,omitempty"`
	ProgressPercent int                     `json:"progress_percent,omitempty"`
	Error           *TwitterProcessingError `json:"error,omitempty"`
}

type TwitterProcessingError struct {
	Code    int    `json:"code"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

const (
	TwitterProcessingPending    = "pending"
	TwitterProcessingInProgress = "in_progress"
	TwitterProcessingSucceeded  = "succeeded"
	TwitterProcessingFailed     = "failed"
)

type TweetRequest struct {
	Text  string      `json:"text"`
	Media *TweetMedia `json:"media,omitempty"`
}

type TweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type TweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}
