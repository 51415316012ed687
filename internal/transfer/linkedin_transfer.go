package transfer

const LinkedInUploadMechanism = "com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest"

type LinkedInRegisterUploadRequest struct {
	RegisterUploadRequest LinkedInRegisterUpload `json:"registerUploadRequest"`
}

type LinkedInRegisterUpload struct {
	Recipes              []string                      `json:"recipes"`
	Owner                string                        `json:"owner"`
	ServiceRelationships []LinkedInServiceRelationship `json:"serviceRelationships"`
}

type LinkedInServiceRelationship struct {
	RelationshipType string `json:"relationshipType"`
	Identifier       string `json:"identifier"`
}

type LinkedInUploadRequest struct {
	UploadURL string            `json:"uploadUrl"`
	Headers   map[string]string `json:"headers,omitempty"`
}

type LinkedInRegisterUploadResponse struct {
	Value struct {
		Asset           string                           `json:"asset"`
		MediaArtifact   string                           `json:"mediaArtifact,omitempty"`
		UploadMechanism map[string]LinkedInUploadRequest `json:"uploadMechanism"`
	} `json:"value"`
}

type LinkedInUGCPost struct {
	Author          string                  `json:"author"`
	LifecycleState  string                  `json:"lifecycleState"`
	SpecificContent LinkedInSpecificContent `json:"specificContent"`
	Visibility      map[string]string       `json:"visibility"`
}

type LinkedInSpecificContent struct {
	ShareContent LinkedInShareContent `json:"com.linkedin.ugc.ShareContent"`
}

type LinkedInShareContent struct {
	ShareCommentary    LinkedInText         `json:"shareCommentary"`
	ShareMediaCategory string               `json:"shareMediaCategory"`
	Media              []LinkedInShareMedia `json:"media,omitempty"`
}

type LinkedInText struct {
	Text string `json:"text"`
}

type LinkedInShareMedia struct {
	Status      string       `json:"status"`
	Description LinkedInText `json:"description"`
	Media       string       `json:"media"`
	Title       LinkedInText `json:"title"`
}

type LinkedInUGCPostResponse struct {
	ID string `json:"id"`
}
