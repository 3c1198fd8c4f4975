// Copyright (c) 2025 SpecterX-AHM
//
// This file is part of WebAuthn-Authenticator.

package http

// Form field names for the start and action endpoints.
const (
	FieldUsername           = "username"
	FieldDisplayName        = "displayName"
	FieldCredentialNickname = "credentialNickname"
	FieldRequireResidentKey = "requireResidentKey"
	FieldSessionToken       = "sessionToken"
	FieldCredentialID       = "credentialId"
)

// FailureResponse is the envelope for ceremony rejections. Messages is
// the ordered failure list produced by the service.
type FailureResponse struct {
	Messages []string `json:"messages"`
}

// IndexResponse lists the endpoints of the ceremony API.
type IndexResponse struct {
	Actions IndexActions `json:"actions"`
	Info    IndexInfo    `json:"info"`
}

// IndexActions holds the ceremony endpoint paths.
type IndexActions struct {
	Register      string `json:"register"`
	Authenticate  string `json:"authenticate"`
	Deregister    string `json:"deregister"`
	DeleteAccount string `json:"deleteAccount"`
}

// IndexInfo holds the metadata endpoint paths.
type IndexInfo struct {
	Version string `json:"version"`
}

// VersionResponse reports the server version.
type VersionResponse struct {
	Version string `json:"version"`
}
