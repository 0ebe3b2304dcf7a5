package model

import "time"

// User is the Google account linked to drivegate, stored in DynamoDB.
type User struct {
	ID                    string    `json:"id" dynamodbav:"user_id"`
	GoogleID              string    `json:"googleId" dynamodbav:"google_id"`
	Email                 string    `json:"email" dynamodbav:"email"`
	Name                  string    `json:"name" dynamodbav:"name"`
	Picture               string    `json:"picture,omitempty" dynamodbav:"picture,omitempty"`
	AccessToken           string    `json:"-" dynamodbav:"access_token"`
	EncryptedRefreshToken string    `json:"-" dynamodbav:"encrypted_refresh_token"`
	TokenExpiry           time.Time `json:"-" dynamodbav:"token_expiry"`
	CreatedAt             time.Time `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt             time.Time `json:"updatedAt" dynamodbav:"updated_at"`
}

// Session is an opaque login session bound to one user.
type Session struct {
	Token     string    `json:"-" dynamodbav:"session_token"`
	UserID    string    `json:"userId" dynamodbav:"user_id"`
	ExpiresAt time.Time `json:"expiresAt" dynamodbav:"expires_at"`
	Active    bool      `json:"active" dynamodbav:"active"`
	CreatedAt time.Time `json:"createdAt" dynamodbav:"created_at"`
}

// Usable reports whether the session can authenticate a request at now.
func (s Session) Usable(now time.Time) bool {
	return s.Active && now.Before(s.ExpiresAt)
}

// APIKey is a long-lived credential for scripted access. Only a digest of
// the secret is stored.
type APIKey struct {
	KeyHash    string     `json:"-" dynamodbav:"key_hash"`
	KeyPrefix  string     `json:"keyPrefix" dynamodbav:"key_prefix"`
	Name       string     `json:"keyName" dynamodbav:"key_name"`
	UserID     string     `json:"userId" dynamodbav:"user_id"`
	Active     bool       `json:"active" dynamodbav:"active"`
	LastUsedAt *time.Time `json:"lastUsedAt" dynamodbav:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"createdAt" dynamodbav:"created_at"`
}

// AuditAction tags what kind of file operation an audit entry describes.
type AuditAction string

const (
	AuditList     AuditAction = "list"
	AuditUpload   AuditAction = "upload"
	AuditDownload AuditAction = "download"
	AuditDelete   AuditAction = "delete"
	AuditOpen     AuditAction = "open"
)

// AuditLogEntry is an append-only record of a file operation.
type AuditLogEntry struct {
	ID        string         `json:"id" dynamodbav:"id"`
	UserID    string         `json:"userId" dynamodbav:"user_id"`
	Action    AuditAction    `json:"action" dynamodbav:"action"`
	FileID    string         `json:"fileId,omitempty" dynamodbav:"file_id,omitempty"`
	FileName  string         `json:"fileName,omitempty" dynamodbav:"file_name,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty" dynamodbav:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt" dynamodbav:"created_at"`
}

// AuthMethod records how a caller proved its identity.
type AuthMethod string

const (
	AuthSession AuthMethod = "session"
	AuthAPIKey  AuthMethod = "api_key"
)

// Principal is the authenticated caller of an operation.
type Principal struct {
	UserID string     `json:"userId"`
	Email  string     `json:"email"`
	Name   string     `json:"name"`
	Method AuthMethod `json:"method"`
}

// DriveFile is the API projection of a Drive file resource.
type DriveFile struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	MimeType       string    `json:"mimeType"`
	Size           *string   `json:"size"` // nil for folders and Workspace documents
	CreatedTime    time.Time `json:"createdTime"`
	ModifiedTime   time.Time `json:"modifiedTime"`
	WebViewLink    string    `json:"webViewLink,omitempty"`
	WebContentLink string    `json:"webContentLink,omitempty"`
	Parents        []string  `json:"parents,omitempty"`
	Trashed        bool      `json:"trashed,omitempty"`
	Kind           string    `json:"kind,omitempty"`
}
