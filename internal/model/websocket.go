package model

// WebSocket message types
const (
	WSMessageTypeSnapshot = "snapshot"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypeArchived = "archived"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSSnapshotMessage carries the session state after every change
type WSSnapshotMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Snapshot  SessionSnapshot `json:"snapshot"`
}

// WSCompleteMessage represents session completion
type WSCompleteMessage struct {
	Type        string `json:"type"`
	SessionID   string `json:"sessionId"`
	ModelURL    string `json:"modelUrl,omitempty"`
	DownloadURL string `json:"downloadUrl,omitempty"`
}

// WSArchivedMessage is sent once the model has been copied to object storage
type WSArchivedMessage struct {
	Type       string `json:"type"`
	SessionID  string `json:"sessionId"`
	ArchiveURL string `json:"archiveUrl"`
}

// WSErrorMessage represents an error
type WSErrorMessage struct {
	Type      string  `json:"type"`
	SessionID string  `json:"sessionId"`
	Error     WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
