package chat

// Attachment is a user-supplied file carried alongside a message, payload
// base64-encoded. Immutable once constructed.
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}
