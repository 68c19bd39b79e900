// Package common contains shared constants and sentinel errors used across
// qfolders components.
package common

// SessionCookieName is the default cookie carrying the server-side session id.
const SessionCookieName = "qf_session"

// AttachmentBucket is the logical bucket holding attachment content.
const AttachmentBucket = "attachments"
