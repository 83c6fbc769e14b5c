package google

import (
	gmail "google.golang.org/api/gmail/v1"
)

// Scopes are the Google OAuth scopes requested by newsletter-digest.
// The digest only ever reads mail.
var Scopes = []string{
	gmail.GmailReadonlyScope,
}
