package google

import gmail "google.golang.org/api/gmail/v1"

// GmailScopes are the scopes requested by `inboxagent auth login`. They cover
// reading, labelling, trashing, drafting and sending mail.
var GmailScopes = []string{
	gmail.GmailModifyScope,
	gmail.GmailSendScope,
	gmail.GmailComposeScope,
	gmail.GmailLabelsScope,
}

// CloudPlatformScope is required for Vertex AI rawPredict calls.
const CloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"
