// Package google handles the Google credentials the agent needs: the user's
// Gmail OAuth token, kept in a JSON token file, and the service credentials
// used to call Vertex AI.
package google
