// Package agent runs the tool loop of one user turn.
//
// A turn appends the user's prompt to the conversation, asks the model for a
// response, dispatches the tool uses it contains in order, answers them in a
// single user message and asks again, until the model finishes or the
// context is cancelled. Progress is reported as Steps through a synchronous
// sink while the turn runs.
package agent
