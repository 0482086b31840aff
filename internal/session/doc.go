// Package session is the execution surface of the agent: the single slot
// holding the turn in flight, the conversation carried across turns and the
// progress sink that displays steps while a turn runs.
//
// Starting a turn cancels the one in flight. Only the latest turn delivers
// progress and updates the stored conversation.
package session
