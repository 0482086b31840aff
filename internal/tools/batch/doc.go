// Package batch runs the message modify tools over one id or many.
//
// The modify tools accept message_id as a string or an array of strings.
// ParseStringOrArray normalizes the argument, Run applies the operation to
// each id in order and Summary reports partial failures without failing the
// whole call.
package batch
