// Package dom drives the webmail page through a script running inside the
// user's webmail tab.
//
// The page script connects to the Bridge over a WebSocket. Each Call sends a
// request envelope {"id","channel","data"} and waits for the matching reply
// {"id","result"} or {"id","error"}. Calls are bounded by a timeout and fail
// fast when no page is attached.
//
// Tools layers the four page operations on top of the Bridge: thread
// selection, bulk actions on the selection, listing visible threads and
// reading the open message.
package dom
