// Package gmail wraps the Gmail API operations the agent exposes as tools:
// search, read, thread lookup, send, drafts, label changes, archive and trash.
//
// Messages are normalized by ParseMessage into a flat Message record whose
// body is the plain-text part of the payload.
//
// Example:
//
//	client, err := gmail.NewClient(ctx, httpClient)
//	if err != nil {
//	    return err
//	}
//	msgs, err := client.Search(ctx, "is:unread newer_than:7d", 20)
package gmail
