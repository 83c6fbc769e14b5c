// Package gmail reads newsletters and context documents from a Gmail inbox.
//
// The client lists messages matching a Gmail search query, fetches each one
// in full and converts its HTML body to Markdown. Newsletters are returned
// newest first and de-duplicated by the first web link in the body, falling
// back to the Gmail permalink and finally the subject.
//
// Example usage:
//
//	client, err := gmail.NewClient(ctx, option.WithHTTPClient(httpClient))
//	if err != nil {
//	    return err
//	}
//	items, err := client.FetchNewsletters(ctx, gmail.LastDays(30), "label:newsletters")
package gmail
