package tools

import (
	"context"
	"net/url"
	"strings"
)

// MailtoComposer builds a mailto link and hands it to Open, typically a
// dashboard broadcast that makes the browser open the mail client.
type MailtoComposer struct {
	Open func(link string) error
}

// Compose implements Composer.
func (m MailtoComposer) Compose(ctx context.Context, email ComposeEmail) (string, error) {
	link := MailtoURL(email)
	if m.Open != nil {
		if err := m.Open(link); err != nil {
			return "", err
		}
	}
	return link, nil
}

// MailtoURL renders email as an RFC 6068 mailto URL. Spaces are encoded as
// %20 since mail clients do not decode '+'.
func MailtoURL(email ComposeEmail) string {
	q := url.Values{}
	if email.Subject != "" {
		q.Set("subject", email.Subject)
	}
	if email.Body != "" {
		q.Set("body", email.Body)
	}

	u := url.URL{
		Scheme:   "mailto",
		Opaque:   url.PathEscape(email.To),
		RawQuery: strings.ReplaceAll(q.Encode(), "+", "%20"),
	}
	return u.String()
}
