package api

import (
	"errors"
	"net/url"
	"strings"
)

const redacted = "REDACTED"

// Redact returns u as a string with the client credential masked.
func Redact(u *url.URL) string {
	if u == nil {
		return ""
	}
	if !u.Query().Has(clientIDParam) {
		return u.String()
	}
	c := *u
	c.RawQuery = redactQuery(u)
	return c.String()
}

// redactQuery returns u's encoded query with the credential masked.
func redactQuery(u *url.URL) string {
	q := u.Query()
	if q.Has(clientIDParam) {
		q.Set(clientIDParam, redacted)
	}
	return q.Encode()
}

// RedactString is Redact for raw URL strings; unparsable input is returned unchanged.
func RedactString(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return Redact(u)
}

// redactError strips the credential from transport errors, which embed the full URL.
func redactError(err error, clientID string) error {
	if err == nil || clientID == "" {
		return err
	}
	msg := err.Error()
	if !strings.Contains(msg, clientID) {
		return err
	}
	return errors.New(strings.ReplaceAll(msg, clientID, redacted))
}
