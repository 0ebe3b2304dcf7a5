package auth

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/jun/drivegate/internal/apperr"
)

// NeedsRefresh reports whether a token expiring at expiry should be
// refreshed at now, given buffer of headroom.
func NeedsRefresh(expiry, now time.Time, buffer time.Duration) bool {
	return !now.Before(expiry.Add(-buffer))
}

// expiresAt computes the absolute expiry of tok, issued at now, from the
// raw expires_in field.
func expiresAt(tok *oauth2.Token, now time.Time) time.Time {
	var secs int64
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		secs = int64(v)
	case int64:
		secs = v
	case json.Number:
		secs, _ = v.Int64()
	case string:
		secs, _ = strconv.ParseInt(v, 10, 64)
	}
	if secs > 0 {
		return now.Add(time.Duration(secs) * time.Second)
	}
	if !tok.Expiry.IsZero() {
		return tok.Expiry
	}
	return now
}

// providerFailure converts an OAuth endpoint error into kind, keeping the
// provider's status and body.
func providerFailure(kind error, err error, msg string) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return apperr.Provider(kind, re.Response.StatusCode, string(re.Body), "%s", msg)
	}
	return apperr.Wrap(kind, err, "%s", msg)
}
