package session

import "errors"

var errNoFetcher = errors.New("session: no identity fetcher configured")
