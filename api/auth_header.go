package api

import (
	"errors"
	"strings"
)

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errBadAuthorization     = errors.New("bad auth header")
)

const bearerPrefix = "Bearer "

// bearerToken returns the compact JWT carried by an Authorization header.
func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errMissingAuthorization
	}
	if len(header) <= len(bearerPrefix) || !strings.HasPrefix(header, bearerPrefix) {
		return "", errBadAuthorization
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if strings.Count(token, ".") != 2 {
		return "", errBadAuthorization
	}
	return token, nil
}

// streamAuthHeader lets EventSource clients, which cannot set headers, pass
// the token as a query parameter.
func streamAuthHeader(header, token string) string {
	if header == "" && token != "" {
		return bearerPrefix + token
	}
	return header
}
