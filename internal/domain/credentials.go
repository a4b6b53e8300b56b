package domain

import "encoding/base64"

// Credentials is the per-subscriber upstream configuration.
// It is loaded once per cycle and never mutated during it.
type Credentials struct {
	BaseURL  string
	Username string
	Password string
}

// BasicAuthorization returns the value for the Authorization header.
func (c Credentials) BasicAuthorization() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.Username+":"+c.Password))
}
