// Package info provides utility functions for manipulating info lines returned
// by the modem in response to AT commands.
package info

import "strings"

// Fields splits a response body on commas and strips any surrounding double
// quotes from each field. Index positionally - short responses are common
// and a missing trailing field is not an error at this layer.
func Fields(resp string) []string {
	parts := strings.Split(resp, ",")
	for i, p := range parts {
		parts[i] = strings.Trim(p, `"`)
	}
	return parts
}
