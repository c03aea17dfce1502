package twin

import "strings"

// capabilityDelimiter separates capability values in their stored form.
const capabilityDelimiter = ","

// joinCapabilities encodes a capability list into its stored form.
func joinCapabilities(capabilities []string) string {
	return strings.Join(capabilities, capabilityDelimiter)
}

// splitCapabilities decodes the stored form back into a list. Empty
// segments are dropped, so an empty list round-trips to an empty list and
// not to [""].
func splitCapabilities(stored string) []string {
	capabilities := []string{}
	for _, c := range strings.Split(stored, capabilityDelimiter) {
		if len(c) > 0 {
			capabilities = append(capabilities, c)
		}
	}
	return capabilities
}

// validateCapabilities rejects capability values that would not survive a
// round trip through the stored form.
func validateCapabilities(capabilities []string) bool {
	for _, c := range capabilities {
		if strings.Contains(c, capabilityDelimiter) {
			return false
		}
	}
	return true
}
