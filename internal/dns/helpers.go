package dns

// IsApex reports whether host names the zone apex.
func IsApex(host string) bool {
	return host == "" || host == "@"
}

// SameHost compares two host labels, treating both apex spellings as equal.
func SameHost(a, b string) bool {
	if IsApex(a) || IsApex(b) {
		return IsApex(a) && IsApex(b)
	}
	return a == b
}

// JoinHostname builds the FQDN for host within domain.
// e.g. ("home", "example.com") → "home.example.com"
// e.g. ("@", "example.com") → "example.com"
func JoinHostname(host, domain string) string {
	if IsApex(host) {
		return domain
	}
	return host + "." + domain
}
