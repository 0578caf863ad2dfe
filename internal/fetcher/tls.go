package fetcher

import "crypto/tls"

// insecureTLSConfig disables certificate verification, mirroring the
// distilled spec's historical default. Gated behind WithInsecureSkipVerify
// at the public API; a stricter deployment should never enable this.
func insecureTLSConfig() *tls.Config {
	return &tls.Config{InsecureSkipVerify: true} //nolint:gosec // explicit opt-in, documented deviation
}
