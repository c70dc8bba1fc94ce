// Package authserver runs a short-lived HTTPS listener that completes a
// single OAuth2 authorization-code exchange.
//
// The server binds the configured redirect address (typically port 443, which
// is why authorization runs are privilege-separated from normal runs), prints
// the provider's authorization URL for the operator to open in a browser,
// waits for the redirect on /callback, exchanges the code for tokens and
// persists the resulting record. The listener is torn down on every exit
// path: success, failure, timeout and cancellation.
package authserver
