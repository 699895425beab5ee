package audit

import (
	"strings"
)

// collectionSubresources are fixed path segments under /collections that are
// not record IDs.
var collectionSubresources = map[string]bool{
	"mine": true, "all": true, "search": true, "by-status": true, "by-herb": true,
	"statistics": true, "herbs": true, "locations": true, "recent": true,
}

func pathSegments(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}

// extractResourceType returns the resource family addressed by path:
// "collections", "geo" or "events".
func extractResourceType(path string) string {
	for _, p := range pathSegments(path) {
		switch p {
		case "collections", "geo", "events":
			return p
		}
	}
	return ""
}

// extractResourceID returns the collection ID in path, if any.
func extractResourceID(path string) string {
	parts := pathSegments(path)
	for i, p := range parts {
		if p == "collections" && i+1 < len(parts) {
			next := parts[i+1]
			if next != "" && !collectionSubresources[next] {
				return next
			}
		}
	}
	return ""
}

// extractActionVerb returns a human-readable action name from the HTTP method
// and path.
func extractActionVerb(method, path string) string {
	parts := pathSegments(path)
	if len(parts) > 0 && parts[len(parts)-1] == "status" && (method == "PATCH" || method == "PUT") {
		return "update-status"
	}

	switch method {
	case "POST":
		return "create"
	case "PUT":
		return "update"
	case "PATCH":
		return "patch"
	case "DELETE":
		return "delete"
	default:
		return strings.ToLower(method)
	}
}

// isAuditedRequest reports whether a request should produce an api.request
// event. Only mutating calls are audited; geo endpoints are pure
// computations even when they use POST.
func isAuditedRequest(method, path string) bool {
	if isHealthEndpoint(path) {
		return false
	}
	if extractResourceType(path) == "geo" {
		return false
	}
	switch method {
	case "POST", "PUT", "PATCH", "DELETE":
		return true
	}
	return false
}

// isHealthEndpoint returns true for health-check and metrics paths.
func isHealthEndpoint(path string) bool {
	switch path {
	case "/livez", "/readyz", "/healthz", "/metrics":
		return true
	}
	return false
}

// outcomeFromStatus maps HTTP status codes to audit outcomes.
func outcomeFromStatus(code int) string {
	switch {
	case code >= 200 && code < 300:
		return OutcomeSuccess
	case code == 403:
		return OutcomeDenied
	default:
		return OutcomeFailure
	}
}
