package workspace

import "strings"

type RouteKind string

const (
	RouteHome       RouteKind = "home"
	RouteGitHub     RouteKind = "github"
	RouteDeploy     RouteKind = "deploy"
	RouteAPIKeys    RouteKind = "api-keys"
	RouteTerminal   RouteKind = "terminal"
	RouteCodeMirror RouteKind = "code-mirror"
	RouteShared     RouteKind = "shared"
)

var routePaths = map[string]RouteKind{
	"integrations/github": RouteGitHub,
	"deploy":              RouteDeploy,
	"settings/api-keys":   RouteAPIKeys,
	"terminal":            RouteTerminal,
	"code-mirror":         RouteCodeMirror,
}

type Route struct {
	Kind    RouteKind `json:"kind"`
	Payload string    `json:"payload,omitempty"`
}

// ResolveRoute maps a client location hash to a view. Unknown hashes fall
// back to home.
func ResolveRoute(hash string) Route {
	hash = strings.TrimPrefix(strings.TrimSpace(hash), "#")
	hash = strings.TrimPrefix(hash, "/")
	if payload, ok := strings.CutPrefix(hash, "shared/"); ok && payload != "" {
		return Route{Kind: RouteShared, Payload: payload}
	}
	if kind, ok := routePaths[strings.TrimSuffix(hash, "/")]; ok {
		return Route{Kind: kind}
	}
	return Route{Kind: RouteHome}
}
