package core

import "strings"

// Environment is the deployment environment of the service; it selects the
// log format and level.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

var environmentAliases = map[string]Environment{
	"dev":   Development,
	"local": Development,
	"stage": Staging,
	"test":  Testing,
	"ci":    Testing,
	"prod":  Production,
}

func (e Environment) String() string {
	return string(e)
}

// IsProduction reports whether logs should be JSON at info level.
func (e Environment) IsProduction() bool {
	return e == Production
}

// ParseEnvironment accepts full names and short aliases, case-insensitively.
// Anything else is Development.
func ParseEnvironment(v string) Environment {
	v = strings.ToLower(strings.TrimSpace(v))
	switch env := Environment(v); env {
	case Development, Staging, Testing, Production:
		return env
	}
	if env, ok := environmentAliases[v]; ok {
		return env
	}
	return Development
}
