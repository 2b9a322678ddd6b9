package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var (
	envVarPattern      = regexp.MustCompile(`\$\{([^}]+)\}`)
	credentialsPattern = regexp.MustCompile(`://[^/]+:[^/]+@`)
	maskPattern        = regexp.MustCompile(`://([^:]+):([^@]+)@`)
)

// ResolveString replaces every ${NAME} reference in s with the value of the
// environment variable NAME. An unset variable is an error naming the
// variable rather than a silent empty substitution.
func ResolveString(s string) (string, error) {
	var missing string
	out := envVarPattern.ReplaceAllStringFunc(s, func(ref string) string {
		name := ref[2 : len(ref)-1]
		val, ok := os.LookupEnv(name)
		if !ok {
			if missing == "" {
				missing = name
			}
			return ref
		}
		return val
	})
	if missing != "" {
		return "", fmt.Errorf("config: environment variable %q is not set", missing)
	}
	return out, nil
}

// ResolveEnv returns a copy of cfg with every ${NAME} reference in any of
// its string fields substituted from the environment. cfg itself is left
// untouched.
func ResolveEnv(cfg *Config) (*Config, error) {
	out := *cfg
	out.Sources = make([]Source, len(cfg.Sources))
	copy(out.Sources, cfg.Sources)
	out.Alerting.Webhooks = make([]Webhook, len(cfg.Alerting.Webhooks))
	copy(out.Alerting.Webhooks, cfg.Alerting.Webhooks)

	fields := []*string{
		&out.Version,
		&out.Agent.ID, &out.Agent.LogLevel, &out.Agent.LogFormat,
		&out.Storage.Backend, &out.Storage.Path,
	}
	for i := range out.Sources {
		src := &out.Sources[i]
		fields = append(fields, &src.Name, &src.Type, &src.Dialect,
			&src.Connection, &src.Query, &src.Schedule)
	}
	for i := range out.Alerting.Webhooks {
		wh := &out.Alerting.Webhooks[i]
		wh.Events = append([]string(nil), wh.Events...)
		fields = append(fields, &wh.Name, &wh.URL, &wh.Secret)
		for j := range wh.Events {
			fields = append(fields, &wh.Events[j])
		}
	}
	for _, f := range fields {
		resolved, err := ResolveString(*f)
		if err != nil {
			return nil, err
		}
		*f = resolved
	}
	return &out, nil
}

// MaskSecrets hides the password portion of user:password@ URLs for display.
func MaskSecrets(s string) string {
	return maskPattern.ReplaceAllString(s, "://${1}:***@")
}

// checkCredentials rejects connection strings that embed literal
// credentials. ${VAR} references pass: they resolve outside the file.
func checkCredentials(conn string) error {
	if credentialsPattern.MatchString(conn) && !strings.Contains(conn, "${") {
		return fmt.Errorf("connection contains hardcoded credentials, use ${VAR} environment references instead")
	}
	return nil
}
