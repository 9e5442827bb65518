package config

import (
	"strings"

	"google.golang.org/api/option"
)

// ClientOptions picks inline JSON credentials over a credentials file. With
// neither set the Google clients fall back to application default credentials.
func (g GCPConfig) ClientOptions() []option.ClientOption {
	if strings.TrimSpace(g.CredentialsJSON) != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(g.CredentialsJSON))}
	}
	if path := strings.TrimSpace(g.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}
