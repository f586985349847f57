package gcp

import (
	"strings"

	"google.golang.org/api/option"

	"github.com/yungbote/fastingles-audio/internal/platform/envutil"
)

// ClientOptionsFromEnv accepts either inline service-account JSON or a path
// in GOOGLE_APPLICATION_CREDENTIALS(_JSON). Nil means application default
// credentials.
func ClientOptionsFromEnv() []option.ClientOption {
	creds := envutil.String("GOOGLE_APPLICATION_CREDENTIALS_JSON", "")
	if creds == "" {
		creds = envutil.String("GOOGLE_APPLICATION_CREDENTIALS", "")
	}
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}
