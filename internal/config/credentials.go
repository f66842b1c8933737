package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// CredentialsPrefix is prepended to the credential variable names.
const CredentialsPrefix = "NAMECOM"

// Credentials are the name.com API user and token, read from
// NAMECOM_APIUSERNAME and NAMECOM_APITOKEN.
type Credentials struct {
	Username string `envconfig:"APIUSERNAME" required:"true"`
	Token    string `envconfig:"APITOKEN" required:"true"`
}

// LoadDotEnv loads variables from the given .env files (default ".env") into
// the environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// LoadCredentials reads the API credentials from the environment.
func LoadCredentials() (*Credentials, error) {
	var creds Credentials
	if err := envconfig.Process(CredentialsPrefix, &creds); err != nil {
		return nil, fmt.Errorf("reading credentials: %w", err)
	}
	if creds.Username == "" {
		return nil, fmt.Errorf("reading credentials: environment variable %s_APIUSERNAME is empty", CredentialsPrefix)
	}
	if creds.Token == "" {
		return nil, fmt.Errorf("reading credentials: environment variable %s_APITOKEN is empty", CredentialsPrefix)
	}
	return &creds, nil
}
