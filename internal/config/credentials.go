package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
)

// ErrNoCredentials is returned when neither the environment nor any
// credentials.json provides an email and password.
var ErrNoCredentials = errors.New("no eCalc credentials found")

// Credentials is the eCalc member account.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Valid reports whether both fields are set.
func (c Credentials) Valid() bool {
	return c.Email != "" && c.Password != ""
}

// CredentialSearchPaths lists the credentials.json locations tried in order.
func (c *Config) CredentialSearchPaths() []string {
	if c.ECalc.CredentialsFile != "" {
		return []string{c.ECalc.CredentialsFile}
	}
	return []string{
		filepath.Join(c.Report.OutputDir, "credentials.json"),
		"credentials.json",
	}
}

// LoadCredentials prefers ecalc.email/ecalc.password (ECALC_EMAIL and
// ECALC_PASSWORD) and falls back to the first readable credentials file.
func (c *Config) LoadCredentials() (Credentials, error) {
	creds := Credentials{Email: c.ECalc.Email, Password: c.ECalc.Password}
	if creds.Valid() {
		return creds, nil
	}

	for _, p := range c.CredentialSearchPaths() {
		path, err := homedir.Expand(p)
		if err != nil {
			return Credentials{}, fmt.Errorf("expanding %q: %w", p, err)
		}
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return Credentials{}, fmt.Errorf("reading %s: %w", path, err)
		}
		var fromFile Credentials
		if err := jsoniter.Unmarshal(data, &fromFile); err != nil {
			return Credentials{}, fmt.Errorf("decoding %s: %w", path, err)
		}
		if fromFile.Valid() {
			return fromFile, nil
		}
	}
	return Credentials{}, ErrNoCredentials
}
