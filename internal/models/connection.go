// internal/models/connection.go

package models

import (
	"errors"
	"fmt"
)

// AuthMethod selects how a connection authenticates.
type AuthMethod string

const (
	AuthPassword   AuthMethod = "password"
	AuthPrivateKey AuthMethod = "private-key"
	AuthAgent      AuthMethod = "agent"
)

// Connection describes a remote host. It never holds the secret itself;
// CredentialRef names the entry in the credential store.
type Connection struct {
	ID            string     `json:"id" toml:"id"`
	Name          string     `json:"name" toml:"name"`
	Host          string     `json:"host" toml:"host"`
	Port          int        `json:"port" toml:"port"`
	Username      string     `json:"username" toml:"username"`
	Auth          AuthMethod `json:"auth" toml:"auth"`
	KeyPath       string     `json:"key_path,omitempty" toml:"key_path,omitempty"`
	CredentialRef string     `json:"credential_ref,omitempty" toml:"credential_ref,omitempty"`
}

// Address returns host:port, defaulting the port to 22.
func (c Connection) Address() string {
	port := c.Port
	if port == 0 {
		port = 22
	}
	return fmt.Sprintf("%s:%d", c.Host, port)
}

// Validate checks the fields a dial needs.
func (c Connection) Validate() error {
	if c.ID == "" {
		return errors.New("connection id cannot be empty")
	}
	if c.Host == "" {
		return errors.New("host cannot be empty")
	}
	if c.Username == "" {
		return errors.New("username cannot be empty")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch c.Auth {
	case AuthPassword, AuthPrivateKey, AuthAgent:
	default:
		return fmt.Errorf("unsupported auth method %q", c.Auth)
	}
	return nil
}
