// internal/ssh/auth.go

package ssh

import (
	"errors"
	"fmt"
	"net"
	"os"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"agentManager/internal/models"
	"agentManager/internal/utils"
)

// Secret is the plaintext material resolved from the credential store.
type Secret struct {
	Password   string
	PrivateKey string
	Passphrase string
}

// ConnectParams is everything needed to dial one connection.
type ConnectParams struct {
	Connection models.Connection
	Secret     Secret
}

// authMethods builds the auth methods for params. The returned cleanup must be
// called once the handshake is over.
func authMethods(params ConnectParams) ([]ssh.AuthMethod, func(), error) {
	noop := func() {}
	conn := params.Connection

	switch conn.Auth {
	case models.AuthPassword:
		pw := params.Secret.Password
		if pw == "" {
			return nil, noop, fmt.Errorf("%w: password for %s", ErrMissingCredentials, conn.ID)
		}
		answer := func(user, instruction string, questions []string, echos []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range answers {
				answers[i] = pw
			}
			return answers, nil
		}
		return []ssh.AuthMethod{ssh.Password(pw), ssh.KeyboardInteractive(answer)}, noop, nil

	case models.AuthPrivateKey:
		signer, err := loadSigner(conn, params.Secret)
		if err != nil {
			return nil, noop, err
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, noop, nil

	case models.AuthAgent:
		sock := os.Getenv("SSH_AUTH_SOCK")
		if sock == "" {
			return nil, noop, fmt.Errorf("%w: SSH_AUTH_SOCK is not set", ErrMissingCredentials)
		}
		agentConn, err := net.Dial("unix", sock)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to reach ssh agent: %w", err)
		}
		ag := agent.NewClient(agentConn)
		return []ssh.AuthMethod{ssh.PublicKeysCallback(ag.Signers)}, func() { _ = agentConn.Close() }, nil

	default:
		return nil, noop, fmt.Errorf("%w: %q", ErrUnsupportedAuth, conn.Auth)
	}
}

func loadSigner(conn models.Connection, secret Secret) (ssh.Signer, error) {
	key := []byte(secret.PrivateKey)
	if len(key) == 0 && conn.KeyPath != "" {
		data, err := os.ReadFile(utils.ExpandHome(conn.KeyPath))
		if err != nil {
			return nil, fmt.Errorf("failed to read SSH key: %w", err)
		}
		key = data
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: private key for %s", ErrMissingCredentials, conn.ID)
	}

	var (
		signer ssh.Signer
		err    error
	)
	if secret.Passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(secret.Passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(key)
	}
	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) {
		return nil, fmt.Errorf("%w: key passphrase for %s", ErrMissingCredentials, conn.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse SSH key: %w", err)
	}
	return signer, nil
}
