// internal/credentials/credentials.go
//
// Encrypted secret storage keyed by connection id. The file holds a scrypt
// salt, an encrypted check value used to detect a wrong passphrase, and one
// encrypted JSON blob per connection.

package credentials

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"golang.org/x/term"

	"agentManager/internal/apperr"
	"agentManager/internal/crypto"
	"agentManager/internal/models"
	"agentManager/internal/ssh"
	"agentManager/internal/utils"
)

const (
	FileName = "credentials.json"
	// PassphraseEnv supplies the store passphrase without prompting.
	PassphraseEnv = "AGENTMGR_PASSPHRASE"

	checkValue = "agentmgr-credentials"
)

var (
	ErrNotFound        = errors.New("credential not found")
	ErrWrongPassphrase = errors.New("wrong credential passphrase")
)

// PassphraseFunc supplies the passphrase the first time the store needs it.
type PassphraseFunc func() (string, error)

type file struct {
	Salt    string            `json:"salt"`
	Check   string            `json:"check"`
	Secrets map[string]string `json:"secrets"`
}

type secretJSON struct {
	Password   string `json:"password,omitempty"`
	PrivateKey string `json:"private_key,omitempty"`
	Passphrase string `json:"passphrase,omitempty"`
}

// Store reads and writes credentials.json.
type Store struct {
	path       string
	lock       *flock.Flock
	passphrase PassphraseFunc

	mu     sync.Mutex
	cipher *crypto.Cipher
}

// Open returns a store backed by path. Nothing is read until first use.
func Open(path string, passphrase PassphraseFunc) *Store {
	return &Store{
		path:       path,
		lock:       flock.New(path + ".lock"),
		passphrase: passphrase,
	}
}

// DefaultPath is <appdir>/credentials.json.
func DefaultPath() (string, error) {
	return utils.AppFile(FileName)
}

// EnvPassphrase reads the passphrase from AGENTMGR_PASSPHRASE.
func EnvPassphrase() (string, error) {
	if v := os.Getenv(PassphraseEnv); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%s is not set", PassphraseEnv)
}

// PromptPassphrase uses AGENTMGR_PASSPHRASE when set and otherwise asks on
// the terminal attached to stdin.
func PromptPassphrase() (string, error) {
	if v := os.Getenv(PassphraseEnv); v != "" {
		return v, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no terminal to prompt for passphrase; set %s", PassphraseEnv)
	}
	fmt.Fprint(os.Stderr, "Credential passphrase: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	return strings.TrimSpace(string(pw)), nil
}

func (s *Store) read() (*file, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &file{Secrets: map[string]string{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, apperr.New(apperr.Config, "parse credentials", s.path, err)
	}
	if f.Secrets == nil {
		f.Secrets = map[string]string{}
	}
	return &f, nil
}

// unlock derives the cipher for f, initializing salt and check on a new file.
// Callers hold s.mu.
func (s *Store) unlock(f *file) (*crypto.Cipher, error) {
	if s.cipher != nil {
		if f.Salt == "" {
			return s.cipher, s.initFile(f, s.cipher)
		}
		if f.Salt == s.cipher.Salt() {
			return s.cipher, nil
		}
	}

	if s.passphrase == nil {
		return nil, apperr.New(apperr.Crypto, "unlock", s.path, crypto.ErrEmptyPassphrase)
	}
	pw, err := s.passphrase()
	if err != nil {
		return nil, apperr.New(apperr.Crypto, "unlock", s.path, err)
	}

	var salt []byte
	if f.Salt == "" {
		if salt, err = crypto.NewSalt(); err != nil {
			return nil, err
		}
	} else if salt, err = hex.DecodeString(f.Salt); err != nil {
		return nil, apperr.New(apperr.Crypto, "unlock", s.path, err)
	}

	c, err := crypto.NewCipher(pw, salt)
	if err != nil {
		return nil, apperr.New(apperr.Crypto, "unlock", s.path, err)
	}

	if f.Salt == "" {
		if err := s.initFile(f, c); err != nil {
			return nil, err
		}
	} else {
		got, err := c.Decrypt(f.Check)
		if err != nil || got != checkValue {
			return nil, apperr.New(apperr.Crypto, "unlock", s.path, ErrWrongPassphrase)
		}
	}

	s.cipher = c
	return c, nil
}

func (s *Store) initFile(f *file, c *crypto.Cipher) error {
	check, err := c.Encrypt(checkValue)
	if err != nil {
		return err
	}
	f.Salt = c.Salt()
	f.Check = check
	return nil
}

// Get returns the secret stored under ref.
func (s *Store) Get(ref string) (ssh.Secret, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.read()
	if err != nil {
		return ssh.Secret{}, err
	}
	enc, ok := f.Secrets[ref]
	if !ok {
		return ssh.Secret{}, fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	c, err := s.unlock(f)
	if err != nil {
		return ssh.Secret{}, err
	}
	plain, err := c.Decrypt(enc)
	if err != nil {
		return ssh.Secret{}, apperr.New(apperr.Crypto, "decrypt credential", ref, err)
	}
	var sj secretJSON
	if err := json.Unmarshal([]byte(plain), &sj); err != nil {
		return ssh.Secret{}, apperr.New(apperr.Crypto, "decode credential", ref, err)
	}
	return ssh.Secret{Password: sj.Password, PrivateKey: sj.PrivateKey, Passphrase: sj.Passphrase}, nil
}

// Set stores secret under ref, replacing any previous value.
func (s *Store) Set(ref string, secret ssh.Secret) error {
	if ref == "" {
		return apperr.New(apperr.Validation, "set credential", "", errors.New("empty reference"))
	}
	raw, err := json.Marshal(secretJSON{
		Password:   secret.Password,
		PrivateKey: secret.PrivateKey,
		Passphrase: secret.Passphrase,
	})
	if err != nil {
		return err
	}
	return s.update(func(f *file, c *crypto.Cipher) error {
		enc, err := c.Encrypt(string(raw))
		if err != nil {
			return err
		}
		f.Secrets[ref] = enc
		return nil
	})
}

// Delete removes ref. Unknown refs are ignored.
func (s *Store) Delete(ref string) error {
	return s.update(func(f *file, _ *crypto.Cipher) error {
		delete(f.Secrets, ref)
		return nil
	})
}

// Refs lists the stored references without decrypting anything.
func (s *Store) Refs() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.read()
	if err != nil {
		return nil, err
	}
	refs := make([]string, 0, len(f.Secrets))
	for ref := range f.Secrets {
		refs = append(refs, ref)
	}
	return refs, nil
}

func (s *Store) update(fn func(*file, *crypto.Cipher) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := utils.EnsureDir(s.path); err != nil {
		return fmt.Errorf("failed to lock credentials: %w", err)
	}
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock credentials: %w", err)
	}
	defer s.lock.Unlock()

	f, err := s.read()
	if err != nil {
		return err
	}
	c, err := s.unlock(f)
	if err != nil {
		return err
	}
	if err := fn(f, c); err != nil {
		return err
	}
	return utils.AtomicWriteJSON(s.path, f, 0o600)
}

// Resolve returns the secret for conn. Agent auth needs none; a missing entry
// yields an empty secret so the dialer reports missing credentials.
func (s *Store) Resolve(conn models.Connection) (ssh.Secret, error) {
	if conn.Auth == models.AuthAgent {
		return ssh.Secret{}, nil
	}
	ref := conn.CredentialRef
	if ref == "" {
		ref = conn.ID
	}
	secret, err := s.Get(ref)
	if errors.Is(err, ErrNotFound) {
		return ssh.Secret{}, nil
	}
	return secret, err
}
