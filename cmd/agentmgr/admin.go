// cmd/agentmgr/admin.go

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"agentManager/internal/credentials"
	"agentManager/internal/identity"
	"agentManager/internal/models"
	"agentManager/internal/ssh"
)

func openIdentityStore() (*identity.Store, error) {
	path, err := identity.DefaultPath()
	if err != nil {
		return nil, err
	}
	return identity.NewStore(path, nil), nil
}

func newIdentityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Inspect the persisted agent session identities",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List channel identities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openIdentityStore()
			if err != nil {
				return err
			}
			entries := s.Entries()
			ids := make([]string, 0, len(entries))
			for id := range entries {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CHANNEL\tSESSION\tCWD")
			for _, id := range ids {
				e := entries[id]
				fmt.Fprintf(w, "%s\t%s\t%s\n", id, e.UUID, e.Cwd)
			}
			return w.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <channel>",
		Short: "Forget a channel identity; the next start creates a new session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openIdentityStore()
			if err != nil {
				return err
			}
			return s.Remove(args[0])
		},
	})
	return cmd
}

func openCredentials() (*credentials.Store, error) {
	path, err := credentials.DefaultPath()
	if err != nil {
		return nil, err
	}
	return credentials.Open(path, credentials.PromptPassphrase), nil
}

// readSecret reads one line from stdin, without echo when it is a terminal.
func readSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func newCredentialsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage encrypted connection secrets",
	}

	var keyFile string
	set := &cobra.Command{
		Use:   "set <ref>",
		Short: "Store the password or private key for a connection id or credential_ref",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openCredentials()
			if err != nil {
				return err
			}
			var secret ssh.Secret
			if keyFile != "" {
				data, err := os.ReadFile(keyFile)
				if err != nil {
					return fmt.Errorf("failed to read key file: %w", err)
				}
				secret.PrivateKey = string(data)
				if secret.Passphrase, err = readSecret("Key passphrase (empty for none): "); err != nil {
					return err
				}
			} else if secret.Password, err = readSecret("Password: "); err != nil {
				return err
			}
			return store.Set(args[0], secret)
		},
	}
	set.Flags().StringVar(&keyFile, "key-file", "", "store this private key instead of a password")
	cmd.AddCommand(set)

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <ref>",
		Short: "Delete a stored secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openCredentials()
			if err != nil {
				return err
			}
			return store.Delete(args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored secret refs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openCredentials()
			if err != nil {
				return err
			}
			refs, err := store.Refs()
			if err != nil {
				return err
			}
			for _, r := range refs {
				fmt.Fprintln(cmd.OutOrStdout(), r)
			}
			return nil
		},
	})
	return cmd
}

func newConnectionsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connections",
		Short: "Manage configured connections",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tADDRESS\tUSER\tAUTH")
			for _, c := range root.cfg.GetConnections() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Address(), c.Username, c.Auth)
			}
			return w.Flush()
		},
	})

	var c models.Connection
	var auth string
	add := &cobra.Command{
		Use:   "add <id>",
		Short: "Add a connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c.ID = args[0]
			c.Auth = models.AuthMethod(auth)
			if c.Name == "" {
				c.Name = c.ID
			}
			if err := root.cfg.AddConnection(c); err != nil {
				return err
			}
			return root.cfg.Save()
		},
	}
	add.Flags().StringVar(&c.Name, "name", "", "display name")
	add.Flags().StringVar(&c.Host, "host", "", "host name or address")
	add.Flags().IntVar(&c.Port, "port", 22, "SSH port")
	add.Flags().StringVar(&c.Username, "user", "", "login user")
	add.Flags().StringVar(&auth, "auth", string(models.AuthAgent), "password|private-key|agent")
	add.Flags().StringVar(&c.KeyPath, "key", "", "private key path for private-key auth")
	add.Flags().StringVar(&c.CredentialRef, "credential-ref", "", "credential entry name (default: the connection id)")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := root.cfg.DeleteConnection(args[0]); err != nil {
				return err
			}
			return root.cfg.Save()
		},
	})
	return cmd
}
