// internal/ssh/transfer.go

package ssh

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	scp "github.com/bramvdbogaerde/go-scp"
	"github.com/pkg/sftp"

	"agentManager/internal/apperr"
	"agentManager/internal/utils"
)

// CopyRemoteFile copies src to dst on the host of connection id, creating
// dst's parent directory. A missing src yields an error matching
// fs.ErrNotExist.
func (p *Pool) CopyRemoteFile(ctx context.Context, id, src, dst string) error {
	c, err := p.client(id)
	if err != nil {
		return apperr.New(apperr.Connection, "copy", id, err)
	}
	if c.conn == nil {
		return copyLocal(src, dst)
	}

	client, err := sftp.NewClient(c.conn)
	if err != nil {
		return apperr.New(apperr.Connection, "copy", id, fmt.Errorf("failed to start sftp: %w", err))
	}
	defer client.Close()
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	src, dst = utils.ToRemotePath(src), utils.ToRemotePath(dst)
	in, err := client.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open remote file %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat remote file %s: %w", src, err)
	}

	if err := client.MkdirAll(path.Dir(dst)); err != nil {
		return fmt.Errorf("failed to create remote directory: %w", err)
	}
	out, err := client.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("failed to create remote file %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy file data: %w", err)
	}
	if err := out.Chmod(info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	return nil
}

// RemoteStat returns file information for a path on connection id.
func (p *Pool) RemoteStat(ctx context.Context, id, name string) (os.FileInfo, error) {
	c, err := p.client(id)
	if err != nil {
		return nil, apperr.New(apperr.Connection, "stat", id, err)
	}
	if c.conn == nil {
		return os.Stat(name)
	}

	client, err := sftp.NewClient(c.conn)
	if err != nil {
		return nil, apperr.New(apperr.Connection, "stat", id, fmt.Errorf("failed to start sftp: %w", err))
	}
	defer client.Close()
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	return client.Stat(utils.ToRemotePath(name))
}

// UploadFile sends a local file to remotePath on connection id over scp.
func (p *Pool) UploadFile(ctx context.Context, id, localPath, remotePath string) error {
	c, err := p.client(id)
	if err != nil {
		return apperr.New(apperr.Connection, "upload", id, err)
	}
	if c.conn == nil {
		return copyLocal(localPath, remotePath)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open local file: %w", err)
	}
	defer f.Close()

	client, err := scp.NewClientBySSH(c.conn)
	if err != nil {
		return apperr.New(apperr.Connection, "upload", id, fmt.Errorf("failed to start scp: %w", err))
	}
	defer client.Close()

	if err := client.CopyFile(ctx, f, utils.ToRemotePath(remotePath), "0644"); err != nil {
		return fmt.Errorf("failed to upload %s: %w", filepath.Base(localPath), err)
	}
	return nil
}

func copyLocal(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file %s: %w", src, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy file data: %w", err)
	}
	return out.Close()
}
