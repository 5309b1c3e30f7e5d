package artifact

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/openfed/openfed/pkg/federation"
)

// SFTPConfig holds connection settings for the SFTP fetcher. Credentials
// apply to every sftp:// location; per-host credential maps are not
// supported.
type SFTPConfig struct {
	// User is the SSH username.
	User string

	// Password for password authentication. Ignored when PrivateKeyPath
	// is set.
	Password string

	// PrivateKeyPath is the path to the private key file.
	PrivateKeyPath string

	// PrivateKeyPassphrase is the passphrase for encrypted private keys.
	PrivateKeyPassphrase string

	// KnownHostsPath is the path to the known_hosts file. If empty, host
	// key verification is disabled.
	KnownHostsPath string

	// ConnectTimeout is the timeout for establishing a connection.
	ConnectTimeout time.Duration
}

// DefaultSFTPConfig returns a config with key auth against the user's
// default known_hosts.
func DefaultSFTPConfig(user string) *SFTPConfig {
	home := os.Getenv("HOME")
	return &SFTPConfig{
		User:           user,
		KnownHostsPath: filepath.Join(home, ".ssh", "known_hosts"),
		ConnectTimeout: 30 * time.Second,
	}
}

// Validate checks if the configuration is usable.
func (c *SFTPConfig) Validate() error {
	if c.User == "" {
		return fmt.Errorf("user is required")
	}
	if c.Password == "" && c.PrivateKeyPath == "" {
		return fmt.Errorf("either password or private key path is required")
	}
	if c.PrivateKeyPath != "" {
		if _, err := os.Stat(c.PrivateKeyPath); os.IsNotExist(err) {
			return fmt.Errorf("private key file not found: %s", c.PrivateKeyPath)
		}
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive")
	}
	return nil
}

func (c *SFTPConfig) clientConfig() (*ssh.ClientConfig, error) {
	var authMethods []ssh.AuthMethod

	if c.PrivateKeyPath != "" {
		keyBytes, err := os.ReadFile(c.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}
		var signer ssh.Signer
		if c.PrivateKeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(c.PrivateKeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(keyBytes)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	} else {
		authMethods = append(authMethods, ssh.Password(c.Password))
	}

	var hostKeyCallback ssh.HostKeyCallback
	if c.KnownHostsPath != "" {
		var err error
		hostKeyCallback, err = knownhosts.New(c.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts: %w", err)
		}
	} else {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.ConnectTimeout,
	}, nil
}

// SFTPFetcher downloads artifacts from sftp:// locations. Each fetch
// opens a fresh connection; the cache already guarantees one fetch per
// location, so pooling buys nothing here.
type SFTPFetcher struct {
	config *SFTPConfig
	logger zerolog.Logger
}

// NewSFTPFetcher creates an SFTP fetcher from config.
func NewSFTPFetcher(config *SFTPConfig, logger zerolog.Logger) (*SFTPFetcher, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sftp config: %w", err)
	}
	return &SFTPFetcher{
		config: config,
		logger: logger.With().Str("component", "sftp-fetcher").Logger(),
	}, nil
}

// Schemes implements Fetcher.
func (f *SFTPFetcher) Schemes() []string {
	return []string{"sftp"}
}

// Fetch implements Fetcher. Connection and handshake failures map to a
// network error; a missing remote path maps to not-found.
func (f *SFTPFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	start := time.Now()

	u, err := url.Parse(location)
	if err != nil || u.Host == "" {
		return nil, federation.NewNetworkError(fmt.Sprintf("invalid sftp location %q", location), err).WithLocation(location)
	}
	addr := u.Host
	if u.Port() == "" {
		addr += ":22"
	}

	clientConfig, err := f.config.clientConfig()
	if err != nil {
		return nil, federation.NewNetworkError("sftp client configuration failed", err).WithLocation(location)
	}

	dialer := net.Dialer{Timeout: f.config.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, federation.NewNetworkError("sftp dial failed", err).WithLocation(location)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		conn.Close()
		return nil, federation.NewNetworkError("ssh handshake failed", err).WithLocation(location)
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)
	defer sshClient.Close()

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		return nil, federation.NewNetworkError("sftp session failed", err).WithLocation(location)
	}
	defer sftpClient.Close()

	remoteFile, err := sftpClient.Open(u.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, federation.NewNotFoundError("artifact not present on sftp host", err).WithLocation(location)
		}
		return nil, federation.NewNetworkError("failed to open remote artifact", err).WithLocation(location)
	}
	defer remoteFile.Close()

	data, err := io.ReadAll(io.LimitReader(remoteFile, maxArtifactSize+1))
	if err != nil {
		return nil, federation.NewNetworkError("sftp download interrupted", err).WithLocation(location)
	}
	if len(data) > maxArtifactSize {
		return nil, federation.NewNetworkError(fmt.Sprintf("artifact exceeds size limit of %d bytes", maxArtifactSize), nil).WithLocation(location)
	}

	f.logger.Debug().
		Str("location", location).
		Int("bytes", len(data)).
		Dur("duration", time.Since(start)).
		Msg("artifact fetched over sftp")

	return data, nil
}
