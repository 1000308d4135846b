package dbconsole

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

const (
	promptNumRetries = 3
)

// Tunnel forwards connections accepted on a local port to a database host
// reachable from an SSH server.
type Tunnel struct {
	config     ssh.ClientConfig
	tunnelHost string
	remoteHost string

	listener net.Listener
	client   *ssh.Client

	connections []io.Closer
	mu          sync.Mutex
}

func NewTunnel(prompter ssh.KeyboardInteractiveChallenge, tunnel *SSHTunnel, host string, port int) (*Tunnel, error) {
	homedir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("could not locate home directory: %w", err)
	}

	hostKeyCB, err := hostKeyCallback(tunnel, homedir)
	if err != nil {
		return nil, err
	}

	auth, err := authMethod(prompter, tunnel, homedir)
	if err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", "localhost:0") // 0 for port picks a random available port
	if err != nil {
		return nil, fmt.Errorf("could not open local port: %w", err)
	}

	t := &Tunnel{
		config: ssh.ClientConfig{
			User:            tunnel.User,
			Auth:            []ssh.AuthMethod{auth},
			HostKeyCallback: hostKeyCB,
			BannerCallback:  ssh.BannerDisplayStderr(),
			Timeout:         time.Duration(tunnel.ConnectTimeoutSec) * time.Second,
		},
		tunnelHost: net.JoinHostPort(tunnel.Host, strconv.Itoa(tunnel.Port)),
		remoteHost: net.JoinHostPort(host, strconv.Itoa(port)),
		listener:   listener,
	}

	t.client, err = ssh.Dial("tcp", t.tunnelHost, &t.config)
	if err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to connect to tunnel: %w", err)
	}

	go t.accept()

	return t, nil
}

func hostKeyCallback(tunnel *SSHTunnel, homedir string) (ssh.HostKeyCallback, error) {
	switch {
	case tunnel.HostPublicKeyFile != "":
		buf, err := os.ReadFile(expandHome(tunnel.HostPublicKeyFile, homedir))
		if err != nil {
			return nil, fmt.Errorf("could not read expected host public key: %w", err)
		}
		hostKey, _, _, _, err := ssh.ParseAuthorizedKey(buf)
		if err != nil {
			return nil, fmt.Errorf("invalid host public key: %w", err)
		}
		return ssh.FixedHostKey(hostKey), nil

	case !tunnel.DisableVerifyKnownHost:
		return knownHostsCallback(filepath.Join(homedir, ".ssh", "known_hosts")), nil

	default:
		return ssh.InsecureIgnoreHostKey(), nil
	}
}

func authMethod(prompter ssh.KeyboardInteractiveChallenge, tunnel *SSHTunnel, homedir string) (ssh.AuthMethod, error) {
	switch tunnel.AuthMethod {
	case PasswordAuth:
		if tunnel.Password != "" {
			return ssh.Password(tunnel.Password), nil
		}
		return ssh.RetryableAuthMethod(ssh.KeyboardInteractive(prompter), promptNumRetries), nil

	case PublicKeyAuth:
		buf, err := os.ReadFile(expandHome(tunnel.PrivateKeyFile, homedir))
		if err != nil {
			return nil, fmt.Errorf("could not read private key file: %w", err)
		}

		return ssh.PublicKeysCallback(func() ([]ssh.Signer, error) {
			signer, err := parsePrivateKey(prompter, tunnel, buf)
			if err != nil {
				return nil, err
			}
			return []ssh.Signer{signer}, nil
		}), nil

	case AgentAuth:
		agentConn, err := net.Dial("unix", os.Getenv("SSH_AUTH_SOCK"))
		if err != nil {
			return nil, fmt.Errorf("could not open SSH_AUTH_SOCK: %w", err)
		}
		agentClient := agent.NewClient(agentConn)

		return ssh.PublicKeysCallback(func() ([]ssh.Signer, error) {
			signers, err := agentClient.Signers()
			if err != nil {
				log.Println("error getting signers from ssh agent:", err)
				return nil, err
			}
			return signers, nil
		}), nil

	default:
		return nil, fmt.Errorf("unsupported auth method '%s'", tunnel.AuthMethod)
	}
}

func parsePrivateKey(prompter ssh.KeyboardInteractiveChallenge, tunnel *SSHTunnel, buf []byte) (ssh.Signer, error) {
	signer, err := ssh.ParsePrivateKey(buf)
	if err == nil {
		return signer, nil
	}

	needPass := new(ssh.PassphraseMissingError)
	if !errors.As(err, &needPass) {
		return nil, fmt.Errorf("could not parse private key: %w", err)
	}

	if tunnel.PrivateKeyPassphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(buf, []byte(tunnel.PrivateKeyPassphrase))
	} else {
		for i := 0; i < promptNumRetries; i++ {
			var answers []string
			answers, err = prompter(tunnel.Host, "private key is encrypted", []string{"private key passphrase: "}, []bool{false})
			if err != nil {
				log.Print(err)
				continue
			}

			signer, err = ssh.ParsePrivateKeyWithPassphrase(buf, []byte(answers[0]))
			if err == nil {
				break
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("could not decrypt private key: %w", err)
	}
	return signer, nil
}

// expandHome expands environment variables and a leading ~ in path.
func expandHome(path, homedir string) string {
	path = os.ExpandEnv(path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		path = homedir + path[1:]
	}
	return path
}

func (t *Tunnel) accept() {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Print("error accepting tunnel connection: ", err)
			continue
		}

		t.mu.Lock()
		t.connections = append(t.connections, conn)
		t.mu.Unlock()
		go t.forward(conn)
	}
}

func (t *Tunnel) forward(localConn net.Conn) {
	remoteConn, err := t.client.Dial("tcp", t.remoteHost)
	if err != nil {
		log.Print("could not establish remote connection to database: ", err)
		localConn.Close()
		return
	}

	t.mu.Lock()
	t.connections = append(t.connections, remoteConn)
	t.mu.Unlock()

	go logCopy(localConn, remoteConn)
	go logCopy(remoteConn, localConn)
}

// LocalAddr is the address database connections should be pointed at.
func (t *Tunnel) LocalAddr() net.Addr {
	return t.listener.Addr()
}

func (t *Tunnel) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	errs := make([]error, 0, len(t.connections)+2)
	for _, cl := range t.connections {
		errs = append(errs, cl.Close())
	}
	t.connections = nil

	errs = append(errs, t.listener.Close(), t.client.Close())
	return makeErrorList(ignoreClosed(errs)...)
}

func ignoreClosed(errs []error) []error {
	out := errs[:0]
	for _, err := range errs {
		if err != nil && !errors.Is(err, net.ErrClosed) {
			out = append(out, err)
		}
	}
	return out
}
