package dbconsole

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"

	"golang.org/x/crypto/ssh"
	"golang.org/x/term"
)

func logCopy(dst io.Writer, src io.Reader) {
	if _, err := io.Copy(dst, src); err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.EOF) {
		log.Print("io.Copy error: ", err)
	}
}

// PasswordPrompt answers ssh keyboard-interactive challenges on terminal.
// Questions that should not be echoed are read as passwords.
func PasswordPrompt(terminal *term.Terminal) ssh.KeyboardInteractiveChallenge {
	return func(user, instruction string, questions []string, echos []bool) ([]string, error) {
		terminal.SetBracketedPasteMode(true)
		defer terminal.SetBracketedPasteMode(false)

		if user != "" || instruction != "" {
			fmt.Fprintf(terminal, "%s: %s\n", user, instruction)
		}
		answers := make([]string, len(questions))

		for i := 0; i < len(questions); i++ {
			var err error
			if i < len(echos) && echos[i] {
				terminal.SetPrompt(questions[i])
				answers[i], err = terminal.ReadLine()
			} else {
				answers[i], err = terminal.ReadPassword(questions[i])
			}

			if err != nil && err != term.ErrPasteIndicator {
				return nil, err
			}
		}

		return answers, nil
	}
}

func knownHostsCallback(path string) ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		buf, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("could not read known_hosts: %w", err)
		}
		return matchKnownHost(buf, hostname, remote, key)
	}
}

// matchKnownHost checks key against the entries of a known_hosts file.
func matchKnownHost(buf []byte, hostname string, remote net.Addr, key ssh.PublicKey) error {
	// known hosts file doesn't always include a port
	host, _, err := net.SplitHostPort(hostname)
	if err != nil {
		return err
	}

	remoteKeyRaw := key.Marshal()

	for len(buf) != 0 {
		var (
			marker   string
			hosts    []string
			knownKey ssh.PublicKey
		)
		marker, hosts, knownKey, _, buf, err = ssh.ParseKnownHosts(buf)
		if err != nil {
			if err == io.EOF {
				break
			}
			continue
		}

		if marker == "revoked" {
			continue
		}

		if stringsContains(hosts, host) || stringsContains(hosts, hostname) || (remote != nil && stringsContains(hosts, remote.String())) {
			if !bytes.Equal(remoteKeyRaw, knownKey.Marshal()) {
				return fmt.Errorf("remote public key from '%s' does not match known public key", host)
			}

			// got a match!
			return nil
		}
	}

	return fmt.Errorf("'%s' is an unknown host", hostname)
}

func stringsContains(list []string, str string) bool {
	for _, s := range list {
		if s == str {
			return true
		}
	}
	return false
}
