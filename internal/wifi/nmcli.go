package wifi

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandRunner runs an external command and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// NMCLI drives NetworkManager through the nmcli command line tool.
type NMCLI struct {
	Interface string
	Run       CommandRunner
}

// NewNMCLI returns an Associator for iface.
func NewNMCLI(iface string) *NMCLI {
	return &NMCLI{Interface: iface, Run: execRunner}
}

func (n *NMCLI) run(ctx context.Context, args ...string) ([]byte, error) {
	out, err := n.Run(ctx, "nmcli", args...)
	if err != nil {
		return out, fmt.Errorf("nmcli %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

func (n *NMCLI) Connect(ctx context.Context, ssid, passphrase string) error {
	args := []string{"device", "wifi", "connect", ssid}
	if passphrase != "" {
		args = append(args, "password", passphrase)
	}
	args = append(args, "ifname", n.Interface)
	_, err := n.run(ctx, args...)
	return err
}

// Connected reports whether the interface is in the connected state.
func (n *NMCLI) Connected(ctx context.Context) (bool, error) {
	out, err := n.run(ctx, "-t", "-f", "DEVICE,STATE", "device", "status")
	if err != nil {
		return false, err
	}
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		dev, state, ok := strings.Cut(sc.Text(), ":")
		if ok && dev == n.Interface {
			return state == "connected", nil
		}
	}
	return false, fmt.Errorf("interface %s not listed", n.Interface)
}

func (n *NMCLI) StartAccessPoint(ctx context.Context, ssid, passphrase string) error {
	args := []string{"device", "wifi", "hotspot", "ifname", n.Interface, "ssid", ssid}
	if passphrase != "" {
		args = append(args, "password", passphrase)
	}
	_, err := n.run(ctx, args...)
	return err
}
