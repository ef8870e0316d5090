package keychain

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/benaskins/keystash/internal/logbuf"
)

// rotationStderrLines bounds how much of a failing command's stderr is
// carried into the error.
const rotationStderrLines = 5

// runRotationCommand executes a rotation script and returns its stdout with
// trailing newlines removed. The script must print only the new secret.
func runRotationCommand(command string) (string, error) {
	stderr := logbuf.NewTail(rotationStderrLines)
	cmd := exec.Command("/bin/sh", "-c", command)
	cmd.Stderr = stderr

	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if msg := stderr.String(); msg != "" {
				return "", fmt.Errorf("exit code %d: %s", exitErr.ExitCode(), msg)
			}
			return "", fmt.Errorf("exit code %d", exitErr.ExitCode())
		}
		return "", err
	}
	secret := strings.TrimRight(string(output), "\r\n")
	if secret == "" {
		return "", errors.New("rotation command printed no secret")
	}
	return secret, nil
}
