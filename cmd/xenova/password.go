package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"golang.org/x/term"
)

var readPassword = term.ReadPassword

// promptPassword returns XENOVA_PASSWORD when set and otherwise asks twice on
// the terminal.
func promptPassword(out io.Writer) (string, error) {
	if pass := os.Getenv("XENOVA_PASSWORD"); pass != "" {
		return pass, nil
	}

	fmt.Fprint(out, "Password: ")
	first, err := readPassword(int(syscall.Stdin))
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}

	fmt.Fprint(out, "Confirm password: ")
	second, err := readPassword(int(syscall.Stdin))
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}
