package display

import (
	"encoding/json"
	"os"

	"github.com/mattn/go-isatty"
)

// MarshalJSON pretty-prints for terminals and stays compact when stdout is piped
func MarshalJSON(v interface{}) ([]byte, error) {
	if Interactive() {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

// Interactive reports whether stdout is a terminal
func Interactive() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
