package cli

import "testing"

// withMockPrompts replaces the password prompt and terminal detection for
// testing and restores them on cleanup. It returns a pointer to the number
// of prompts shown.
func withMockPrompts(t *testing.T, password string, terminal bool) *int {
	t.Helper()
	origPW := promptPasswordFn
	origTerm := stdinIsTerminal
	t.Cleanup(func() {
		promptPasswordFn = origPW
		stdinIsTerminal = origTerm
	})

	calls := 0
	promptPasswordFn = func(_ string) ([]byte, error) {
		calls++
		return []byte(password), nil
	}
	stdinIsTerminal = func() bool { return terminal }
	return &calls
}
