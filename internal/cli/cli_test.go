package cli

import (
	"bytes"
	"strings"
	"testing"
)

// run executes the root command with args and returns its output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	if err != nil {
		t.Fatalf("splitpal %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func TestCLI_FriendAndLedgerFlow(t *testing.T) {
	t.Setenv("SPLITPAL_HOME", t.TempDir())

	mustRun(t, "user", "add", "alice@example.com", "--name", "Alice", "--password", "hunter22")
	mustRun(t, "user", "add", "bob@example.com", "--name", "Bob", "--password", "hunter22")

	out := mustRun(t, "friends", "add", "bob@example.com", "--as", "alice@example.com")
	if !strings.Contains(out, "Friend request sent to Bob") {
		t.Errorf("friends add output = %q", out)
	}

	out = mustRun(t, "request", "list", "--as", "bob@example.com")
	if !strings.Contains(out, "Incoming (1)") {
		t.Fatalf("request list output = %q", out)
	}
	var reqID string
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "from Alice") {
			reqID = strings.Fields(line)[0]
		}
	}
	if reqID == "" {
		t.Fatalf("no request id in %q", out)
	}

	if _, err := run(t, "request", "accept", reqID, "--as", "alice@example.com"); err == nil {
		t.Error("sender should not be able to accept")
	}
	mustRun(t, "request", "accept", reqID, "--as", "bob@example.com")

	out = mustRun(t, "friends", "--as", "alice@example.com")
	if !strings.Contains(out, "Bob <bob@example.com>") {
		t.Errorf("friends output = %q", out)
	}

	mustRun(t, "tx", "add", "bob@example.com", "40", "--type", "lend", "-m", "dinner", "--as", "alice@example.com")
	mustRun(t, "tx", "add", "alice@example.com", "15", "--type", "repay", "-m", "half back", "--as", "bob@example.com")

	out = mustRun(t, "balance", "--as", "alice@example.com")
	if !strings.Contains(out, "To receive: USD 25.00") {
		t.Errorf("alice balance output = %q", out)
	}
	out = mustRun(t, "balance", "--as", "bob@example.com")
	if !strings.Contains(out, "To pay:     USD 25.00") {
		t.Errorf("bob balance output = %q", out)
	}

	out = mustRun(t, "tx", "list", "--friend", "bob@example.com", "--as", "alice@example.com")
	if !strings.Contains(out, "dinner") || !strings.Contains(out, "half back") {
		t.Errorf("tx list output = %q", out)
	}
}

func TestCLI_EditKeepsType(t *testing.T) {
	t.Setenv("SPLITPAL_HOME", t.TempDir())

	mustRun(t, "user", "add", "alice@example.com", "--name", "Alice", "--password", "hunter22")
	mustRun(t, "user", "add", "bob@example.com", "--name", "Bob", "--password", "hunter22")

	out := mustRun(t, "tx", "add", "bob@example.com", "30", "--type", "borrow", "-m", "cab", "--as", "alice@example.com")
	lo, hi := strings.LastIndex(out, "("), strings.LastIndex(out, ")")
	if lo < 0 || hi < lo {
		t.Fatalf("no transaction id in %q", out)
	}
	id := out[lo+1 : hi]

	out = mustRun(t, "tx", "edit", id, "bob@example.com", "45", "-m", "cab fare", "--as", "alice@example.com")
	if !strings.Contains(out, "borrow") {
		t.Errorf("tx edit output = %q, want borrow kept", out)
	}
	out = mustRun(t, "balance", "--as", "alice@example.com")
	if !strings.Contains(out, "To pay:     USD 45.00") || !strings.Contains(out, "To receive: USD 0.00") {
		t.Errorf("alice balance output = %q, want 45.00 to pay", out)
	}
}

func TestCLI_RequiresUser(t *testing.T) {
	t.Setenv("SPLITPAL_HOME", t.TempDir())
	if _, err := run(t, "balance", "--as", ""); err == nil {
		t.Error("balance without --as should fail")
	}
}

func TestCLI_Version(t *testing.T) {
	out := mustRun(t, "version")
	if !strings.HasPrefix(out, "splitpal ") {
		t.Errorf("version output = %q", out)
	}
}
