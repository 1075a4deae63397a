package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zlnvch/duo/app"
	"github.com/zlnvch/duo/config"
	"github.com/zlnvch/duo/device/sqlite"
	mqmocks "github.com/zlnvch/duo/mq/mocks"
	"github.com/zlnvch/duo/store"
	"github.com/zlnvch/duo/store/memory"
)

// testOpener opens an app on a device database that persists between
// commands, against a remote shared by every device of the test.
func testOpener(t *testing.T, remote store.RemoteStore) Opener {
	return testOpenerWith(t, remote, app.Deps{})
}

func testOpenerWith(t *testing.T, remote store.RemoteStore, deps app.Deps) Opener {
	path := filepath.Join(t.TempDir(), "device.db")
	return func(ctx context.Context) (*app.App, error) {
		dev, err := sqlite.Open(path)
		if err != nil {
			return nil, err
		}
		cfg := &config.Config{FlushDelay: 5 * time.Millisecond, NudgeInterval: time.Minute}
		deps.Remote = remote
		deps.Device = dev
		deps.Close = func() { dev.Close() }
		return app.New(ctx, cfg, deps)
	}
}

func run(t *testing.T, open Opener, args ...string) (string, error) {
	cmd := NewRootCommand(open)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, open Opener, args ...string) string {
	t.Helper()
	out, err := run(t, open, args...)
	require.NoError(t, err, "duo %s: %s", strings.Join(args, " "), out)
	return out
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand(nil)
	commands := []string{"whoami", "name", "token", "invite", "join", "partner", "unpair", "send", "doodle",
		"history", "watch", "delete", "paint", "fill", "clear", "nudge", "mood"}

	for _, name := range commands {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestInvalidFormat(t *testing.T) {
	_, err := run(t, testOpener(t, memory.NewMemoryStore()), "whoami", "--format", "yaml")
	assert.ErrorContains(t, err, "invalid format")
}

func TestPairAndChat(t *testing.T) {
	remote := memory.NewMemoryStore()
	alice := testOpener(t, remote)
	bob := testOpener(t, remote)

	mustRun(t, alice, "name", "Alice")
	mustRun(t, bob, "name", "Bob")

	code := strings.TrimSpace(mustRun(t, alice, "invite"))
	assert.Len(t, code, 6)
	assert.Contains(t, mustRun(t, alice, "whoami"), "state: waiting")

	out := mustRun(t, bob, "join", strings.ToLower(code))
	assert.Contains(t, out, "paired:")

	// Alice learns about the pair on her next start
	assert.Contains(t, mustRun(t, alice, "whoami"), "state: paired")
	assert.Contains(t, mustRun(t, alice, "partner"), "Bob")

	mustRun(t, alice, "send", "hello", "bob")
	id := strings.TrimSpace(mustRun(t, bob, "send", "hi alice"))

	history := mustRun(t, alice, "history")
	lines := strings.Split(strings.TrimSpace(history), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Bob: hi alice")
	assert.Contains(t, lines[1], "Alice: hello bob")

	mustRun(t, alice, "delete", id)
	assert.NotContains(t, mustRun(t, alice, "history"), "hi alice")

	_, err := run(t, alice, "history", "--archived")
	assert.ErrorContains(t, err, "archive is not configured")

	mustRun(t, alice, "unpair")
	assert.Contains(t, mustRun(t, bob, "whoami"), "state: named")
	_, err = run(t, bob, "send", "anyone?")
	assert.Error(t, err)
}

func TestCanvasCommands(t *testing.T) {
	remote := memory.NewMemoryStore()
	alice := testOpener(t, remote)
	bob := testOpener(t, remote)

	mustRun(t, alice, "name", "Alice")
	mustRun(t, bob, "name", "Bob")
	code := strings.TrimSpace(mustRun(t, alice, "invite"))
	mustRun(t, bob, "join", code)

	grid := mustRun(t, alice, "paint", "0,0", "1,0", "--color", "#FF0000")
	assert.True(t, strings.HasPrefix(grid, "##......"))

	grid = mustRun(t, bob, "paint", "0,1", "--color", "#0000FF", "--brush", "2")
	rows := strings.Split(grid, "\n")
	assert.Equal(t, "##", rows[0][:2])
	assert.Equal(t, "##", rows[1][:2])
	assert.Equal(t, "##", rows[2][:2])

	_, err := run(t, bob, "paint", "0,0", "--color", "red")
	assert.Error(t, err)

	grid = mustRun(t, alice, "fill", "23,23", "--color", "#00FF00", "--format", "json")
	assert.Contains(t, grid, `"23_23": "#00FF00"`)

	mustRun(t, alice, "clear")
	grid = mustRun(t, bob, "paint", "5,5", "--eraser")
	assert.NotContains(t, grid, "#")
}

func TestPresenceCommands(t *testing.T) {
	remote := memory.NewMemoryStore()
	alice := testOpener(t, remote)
	bob := testOpener(t, remote)

	mustRun(t, alice, "name", "Alice")
	mustRun(t, bob, "name", "Bob")
	code := strings.TrimSpace(mustRun(t, alice, "invite"))
	mustRun(t, bob, "join", code)

	assert.Contains(t, mustRun(t, alice, "nudge"), "delivered")
	assert.Contains(t, mustRun(t, alice, "mood", "☕"), "delivered")
	assert.Contains(t, mustRun(t, bob, "partner"), "☕")
	mustRun(t, alice, "mood", "--clear")
	assert.NotContains(t, mustRun(t, bob, "partner"), "☕")

	_, err := run(t, alice, "mood")
	assert.Error(t, err)
}

func TestTokenRoutesPartnerNotifications(t *testing.T) {
	remote := memory.NewMemoryStore()
	notifications := new(mqmocks.MockMQ)
	notifications.On("Send", mock.Anything, mock.MatchedBy(func(body string) bool {
		return strings.Contains(body, `"token":"alice-phone"`) && strings.Contains(body, `"kind":"nudge"`)
	})).Return(nil).Once()

	alice := testOpener(t, remote)
	bob := testOpenerWith(t, remote, app.Deps{NotifyQueue: notifications})

	mustRun(t, alice, "name", "Alice")
	mustRun(t, bob, "name", "Bob")
	code := strings.TrimSpace(mustRun(t, alice, "invite"))
	mustRun(t, bob, "join", code)

	// Without a token the nudge reaches the store but nobody's phone
	assert.Contains(t, mustRun(t, alice, "whoami"), "notifications: false")
	mustRun(t, bob, "nudge")
	notifications.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)

	mustRun(t, alice, "token", "alice-phone")
	assert.Contains(t, mustRun(t, alice, "whoami"), "notifications: true")
	mustRun(t, bob, "nudge")
	notifications.AssertExpectations(t)

	mustRun(t, alice, "token", "--clear")
	assert.Contains(t, mustRun(t, alice, "whoami"), "notifications: false")

	_, err := run(t, alice, "token")
	assert.Error(t, err)
}

func TestWhoamiShowsMirroredMessage(t *testing.T) {
	remote := memory.NewMemoryStore()
	alice := testOpener(t, remote)
	bob := testOpener(t, remote)

	mustRun(t, alice, "name", "Alice")
	mustRun(t, bob, "name", "Bob")
	code := strings.TrimSpace(mustRun(t, alice, "invite"))
	mustRun(t, bob, "join", code)

	mustRun(t, bob, "send", "see you at eight")
	assert.NotContains(t, mustRun(t, alice, "whoami"), "latest:")

	mustRun(t, alice, "watch", "--for", "20ms")
	assert.Contains(t, mustRun(t, alice, "whoami"), "latest: Bob: see you at eight")
	assert.Contains(t, mustRun(t, alice, "whoami", "--format", "json"), `"fromName": "Bob"`)
}

func TestParseCell(t *testing.T) {
	c, err := parseCell("3, 4")
	require.NoError(t, err)
	assert.Equal(t, 3, c.X)
	assert.Equal(t, 4, c.Y)

	for _, bad := range []string{"3", "a,1", "1,b"} {
		_, err := parseCell(bad)
		assert.Error(t, err, bad)
	}
}
