package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "arbiter", cmd.Use)
	assert.Contains(t, cmd.Long, "append-only ledger")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{
		"claim", "peek", "extend", "release", "force-release",
		"renew", "heartbeat", "claims", "batch", "reverse", "history",
	}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestBatchSubcommands(t *testing.T) {
	cmd := NewRootCommand()
	for _, sub := range []string{"create", "start", "item", "artifact", "verify", "complete", "fail", "show", "list"} {
		t.Run(sub, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{"batch", sub})
			require.NoError(t, err)
			assert.Equal(t, sub, subCmd.Name())
		})
	}
}

func TestReverseSubcommands(t *testing.T) {
	cmd := NewRootCommand()
	for _, sub := range []string{"create", "execute", "verify", "actions", "show", "snapshot"} {
		t.Run(sub, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{"reverse", sub})
			require.NoError(t, err)
			assert.Equal(t, sub, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	dbFlag := cmd.PersistentFlags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, "arbiter.db", dbFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	agentFlag := cmd.PersistentFlags().Lookup("agent")
	require.NotNil(t, agentFlag)
	assert.Equal(t, "", agentFlag.DefValue)

	workspaceFlag := cmd.PersistentFlags().Lookup("workspace")
	require.NotNil(t, workspaceFlag)
	assert.Equal(t, ".", workspaceFlag.DefValue)
}

func TestClaimCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	claimCmd, _, err := cmd.Find([]string{"claim"})
	require.NoError(t, err)

	modeFlag := claimCmd.Flags().Lookup("mode")
	require.NotNil(t, modeFlag)
	assert.Equal(t, "write", modeFlag.DefValue)

	ttlFlag := claimCmd.Flags().Lookup("ttl")
	require.NotNil(t, ttlFlag)
	assert.Equal(t, "900", ttlFlag.DefValue)

	nsFlag := claimCmd.Flags().Lookup("namespace")
	require.NotNil(t, nsFlag)
	assert.Equal(t, "", nsFlag.DefValue)
}

func TestForceReleaseCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	frCmd, _, err := cmd.Find([]string{"force-release"})
	require.NoError(t, err)

	reasonFlag := frCmd.Flags().Lookup("reason")
	require.NotNil(t, reasonFlag)
	assert.Equal(t, "", reasonFlag.DefValue)
}

func TestHeartbeatCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	hbCmd, _, err := cmd.Find([]string{"heartbeat"})
	require.NoError(t, err)

	payloadFlag := hbCmd.Flags().Lookup("payload")
	require.NotNil(t, payloadFlag)
	assert.Equal(t, "{}", payloadFlag.DefValue)

	eventFlag := hbCmd.Flags().Lookup("event")
	require.NotNil(t, eventFlag)
	assert.Equal(t, "lease.heartbeat", eventFlag.DefValue)
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{"--format", "invalid", "claims"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
