package cli

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDefaultsToHelp(t *testing.T) {
	parsed, err := Parse(nil)
	require.NoError(t, err)
	require.True(t, parsed.ShowHelp)
	require.Equal(t, CommandHelp, parsed.Command)
}

func TestParseCommandWithConfig(t *testing.T) {
	parsed, err := Parse([]string{"--config", "/tmp/viva.jsonc", "--verbose", "doctor"})
	require.NoError(t, err)
	require.Equal(t, CommandDoctor, parsed.Command)
	require.Equal(t, "/tmp/viva.jsonc", parsed.ConfigPath)
	require.True(t, parsed.Verbose)
	require.False(t, parsed.ShowHelp)
}

func TestParseRunFlags(t *testing.T) {
	parsed, err := Parse([]string{
		"--config=/tmp/cfg.jsonc",
		"run",
		"--room", "R-101",
		"--participant=p-7",
		"--name", "Ada Lovelace",
		"--email", "ada@example.com",
		"--premium",
	})
	require.NoError(t, err)
	require.Equal(t, CommandRun, parsed.Command)
	require.Equal(t, "/tmp/cfg.jsonc", parsed.ConfigPath)
	require.Equal(t, RunFlags{
		Room:        "R-101",
		Participant: "p-7",
		Name:        "Ada Lovelace",
		Email:       "ada@example.com",
		Premium:     true,
	}, parsed.Run)
}

func TestParseArgMatrix(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantErr  string
		wantCmd  Command
		wantHelp bool
		wantPath string
	}{
		{name: "help short flag", args: []string{"-h"}, wantCmd: CommandHelp, wantHelp: true},
		{name: "help long flag", args: []string{"--help"}, wantCmd: CommandHelp, wantHelp: true},
		{name: "run help", args: []string{"run", "--help"}, wantCmd: CommandHelp, wantHelp: true},
		{name: "version flag", args: []string{"--version"}, wantCmd: CommandVersion},
		{name: "config after command", args: []string{"status", "--config", "/tmp/cfg"}, wantErr: "unexpected arguments after command"},
		{name: "missing config path", args: []string{"--config"}, wantErr: "requires a path"},
		{name: "unknown flag", args: []string{"--bogus"}, wantErr: "unknown flag"},
		{name: "unknown command", args: []string{"bogus"}, wantErr: "unknown command"},
		{name: "extra args after command", args: []string{"doctor", "extra"}, wantErr: "unexpected arguments"},
		{name: "run flag without run", args: []string{"--room", "r1", "run"}, wantErr: "only valid with the run command"},
		{name: "run without room", args: []string{"run", "--participant", "p1"}, wantErr: "requires --room"},
		{name: "run without participant", args: []string{"run", "--room", "r1"}, wantErr: "requires --participant"},
		{name: "run flag missing value", args: []string{"run", "--room"}, wantErr: "requires a value"},
		{name: "bad premium value", args: []string{"run", "--room", "r", "--participant", "p", "--premium=yes"}, wantErr: "--premium"},
		{name: "valid retry command", args: []string{"retry"}, wantCmd: CommandRetry},
		{name: "valid stop with config", args: []string{"--config", "/tmp/cfg", "stop"}, wantCmd: CommandStop, wantPath: "/tmp/cfg"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := Parse(tc.args)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.wantCmd, parsed.Command)
			require.Equal(t, tc.wantHelp, parsed.ShowHelp)
			require.Equal(t, tc.wantPath, parsed.ConfigPath)
		})
	}
}

func TestParsePremiumExplicitFalse(t *testing.T) {
	parsed, err := Parse([]string{"run", "--room", "r", "--participant", "p", "--premium=false"})
	require.NoError(t, err)
	require.False(t, parsed.Run.Premium)
}

func TestHelpTextIncludesCoreCommands(t *testing.T) {
	text := HelpText("viva")
	require.Contains(t, text, "run --room ROOM --participant ID")
	require.Contains(t, text, "stop")
	require.Contains(t, text, "retry")
	require.Contains(t, text, "doctor")
	require.Contains(t, text, "--config PATH")
}
