// Package cli parses viva command-line arguments.
package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandRun     Command = "run"
	CommandStop    Command = "stop"
	CommandRetry   Command = "retry"
	CommandStatus  Command = "status"
	CommandDevices Command = "devices"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandRun:     {},
	CommandStop:    {},
	CommandRetry:   {},
	CommandStatus:  {},
	CommandDevices: {},
	CommandDoctor:  {},
	CommandVersion: {},
	CommandHelp:    {},
}

// RunFlags identify the participant an engine runs for.
type RunFlags struct {
	Room        string
	Participant string
	Name        string
	Email       string
	Premium     bool
}

type Parsed struct {
	Command    Command
	ConfigPath string
	Verbose    bool
	ShowHelp   bool
	Run        RunFlags
}

// Parse accepts global flags before the command and run flags after `run`.
func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}
	seenCommand := false

	for i := 0; i < len(args); i++ {
		name, value, hasValue := strings.Cut(args[i], "=")
		if !strings.HasPrefix(name, "-") {
			if seenCommand {
				return Parsed{}, fmt.Errorf("unexpected arguments after command %q", parsed.Command)
			}
			cmd := Command(args[i])
			if _, ok := validCommands[cmd]; !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", args[i])
			}
			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp
			seenCommand = true
			continue
		}

		takeValue := func(what string) (string, error) {
			if hasValue {
				return value, nil
			}
			i++
			if i >= len(args) {
				return "", fmt.Errorf("%s requires %s", name, what)
			}
			return args[i], nil
		}

		if seenCommand && parsed.Command != CommandRun {
			return Parsed{}, fmt.Errorf("unexpected arguments after command %q", parsed.Command)
		}

		var err error
		switch name {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--verbose":
			parsed.Verbose = true
		case "--config":
			parsed.ConfigPath, err = takeValue("a path")
		case "--room", "--participant", "--name", "--email", "--premium":
			if parsed.Command != CommandRun {
				return Parsed{}, fmt.Errorf("%s is only valid with the run command", name)
			}
			err = parsed.Run.set(name, value, hasValue, takeValue)
		default:
			return Parsed{}, fmt.Errorf("unknown flag: %s", name)
		}
		if err != nil {
			return Parsed{}, err
		}
	}

	if parsed.Command == CommandRun && !parsed.ShowHelp {
		if strings.TrimSpace(parsed.Run.Room) == "" {
			return Parsed{}, errors.New("run requires --room")
		}
		if strings.TrimSpace(parsed.Run.Participant) == "" {
			return Parsed{}, errors.New("run requires --participant")
		}
	}

	return parsed, nil
}

func (f *RunFlags) set(name, value string, hasValue bool, takeValue func(string) (string, error)) error {
	if name == "--premium" {
		switch {
		case !hasValue:
			f.Premium = true
		case value == "true":
			f.Premium = true
		case value == "false":
			f.Premium = false
		default:
			return fmt.Errorf("--premium must be true or false")
		}
		return nil
	}

	v, err := takeValue("a value")
	if err != nil {
		return err
	}
	switch name {
	case "--room":
		f.Room = v
	case "--participant":
		f.Participant = v
	case "--name":
		f.Name = v
	case "--email":
		f.Email = v
	}
	return nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] [--verbose] <command>
  %[1]s [--config PATH] run --room ROOM --participant ID [--name NAME] [--email EMAIL] [--premium]

Commands:
  run       Join a room and answer questions until redirected
  stop      Stop the active recording and submit the answer
  retry     Retry microphone access or reload the question audio
  status    Print current engine state
  devices   List available input devices
  doctor    Run configuration and environment checks
  version   Print version information
  help      Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/viva/config.jsonc)
  --verbose       Log at debug level
  -h, --help      Show help
  --version       Show version
`, binaryName)
}
