package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Command describes a subcommand for completion scripts.
type Command struct {
	Name  string
	Usage string
	Flags []string
}

// Completion generates a completion script for shell.
func Completion(shell, program string, commands []Command, globalFlags []string) (string, error) {
	cmds := append([]Command(nil), commands...)
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })

	switch shell {
	case "bash":
		return bashCompletion(program, cmds, globalFlags), nil
	case "zsh":
		return zshCompletion(program, cmds), nil
	case "fish":
		return fishCompletion(program, cmds, globalFlags), nil
	default:
		return "", fmt.Errorf("unsupported shell: %s (supported: bash, zsh, fish)", shell)
	}
}

func funcName(program string) string {
	return "_" + strings.NewReplacer("-", "_", ".", "_").Replace(program)
}

func bashCompletion(program string, cmds []Command, globalFlags []string) string {
	var b strings.Builder
	fn := funcName(program) + "_completion"
	names := make([]string, 0, len(cmds))
	for _, c := range cmds {
		names = append(names, c.Name)
	}

	fmt.Fprintf(&b, "#!/bin/bash\n# Bash completion for %s\n\n", program)
	fmt.Fprintf(&b, "%s() {\n", fn)
	b.WriteString("    local cur prev cmd\n    COMPREPLY=()\n")
	b.WriteString("    cur=\"${COMP_WORDS[COMP_CWORD]}\"\n    prev=\"${COMP_WORDS[COMP_CWORD-1]}\"\n")
	b.WriteString("    cmd=\"${COMP_WORDS[1]}\"\n\n")
	b.WriteString("    case \"${prev}\" in\n")
	b.WriteString("        -o)\n            COMPREPLY=( $(compgen -W \"text json yaml\" -- ${cur}) )\n            return 0\n            ;;\n")
	b.WriteString("        -env)\n            COMPREPLY=( $(compgen -f -- ${cur}) )\n            return 0\n            ;;\n")
	b.WriteString("        completion)\n            COMPREPLY=( $(compgen -W \"bash zsh fish\" -- ${cur}) )\n            return 0\n            ;;\n")
	b.WriteString("    esac\n\n")
	b.WriteString("    case \"${cmd}\" in\n")
	for _, c := range cmds {
		if len(c.Flags) == 0 {
			continue
		}
		fmt.Fprintf(&b, "        %s)\n            COMPREPLY=( $(compgen -W \"%s\" -- ${cur}) )\n            return 0\n            ;;\n",
			c.Name, strings.Join(c.Flags, " "))
	}
	b.WriteString("    esac\n\n")
	fmt.Fprintf(&b, "    COMPREPLY=( $(compgen -W \"%s %s\" -- ${cur}) )\n    return 0\n}\n\n",
		strings.Join(names, " "), strings.Join(globalFlags, " "))
	fmt.Fprintf(&b, "complete -F %s %s\n", fn, program)
	return b.String()
}

func zshCompletion(program string, cmds []Command) string {
	var b strings.Builder
	fn := funcName(program)

	fmt.Fprintf(&b, "#compdef %s\n\n%s() {\n    local -a commands\n    commands=(\n", program, fn)
	for _, c := range cmds {
		fmt.Fprintf(&b, "        '%s:%s'\n", c.Name, strings.ReplaceAll(c.Usage, "'", ""))
	}
	b.WriteString("    )\n\n    _arguments -C \\\n        '-o[Output format]:format:(text json yaml)' \\\n")
	b.WriteString("        '-env[Env file]:file:_files' \\\n        '1: :->command' \\\n        '*:: :->args'\n\n")
	b.WriteString("    case $state in\n        command)\n            _describe 'command' commands\n            ;;\n        args)\n")
	b.WriteString("            case $words[1] in\n")
	for _, c := range cmds {
		if len(c.Flags) == 0 {
			continue
		}
		fmt.Fprintf(&b, "                %s)\n                    _values 'flag' %s\n                    ;;\n", c.Name, strings.Join(c.Flags, " "))
	}
	b.WriteString("                completion)\n                    _values 'shell' bash zsh fish\n                    ;;\n")
	b.WriteString("            esac\n            ;;\n    esac\n}\n\n")
	fmt.Fprintf(&b, "%s \"$@\"\n", fn)
	return b.String()
}

func fishCompletion(program string, cmds []Command, globalFlags []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Fish completion for %s\n\n", program)
	for _, c := range cmds {
		fmt.Fprintf(&b, "complete -c %s -f -n \"__fish_use_subcommand\" -a \"%s\" -d \"%s\"\n", program, c.Name, c.Usage)
	}
	b.WriteString("\n")
	for _, c := range cmds {
		for _, f := range c.Flags {
			fmt.Fprintf(&b, "complete -c %s -f -n \"__fish_seen_subcommand_from %s\" -o %s\n", program, c.Name, strings.TrimPrefix(f, "-"))
		}
	}
	for _, f := range globalFlags {
		fmt.Fprintf(&b, "complete -c %s -o %s\n", program, strings.TrimPrefix(f, "-"))
	}
	return b.String()
}

// InstallCompletion writes the script where shell looks for completions and returns the path.
func InstallCompletion(shell, program, script string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	var path string
	switch shell {
	case "bash":
		path = filepath.Join(home, ".bash_completion.d", program)
	case "zsh":
		path = filepath.Join(home, ".zsh", "completion", "_"+program)
	case "fish":
		path = filepath.Join(home, ".config", "fish", "completions", program+".fish")
	default:
		return "", fmt.Errorf("unsupported shell: %s", shell)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create completion directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(script), 0o644); err != nil {
		return "", fmt.Errorf("failed to write completion script: %w", err)
	}
	return path, nil
}
