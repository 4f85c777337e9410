package policy

import "regexp"

// hardDenyPatterns are compiled once at process init and never reloaded —
// not even by a successful config hot-reload. They are deliberately kept
// out of the Config struct so no policy document edit can weaken them.
//
// The set mirrors the destructive-command categories called out by the
// policy document's own non-reloadable guarantee: rm -rf variants,
// permissive chmod, pipe-to-shell, fork bombs, system/disk destruction,
// privilege escalation, reverse shells, and history tampering.
var hardDenyPatterns = []*regexp.Regexp{
	// Destructive file operations
	regexp.MustCompile(`\brm\s+(-[a-zA-Z]*)?r[a-zA-Z]*f`),
	regexp.MustCompile(`\brm\s+(-[a-zA-Z]*)?f[a-zA-Z]*r`),
	regexp.MustCompile(`\brm\s+-rf\b`),
	// Dangerous permission changes
	regexp.MustCompile(`\bchmod\s+777\b`),
	regexp.MustCompile(`\bchmod\s+-R\s+777\b`),
	// Pipe-to-shell attacks
	regexp.MustCompile(`(?i)\bcurl\b.*\|\s*(ba)?sh\b`),
	regexp.MustCompile(`(?i)\bwget\b.*\|\s*(ba)?sh\b`),
	// Fork bombs
	regexp.MustCompile(`:\(\)\{.*\|.*&.*\};:`),
	regexp.MustCompile(`(?i)\bfork\s*bomb\b`),
	// System destruction
	regexp.MustCompile(`\bshutdown\b`),
	regexp.MustCompile(`\breboot\b`),
	regexp.MustCompile(`\bhalt\b`),
	regexp.MustCompile(`\binit\s+0\b`),
	regexp.MustCompile(`\bpoweroff\b`),
	// Disk destruction
	regexp.MustCompile(`\bmkfs\b`),
	regexp.MustCompile(`\bdd\s+.*of=/dev/`),
	// Privilege escalation
	regexp.MustCompile(`\bsudo\s+su\b`),
	regexp.MustCompile(`\bsu\s+-\s*$`),
	regexp.MustCompile(`\bpasswd\b`),
	// Network exfiltration / reverse shells
	regexp.MustCompile(`\bnc\s+-[a-zA-Z]*l`),
	regexp.MustCompile(`/dev/tcp/`),
	// Package manager as root
	regexp.MustCompile(`\bsudo\s+pip\b`),
	regexp.MustCompile(`\bsudo\s+npm\b`),
	// History/log tampering
	regexp.MustCompile(`\bhistory\s+-c\b`),
	regexp.MustCompile(`>\s*/dev/null\s+2>&1\s*&\s*$`),
}

// isDeniedCommand reports whether command matches any hard-coded deny
// pattern, returning the pattern source for the policy reason string.
func isDeniedCommand(command string) (bool, string) {
	for _, pattern := range hardDenyPatterns {
		if pattern.MatchString(command) {
			return true, pattern.String()
		}
	}
	return false, ""
}
