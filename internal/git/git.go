package git

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/illarion/vaultkey/internal/security"
)

// GitStatus contains git integration status information
type GitStatus struct {
	IsRepo             bool
	DatabaseTracked    bool
	TrackedKeyFiles    []string // Key files tracked by git (bad)
	UnignoredKeyFiles  []string // Key files not in .gitignore (warning)
	IgnoredKeyFiles    []string // Key files in .gitignore (good)
	OutsideRepoKeyFile []string // Key files outside the work tree (good)
}

// IsGitRepo checks if the working directory is inside a git repository
func IsGitRepo(workDir string) bool {
	cmd := exec.Command("git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = workDir
	err := cmd.Run()
	return err == nil
}

// TopLevel returns the root of the work tree containing workDir
func TopLevel(workDir string) (string, error) {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = workDir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to find git work tree: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// IsTracked checks if a file is tracked by git
func IsTracked(workDir, path string) bool {
	cmd := exec.Command("git", "ls-files", "--", path)
	cmd.Dir = workDir
	output, err := cmd.Output()

	if err != nil {
		return false
	}

	return len(strings.TrimSpace(string(output))) > 0
}

// IsIgnored checks if a file is ignored by git (handles all .gitignore files)
func IsIgnored(workDir, path string) bool {
	cmd := exec.Command("git", "check-ignore", "-q", "--", path)
	cmd.Dir = workDir
	err := cmd.Run()

	// git check-ignore returns exit code 0 if file is ignored
	return err == nil
}

// CheckGitIntegration checks the database and key files against the work
// tree containing the database
func CheckGitIntegration(databasePath string, keyFiles []string) (*GitStatus, error) {
	status := &GitStatus{}

	workDir := filepath.Dir(databasePath)
	if !IsGitRepo(workDir) {
		return status, nil
	}
	status.IsRepo = true

	top, err := TopLevel(workDir)
	if err != nil {
		return nil, err
	}
	pv, err := security.New(top)
	if err != nil {
		return nil, err
	}
	defer pv.Close()

	if rel, err := pv.Relative(databasePath); err == nil {
		status.DatabaseTracked = IsTracked(top, rel)
	}

	for _, file := range keyFiles {
		rel, err := pv.Relative(file)
		if err != nil {
			status.OutsideRepoKeyFile = append(status.OutsideRepoKeyFile, file)
			continue
		}

		if IsTracked(top, rel) {
			status.TrackedKeyFiles = append(status.TrackedKeyFiles, rel)
		}
		if IsIgnored(top, rel) {
			status.IgnoredKeyFiles = append(status.IgnoredKeyFiles, rel)
		} else {
			status.UnignoredKeyFiles = append(status.UnignoredKeyFiles, rel)
		}
	}

	return status, nil
}

// FormatGitStatus formats git status for display
func FormatGitStatus(status *GitStatus) string {
	if !status.IsRepo {
		return ""
	}

	var result strings.Builder
	result.WriteString("\nGit Integration:\n")

	if status.DatabaseTracked {
		result.WriteString("   ok: database is tracked by git\n")
	} else {
		result.WriteString("   info: database not tracked by git\n")
	}

	// A tracked key file is the critical issue
	trackedSet := make(map[string]bool, len(status.TrackedKeyFiles))
	for _, file := range status.TrackedKeyFiles {
		trackedSet[file] = true
		result.WriteString(fmt.Sprintf("   error: key file %s tracked by git (run: git rm --cached %s)\n", file, file))
	}

	for _, file := range status.UnignoredKeyFiles {
		if !trackedSet[file] {
			result.WriteString(fmt.Sprintf("   warning: key file %s not in .gitignore (add to .gitignore)\n", file))
		}
	}
	if len(status.IgnoredKeyFiles) > 0 && len(status.TrackedKeyFiles) == 0 {
		result.WriteString(fmt.Sprintf("   ok: %d key file(s) in .gitignore\n", len(status.IgnoredKeyFiles)))
	}
	if len(status.OutsideRepoKeyFile) > 0 {
		result.WriteString(fmt.Sprintf("   ok: %d key file(s) outside the repository\n", len(status.OutsideRepoKeyFile)))
	}

	return result.String()
}
