// Package validation checks user supplied collaborator commands, arguments
// and directory roots before anything is executed or deleted.
package validation

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

var shellMetacharacters = []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\\", "\"", "'"}

// ValidateArgument validates a command line argument to prevent injection attacks.
// Placeholders such as {input} are allowed.
func ValidateArgument(arg string) error {
	for _, char := range shellMetacharacters {
		if strings.Contains(arg, char) {
			return fmt.Errorf("contains dangerous character: %s", char)
		}
	}

	if strings.Contains(arg, "..") {
		return fmt.Errorf("contains path traversal: %s", arg)
	}

	if filepath.IsAbs(arg) {
		return fmt.Errorf("absolute path not allowed: %s", arg)
	}

	return nil
}

// ValidateCommand validates the executable of a collaborator command. Bare
// names are looked up on PATH; absolute paths are accepted as given.
func ValidateCommand(command string) error {
	if command == "" {
		return fmt.Errorf("command cannot be empty")
	}

	if strings.ContainsAny(command, " \t\n") {
		return fmt.Errorf("command '%s' contains whitespace", command)
	}

	for _, char := range shellMetacharacters {
		if strings.Contains(command, char) {
			return fmt.Errorf("invalid command '%s': contains dangerous character: %s", command, char)
		}
	}

	if strings.Contains(command, "..") {
		return fmt.Errorf("invalid command '%s': contains path traversal", command)
	}

	return nil
}

// ValidatePath validates a source or build root. The build root is removed
// recursively by clean, so system directories are refused.
func ValidatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("path cannot be empty")
	}

	cleanPath := filepath.ToSlash(filepath.Clean(path))

	if cleanPath == "/" || cleanPath == "." {
		return fmt.Errorf("path %q is not allowed as a root", path)
	}

	restrictedPaths := []string{
		"/etc",
		"/proc",
		"/sys",
		"/dev",
		"/boot",
		"/bin",
		"/usr",
	}

	cleanPathLower := strings.ToLower(cleanPath)
	for _, restricted := range restrictedPaths {
		if cleanPathLower == restricted || strings.HasPrefix(cleanPathLower, restricted+"/") {
			return fmt.Errorf("access to restricted path denied: %s", path)
		}
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "<", ">"}
	for _, char := range dangerousChars {
		if strings.Contains(path, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}

// ValidateOrigin validates a websocket Origin header against the hosts the
// dev server answers on.
func ValidateOrigin(origin string, allowedOrigins []string) error {
	if origin == "" {
		return fmt.Errorf("origin header is required")
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin format: %w", err)
	}

	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return fmt.Errorf("invalid origin scheme '%s': only http and https are allowed", originURL.Scheme)
	}

	for _, allowed := range allowedOrigins {
		if origin == allowed || originURL.Host == allowed {
			return nil
		}
	}

	return fmt.Errorf("origin '%s' is not in allowed origins list", origin)
}
