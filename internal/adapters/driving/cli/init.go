package cli

import (
	"bufio"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/sercha-docs/internal/adapters/driven/config/file"
)

var initAskToken bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	Long: `Writes an example configuration to the --config path, or to
~/.sercha-docs/config.toml. An existing file is never overwritten.

With --github-token the command also asks for a GitHub token and stores
it as GITHUB_TOKEN in a .env file next to the config.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initAskToken, "github-token", false,
		"prompt for a GitHub token and store it in .env next to the config")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, _ []string) error {
	path := cfgPath
	if path == "" {
		p, err := file.DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := file.WriteExample(path); err != nil {
		return err
	}
	cmd.Printf("Wrote %s\n", path)

	if initAskToken {
		cmd.Print("GitHub token (input hidden): ")
		token := readSecret(cmd.InOrStdin())
		cmd.Println()
		if token != "" {
			envPath := filepath.Join(filepath.Dir(path), ".env")
			if err := storeEnv(envPath, file.EnvGitHubToken, token); err != nil {
				return err
			}
			cmd.Printf("Stored %s in %s\n", file.EnvGitHubToken, envPath)
		}
	}

	cmd.Println("Enable a source, then run 'sercha-docs index'.")
	return nil
}

//nolint:errcheck // CLI helper, error ignored for UX
func readSecret(in io.Reader) string {
	// Try to read without echo
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		if err == nil {
			return strings.TrimSpace(string(secret))
		}
	}
	// Fallback to regular input
	reader := bufio.NewReader(in)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

// storeEnv sets key in the .env file at path, keeping other entries.
func storeEnv(path, key, value string) error {
	env := map[string]string{}
	if existing, err := godotenv.Read(path); err == nil {
		env = existing
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	env[key] = value
	if err := godotenv.Write(env, path); err != nil {
		return err
	}
	return os.Chmod(path, 0600)
}
