package cli

import (
	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured documentation sources",
	RunE:  runSources,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

func runSources(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(cfg.Sources) == 0 {
		cmd.Println("No sources configured. Run 'sercha-docs init' to create a config file.")
		return nil
	}

	for i := range cfg.Sources {
		s := &cfg.Sources[i]
		state := "enabled"
		if !s.Enabled {
			state = "disabled"
		}
		location := ""
		switch {
		case s.Website != nil:
			location = s.Website.URL
			if s.Website.PathPrefix != "" && s.Website.PathPrefix != "/" {
				location += " (prefix " + s.Website.PathPrefix + ")"
			}
		case s.Repository != nil:
			location = "github.com/" + s.Repository.FullName()
			if s.Repository.Branch != "" {
				location += "@" + s.Repository.Branch
			}
		}
		cmd.Printf("  %-20s %-10s %-8s %s\n", s.Name, s.Kind, state, location)
	}
	return nil
}
