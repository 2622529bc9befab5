package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"overhaul/internal/config"
	"overhaul/internal/llm"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the chat models the configured provider accepts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.LLM.Provider == "ollama" {
			models, err := llm.ListOllamaModels(cmd.Context(), cfg.LLM.BaseURL)
			if err != nil {
				return err
			}
			for _, m := range models {
				fmt.Printf("%-40s %s\n", m.Name, dimColor.Sprint(llm.FormatSize(m.Size)))
			}
			return nil
		}
		for _, m := range config.AvailableModels {
			line := m
			if m == config.DefaultModel {
				line += okColor.Sprint(" (default)")
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
