package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"overhaul/internal/rag"
)

var flagK int

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find the indexed functions closest to a query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := openIndex(cmd.Context(), flagDB)
		if err != nil {
			return err
		}
		defer idx.Close()

		query := strings.Join(args, " ")
		chunks, err := idx.Query(cmd.Context(), query, flagK)
		if err != nil {
			return err
		}
		if len(chunks) == 0 {
			fmt.Println(rag.NoResults)
			return nil
		}
		for i, c := range chunks {
			fmt.Printf("%s %s\n", okColor.Sprintf("%d.", i+1), c.Signature)
			fmt.Println(dimColor.Sprintf("   %s:%d-%d", c.FilePath, c.StartLine, c.EndLine))
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVarP(&flagK, "k", "k", rag.DefaultK, "number of functions to return")
	rootCmd.AddCommand(searchCmd)
}
