package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"overhaul/internal/config"
	"overhaul/internal/index"
	"overhaul/internal/llm"
	"overhaul/internal/rag"
	"overhaul/internal/tui"
)

var (
	flagChatK     int
	flagChatPlain bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Ask questions about an indexed project",
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := openIndex(cmd.Context(), flagDB)
		if err != nil {
			return err
		}
		defer idx.Close()

		apiKey, err := config.APIKey(cfg.LLM.Provider, cfg.LLM.APIKeyEnv)
		if err != nil {
			return err
		}
		chat, err := llm.New(llm.Config{
			Provider:    cfg.LLM.Provider,
			Model:       cfg.LLM.Model,
			BaseURL:     cfg.LLM.BaseURL,
			APIKey:      apiKey,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return err
		}
		ask := newAsker(idx, chat, flagChatK)

		if !flagChatPlain && isTerminal(os.Stdin) && isTerminal(os.Stdout) {
			title := "the project"
			if root := idx.Root(); root != "" {
				title = filepath.Base(root)
			}
			return tui.RunChat(cmd.Context(), title, ask)
		}
		return chatREPL(cmd.Context(), ask)
	},
}

func init() {
	chatCmd.Flags().IntVarP(&flagChatK, "k", "k", 10, "number of functions to retrieve per question")
	chatCmd.Flags().BoolVar(&flagChatPlain, "plain", false, "line-based prompt instead of the full-screen view")
	rootCmd.AddCommand(chatCmd)
}

// newAsker answers questions from retrieved functions.
func newAsker(idx *index.Index, chat llm.Chat, k int) tui.AskFunc {
	return func(ctx context.Context, question string, history []llm.Message) (string, error) {
		chunks, err := idx.Query(ctx, question, k)
		if err != nil {
			return "", fmt.Errorf("retrieval error: %w", err)
		}
		answer, err := llm.Generate(ctx, chat, rag.BuildMessages(chunks, history, question))
		if err != nil {
			return "", fmt.Errorf("generation error: %w", err)
		}
		return answer, nil
	}
}

func chatREPL(ctx context.Context, ask tui.AskFunc) error {
	var history []llm.Message
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Println("overhaul chat (type /help for commands, /exit to quit)")
	fmt.Println()

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}

		switch question {
		case "/exit", "/quit":
			fmt.Println("Goodbye.")
			return nil
		case "/clear":
			history = nil
			fmt.Println("Conversation cleared.")
			continue
		case "/help":
			fmt.Println("Commands:")
			fmt.Println("  /clear  - clear conversation history")
			fmt.Println("  /exit   - quit chat")
			fmt.Println("  /help   - show this help")
			continue
		}

		fmt.Println(dimColor.Sprint("[Searching...]"))
		answer, err := ask(ctx, question, history)
		if err != nil {
			fmt.Fprintln(os.Stderr, badColor.Sprint(err))
			continue
		}

		fmt.Println()
		fmt.Println(answer)
		fmt.Println()

		// Keep the last 10 turns.
		history = append(history,
			llm.Message{Role: llm.RoleUser, Content: question},
			llm.Message{Role: llm.RoleAssistant, Content: answer},
		)
		if len(history) > 20 {
			history = history[len(history)-20:]
		}
	}
	return scanner.Err()
}
