package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	agentapi "github.com/coder/agentapi-sdk-go"
)

var (
	sendRaw         bool
	waitTimeout     time.Duration
	chatWaitTimeout time.Duration
)

func init() {
	sendCmd.Flags().BoolVar(&sendRaw, "raw", false, "forward as raw input instead of a user message")
	waitCmd.Flags().DurationVar(&waitTimeout, "wait-timeout", 60*time.Second, "how long to wait for the agent to become idle")
	chatCmd.Flags().DurationVar(&chatWaitTimeout, "wait-timeout", 60*time.Second, "how long to wait for the agent to become idle")

	rootCmd.AddCommand(statusCmd, sendCmd, messagesCmd, chatCmd, uploadCmd, waitCmd, healthCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the agent's status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client := newClient(cfg)
		defer client.Close()

		status, err := client.Status()
		if err != nil {
			return err
		}
		fmt.Printf("status: %s\nagent_type: %s\n", status.Status, status.AgentType)
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <content>",
	Short: "Send a message to the agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client := newClient(cfg)
		defer client.Close()

		kind := agentapi.MessageKindUser
		if sendRaw {
			kind = agentapi.MessageKindRaw
		}
		result, err := client.SendMessage(args[0], kind)
		if err != nil {
			return err
		}
		fmt.Printf("ok: %t\n", result.OK)
		return nil
	},
}

var messagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "Print the conversation history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client := newClient(cfg)
		defer client.Close()

		conv, err := client.Messages()
		if err != nil {
			return err
		}
		for _, m := range conv.Messages {
			fmt.Printf("[%d] %s %s: %s\n", m.ID, m.Time.Format(time.RFC3339), m.Role, m.Content)
		}
		return nil
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat <prompt>",
	Short: "Send a prompt, wait for the agent to settle, and print the reply",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client := newClient(cfg)
		defer client.Close()

		if _, err := client.SendMessage(args[0], agentapi.MessageKindUser); err != nil {
			return err
		}
		if _, err := client.WaitUntilIdle(chatWaitTimeout); err != nil {
			return err
		}
		conv, err := client.Messages()
		if err != nil {
			return err
		}
		if last := conv.Last(); last != nil {
			fmt.Println(last.Content)
		}
		return nil
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <path>",
	Short: "Upload a local file to the agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client := newClient(cfg)
		defer client.Close()

		result, err := client.Upload(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("ok: %t\nfile_path: %s\n", result.OK, result.FilePath)
		return nil
	},
}

var waitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Block until the agent becomes idle",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client := newClient(cfg)
		defer client.Close()

		idle, err := client.WaitUntilIdle(waitTimeout)
		if err != nil {
			return err
		}
		if !idle {
			return fmt.Errorf("agent did not become idle within %s", waitTimeout)
		}
		fmt.Println("idle")
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check server liveness",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client := newClient(cfg)
		defer client.Close()

		if err := client.Health(); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil
	},
}
