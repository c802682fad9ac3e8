package cli

import (
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	agentapi "github.com/coder/agentapi-sdk-go"
)

var (
	ruleModel     string
	ruleFallbacks []string
	ruleRetries   int
	ruleTimeout   int

	completeAgent string
	completeModel string
)

func init() {
	rulesSetCmd.Flags().StringVar(&ruleModel, "model", agentapi.DefaultPreferredModel, "preferred model")
	rulesSetCmd.Flags().StringSliceVar(&ruleFallbacks, "fallback", nil, "fallback model, repeatable")
	rulesSetCmd.Flags().IntVar(&ruleRetries, "retries", 3, "server-side retry count")
	rulesSetCmd.Flags().IntVar(&ruleTimeout, "rule-timeout", 30, "server-side timeout in seconds")

	completeCmd.Flags().StringVar(&completeAgent, "agent", "default", "target agent id")
	completeCmd.Flags().StringVar(&completeModel, "model", "", "model override")

	rulesCmd.AddCommand(rulesGetCmd, rulesSetCmd, rulesListCmd)
	rootCmd.AddCommand(completeCmd, rulesCmd, sessionsCmd)
}

var completeCmd = &cobra.Command{
	Use:   "complete <prompt>",
	Short: "Run a chat completion through the routing layer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client := newCompletionsClient(cfg)
		defer client.Close()

		resp, err := client.CreateChatCompletion(cmd.Context(), completeAgent, []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: args[0]},
		}, completeModel)
		if err != nil {
			return err
		}
		fmt.Println(resp.Text())
		return nil
	},
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage routing rules",
}

var rulesGetCmd = &cobra.Command{
	Use:   "get <agent>",
	Short: "Show the routing rule for an agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client := newCompletionsClient(cfg)
		defer client.Close()

		rule, err := client.GetRoutingRule(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printRule(rule)
		return nil
	},
}

var rulesSetCmd = &cobra.Command{
	Use:   "set <agent>",
	Short: "Set the routing rule for an agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client := newCompletionsClient(cfg)
		defer client.Close()

		rule := agentapi.RoutingRule{
			Agent:          args[0],
			PreferredModel: ruleModel,
			FallbackModels: ruleFallbacks,
			MaxRetries:     ruleRetries,
			TimeoutSeconds: ruleTimeout,
		}
		if err := client.SetRoutingRule(cmd.Context(), rule); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil
	},
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all configured routing rules",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client := newCompletionsClient(cfg)
		defer client.Close()

		rules, err := client.ListRoutingRules(cmd.Context())
		if err != nil {
			return err
		}
		for _, rule := range rules {
			printRule(rule)
		}
		return nil
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List active agent sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client := newCompletionsClient(cfg)
		defer client.Close()

		sessions, err := client.ListSessions(cmd.Context())
		if err != nil {
			return err
		}
		for _, sess := range sessions {
			started := time.Unix(sess.Started, 0).UTC().Format(time.RFC3339)
			fmt.Printf("%s agent=%s started=%s models=%s\n",
				sess.ID, sess.Agent, started, strings.Join(sess.Models, ","))
		}
		return nil
	},
}

func printRule(rule agentapi.RoutingRule) {
	fmt.Printf("agent: %s\npreferred_model: %s\nfallback_models: %s\nmax_retries: %d\ntimeout_seconds: %d\n",
		rule.Agent, rule.PreferredModel, strings.Join(rule.FallbackModels, ","), rule.MaxRetries, rule.TimeoutSeconds)
}
