package main

import (
	"strconv"

	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show current queue and concurrency status",
	RunE: func(cmd *cobra.Command, args []string) error {
		var snapshot map[string]any
		if err := apiGet("/api/queue", &snapshot); err != nil {
			return err
		}
		printJSON(snapshot)
		return nil
	},
}

var priorityCmd = &cobra.Command{
	Use:   "priority <job-id> <1-10>",
	Short: "Reorder a still-queued job's priority",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		priority, err := strconv.Atoi(args[1])
		if err != nil {
			return err
		}
		var resp map[string]any
		if err := apiPost("/api/queue/"+args[0]+"/priority", map[string]int{"priority": priority}, &resp); err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered models",
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, _ := cmd.Flags().GetString("type")
		path := "/api/models"
		if typ != "" {
			path += "?type=" + typ
		}
		var models []map[string]any
		if err := apiGet(path, &models); err != nil {
			return err
		}
		printJSON(models)
		return nil
	},
}

var modelsDownloadCmd = &cobra.Command{
	Use:   "download <model-id>",
	Short: "Materialize a registered model's bytes onto local disk",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp map[string]any
		if err := apiPost("/api/models/"+args[0]+"/download", nil, &resp); err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

var modelsSetDefaultCmd = &cobra.Command{
	Use:   "set-default <model-id>",
	Short: "Mark a model as the default for its type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp map[string]any
		if err := apiPost("/api/models/"+args[0]+"/set-default", nil, &resp); err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(queueCmd, priorityCmd)
	modelsListCmd.Flags().String("type", "", "filter by stt, diarization, or tts")
	modelsCmd.AddCommand(modelsListCmd, modelsDownloadCmd, modelsSetDefaultCmd)
	rootCmd.AddCommand(modelsCmd)
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage the model registry",
}
