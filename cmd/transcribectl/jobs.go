package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	flagLanguage  string
	flagDiarize   bool
	flagTTS       bool
	flagPriority  int
	flagFormats   string
	flagModelID   string
	flagJobFormat string
)

var submitCmd = &cobra.Command{
	Use:   "submit <file>",
	Short: "Upload a media file as a new transcription job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fields := map[string]string{
			"language":           flagLanguage,
			"model_id":           flagModelID,
			"priority":           strconv.Itoa(flagPriority),
			"output_formats":     flagFormats,
			"enable_diarization": strconv.FormatBool(flagDiarize),
			"enable_tts":         strconv.FormatBool(flagTTS),
		}
		var job map[string]any
		if err := uploadJob(args[0], fields, &job); err != nil {
			return err
		}
		printJSON(job)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		path := "/api/jobs"
		if status != "" {
			path += "?status=" + status
		}
		var jobs []map[string]any
		if err := apiGet(path, &jobs); err != nil {
			return err
		}
		printJSON(jobs)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show a job's current status and progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var job map[string]any
		if err := apiGet("/api/jobs/"+args[0], &job); err != nil {
			return err
		}
		printJSON(job)
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a queued or running job, or delete a terminal one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp map[string]any
		if err := apiDelete("/api/jobs/"+args[0], &resp); err != nil {
			return err
		}
		if resp != nil {
			printJSON(resp)
		} else {
			fmt.Println("deleted")
		}
		return nil
	},
}

var transcriptCmd = &cobra.Command{
	Use:   "transcript <job-id>",
	Short: "Fetch a completed job's transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := fmt.Sprintf("/api/jobs/%s/transcript?format=%s", args[0], flagJobFormat)
		var raw any
		if err := apiGet(path, &raw); err != nil {
			return err
		}
		printJSON(raw)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(submitCmd, listCmd, statusCmd, cancelCmd, transcriptCmd)

	submitCmd.Flags().StringVar(&flagLanguage, "language", "auto", "source language, or \"auto\"")
	submitCmd.Flags().StringVar(&flagModelID, "model-id", "", "STT model id, default if omitted")
	submitCmd.Flags().IntVar(&flagPriority, "priority", 5, "priority 1 (most urgent) to 10")
	submitCmd.Flags().StringVar(&flagFormats, "formats", "json,srt", "comma-separated output formats")
	submitCmd.Flags().BoolVar(&flagDiarize, "diarize", false, "enable speaker diarization")
	submitCmd.Flags().BoolVar(&flagTTS, "tts", false, "enable TTS resynthesis")

	listCmd.Flags().String("status", "", "filter by comma-separated status list")

	transcriptCmd.Flags().StringVar(&flagJobFormat, "format", "json", "json, srt, vtt, or txt")
}
