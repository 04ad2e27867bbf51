package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vetlink/companion/backend/internal/analysis/classify"
	"github.com/vetlink/companion/backend/internal/analysis/crisis"
	"github.com/vetlink/companion/backend/internal/analysis/sentiment"
	"github.com/vetlink/companion/backend/internal/model/chat"
	"github.com/vetlink/companion/backend/internal/model/role"
	"github.com/vetlink/companion/backend/internal/service/suggest"
)

var (
	analyzeSupportWeight float64
	analyzeJSON          bool
	suggestRole          string
	suggestLimit         int
)

// analyzeCmd runs the text analyzers without any services
var analyzeCmd = &cobra.Command{
	Use:   "analyze <text>",
	Short: "Classify, score and crisis-check a message",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		report := analyzeText(text, analyzeSupportWeight)

		out := cmd.OutOrStdout()
		if analyzeJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		fmt.Fprintf(out, "category:   %s\n", report.Category)
		fmt.Fprintf(out, "sentiment:  %s (score %.2f, confidence %.2f)\n", report.Sentiment, report.Score, report.Confidence)
		if report.Crisis != "" {
			fmt.Fprintf(out, "crisis:     %s\n", report.Crisis)
		} else {
			fmt.Fprintln(out, "crisis:     none")
		}
		return nil
	},
}

// suggestCmd prints the quick replies shown after a user message
var suggestCmd = &cobra.Command{
	Use:   "suggest <text>",
	Short: "Show the suggestions offered after a user message",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, ok := role.NewMemoryStore(role.Seed()).FindByID(suggestRole)
		if !ok {
			return fmt.Errorf("unknown role %q", suggestRole)
		}
		text := strings.Join(args, " ")
		msg := chat.Message{Sender: chat.SenderUser, Text: text, Category: classify.Classify(text)}
		res := sentiment.Analyze(text)
		msg.Sentiment = res.Sentiment
		msg.SentimentScore = res.Score
		_, msg.Crisis = crisis.Match(text)

		for i, s := range suggest.New(suggestLimit).Suggest([]chat.Message{msg}, r) {
			fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", i+1, s)
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().Float64Var(&analyzeSupportWeight, "support-weight", sentiment.DefaultSupportWeight, "multiplier for support-term matches")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the report as JSON")

	suggestCmd.Flags().StringVar(&suggestRole, "role", role.Veteran, "assistant role id")
	suggestCmd.Flags().IntVar(&suggestLimit, "limit", 5, "maximum suggestions")
}

type analysisReport struct {
	Category   chat.Category  `json:"category"`
	Sentiment  chat.Sentiment `json:"sentiment"`
	Score      float64        `json:"score"`
	Confidence float64        `json:"confidence"`
	Crisis     crisis.Family  `json:"crisis,omitempty"`
}

func analyzeText(text string, supportWeight float64) analysisReport {
	res := sentiment.New(sentiment.Options{SupportWeight: supportWeight}).Analyze(text)
	family, _ := crisis.Match(text)
	return analysisReport{
		Category:   classify.Classify(text),
		Sentiment:  res.Sentiment,
		Score:      res.Score,
		Confidence: res.Confidence,
		Crisis:     family,
	}
}
