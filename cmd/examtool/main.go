// Command examtool checks exam files offline: it validates the format, shows a
// student's draw and scores a set of answers against the derived key.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stemsi/autoexam/internal/engine"
	"github.com/stemsi/autoexam/internal/logger"
)

// errInvalid makes the process exit non-zero without printing usage.
var errInvalid = errors.New("exam file has blocking issues")

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "examtool",
		Short:        "Validate, preview and score plain-text exam files",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringP("format", "f", "text", "Output format (text, json)")
	pf.String("log-level", "warn", "Log level (debug, info, warn, error)")
	pf.String("log-format", "pretty", "Log format (pretty, json)")

	root.AddCommand(validateCmd(), previewCmd(), scoreCmd(), keyCmd())
	return root
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())
	_ = v.BindPFlags(cmd.InheritedFlags())

	v.SetEnvPrefix("AUTOEXAM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("autoexam")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/autoexam")
	_ = v.ReadInConfig()

	return v
}

func setup(cmd *cobra.Command) (*viper.Viper, zerolog.Logger) {
	v := viperForCmd(cmd)
	log := logger.SetupWriter(v.GetString("log-level"), v.GetString("log-format"), cmd.ErrOrStderr())
	if used := v.ConfigFileUsed(); used != "" {
		log.Debug().Str("path", used).Msg("Loaded config file")
	}
	return v, log
}

func readExam(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(b), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ─── validate ────────────────────────────────────────────────────────

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>...",
		Short: "Report question counts and format issues",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, log := setup(cmd)
			out := cmd.OutOrStdout()

			invalid := 0
			results := make(map[string]engine.Metadata, len(args))
			for _, path := range args {
				content, err := readExam(path)
				if err != nil {
					return err
				}
				meta := engine.Validate(content)
				results[path] = meta
				if !meta.Valid {
					invalid++
				}
				log.Debug().Str("file", path).Bool("valid", meta.Valid).Int("issues", len(meta.Issues)).Msg("Validated")
			}

			if v.GetString("format") == "json" {
				if err := writeJSON(out, results); err != nil {
					return err
				}
			} else {
				for _, path := range args {
					printMetadata(out, path, results[path])
				}
			}

			if invalid > 0 {
				return errInvalid
			}
			return nil
		},
	}
}

func printMetadata(w io.Writer, path string, m engine.Metadata) {
	status := "OK"
	if !m.Valid {
		status = "INVALID"
	}
	fmt.Fprintf(w, "%s: %s\n", path, status)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "  type\t%s\n", m.ExamType)
	fmt.Fprintf(tw, "  language\t%s (%s)\n", m.Language, m.Direction)
	fmt.Fprintf(tw, "  questions\t%d (%d multiple choice, %d open)\n", m.TotalQuestions, m.MultipleChoiceCount, m.OpenQuestionsCount)
	tw.Flush()

	for _, is := range m.Issues {
		marker := "warning"
		if is.Type.Blocking() {
			marker = "error"
		}
		fmt.Fprintf(w, "  %s: %s\n", marker, is.Message)
	}
}

// ─── preview ─────────────────────────────────────────────────────────

func previewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview <file>",
		Short: "Show the questions one student would receive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, _ := setup(cmd)
			content, err := readExam(args[0])
			if err != nil {
				return err
			}
			exam, err := engine.Parse(content)
			if err != nil {
				return err
			}

			rnd := engine.DefaultRandomizer
			if seed := v.GetUint64("seed"); seed != 0 {
				rnd = rand.New(rand.NewPCG(seed, seed))
			}
			draw := engine.Draw(exam, v.GetBool("shuffle"), v.GetInt("max"), rnd)

			out := cmd.OutOrStdout()
			if v.GetString("format") == "json" {
				return writeJSON(out, draw)
			}
			for _, q := range draw {
				fmt.Fprintln(out, q.Display())
				for _, opt := range q.Options {
					mark := " "
					if v.GetBool("answers") && opt == q.Answer {
						mark = "*"
					}
					fmt.Fprintf(out, "  %s %s\n", mark, opt)
				}
				if q.IsOpen() {
					fmt.Fprintln(out, "  (open answer)")
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.Bool("shuffle", true, "Shuffle questions and options")
	f.IntP("max", "n", 0, "Questions to draw (0 = all)")
	f.Uint64("seed", 0, "Seed for a reproducible shuffle (0 = random)")
	f.Bool("answers", false, "Mark the correct option")
	return cmd
}

// ─── score ───────────────────────────────────────────────────────────

type scoreResult struct {
	Score   *int `json:"score"`
	Pending bool `json:"pending"`
	Total   int  `json:"total"`
}

func scoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score <exam-file> <answers.json>",
		Short: "Score a JSON object of question text to answer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, _ := setup(cmd)
			content, err := readExam(args[0])
			if err != nil {
				return err
			}
			exam, err := engine.Parse(content)
			if err != nil {
				return err
			}

			raw, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[1], err)
			}
			var answers map[string]string
			if err := json.Unmarshal(raw, &answers); err != nil {
				return fmt.Errorf("decode answers: %w", err)
			}

			total := v.GetInt("total")
			if total <= 0 {
				total = exam.Len()
			}
			res := scoreResult{Total: total}
			if s := engine.Score(exam.Key, answers, total); s == engine.ScorePending {
				res.Pending = true
			} else {
				res.Score = &s
			}

			out := cmd.OutOrStdout()
			if v.GetString("format") == "json" {
				return writeJSON(out, res)
			}
			if res.Pending {
				fmt.Fprintln(out, "pending (contains open questions)")
				return nil
			}
			fmt.Fprintf(out, "%d%%\n", *res.Score)
			return nil
		},
	}
	cmd.Flags().Int("total", 0, "Questions shown to the student (0 = every question in the file)")
	return cmd
}

// ─── key ─────────────────────────────────────────────────────────────

func keyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "key <file>",
		Short: "Print the derived answer key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, _ := setup(cmd)
			content, err := readExam(args[0])
			if err != nil {
				return err
			}
			exam, err := engine.Parse(content)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if v.GetString("format") == "json" {
				return writeJSON(out, exam.Key)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, q := range exam.Questions {
				fmt.Fprintf(tw, "%s\t%s\n", q.Display(), exam.Key[q.Text])
			}
			return tw.Flush()
		},
	}
}
