package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gramvani/kisan/internal/config"
	"github.com/gramvani/kisan/internal/locale"
	"github.com/gramvani/kisan/internal/profile"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the agricultural advisor a question",
	Long: `Ask the agricultural advisor a question.

Answers inline when the advisory service is reachable. While offline the
question is queued and answered automatically once connectivity returns.

Examples:
  kisan ask "my tomato leaves are curling, what should I do?"
  kisan ask --language hi "गेहूं में पीलापन क्यों आता है?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt := strings.Join(args, " ")
		language, _ := cmd.Flags().GetString("language")
		asVoice, _ := cmd.Flags().GetBool("voice")

		kind := "text"
		if asVoice {
			kind = "voice"
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/ask", map[string]string{
			"prompt":   prompt,
			"kind":     kind,
			"language": language,
		})
		if err != nil {
			return err
		}

		var sub struct {
			QueryID  int64  `json:"query_id"`
			Answered bool   `json:"answered"`
			Text     string `json:"text"`
			Notice   string `json:"notice"`
		}
		if err := decodeJSON(resp, &sub); err != nil {
			return err
		}

		if sub.Answered {
			fmt.Println(sub.Text)
			return nil
		}
		printWarning("%s", sub.Notice)
		printStep("Check later with: kisan queries show %d", sub.QueryID)
		return nil
	},
}

func init() {
	askCmd.Flags().String("language", "", "language code for the answer (e.g. en, hi, kn)")
	askCmd.Flags().Bool("voice", false, "record the question as a voice query")
}

// --- diagnose ---

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose --image <path>",
	Short: "Diagnose a crop disease from a photo",
	RunE: func(cmd *cobra.Command, args []string) error {
		imagePath, _ := cmd.Flags().GetString("image")
		notes, _ := cmd.Flags().GetString("notes")
		language, _ := cmd.Flags().GetString("language")

		if imagePath == "" {
			return fmt.Errorf("--image is required")
		}
		data, err := os.ReadFile(imagePath)
		if err != nil {
			return fmt.Errorf("reading image: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/diagnose", map[string]string{
			"notes":    notes,
			"language": language,
			"image":    base64.StdEncoding.EncodeToString(data),
		})
		if err != nil {
			return err
		}

		var d struct {
			Category   string   `json:"category"`
			Confidence float64  `json:"confidence"`
			Symptoms   []string `json:"symptoms"`
			Treatment  []string `json:"treatment"`
			Prevention []string `json:"prevention"`
			Advice     string   `json:"advice"`
		}
		if err := decodeJSON(resp, &d); err != nil {
			return err
		}

		fmt.Printf("%s (confidence %.0f%%)\n", colorize(colorBold, d.Category), d.Confidence*100)
		printList("Symptoms", d.Symptoms)
		printList("Treatment", d.Treatment)
		printList("Prevention", d.Prevention)
		if d.Advice != "" {
			fmt.Printf("\n%s\n", d.Advice)
		}
		return nil
	},
}

func printList(label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Printf("\n%s\n", colorize(colorBold, label+":"))
	for _, item := range items {
		fmt.Printf("  - %s\n", item)
	}
}

func init() {
	diagnoseCmd.Flags().String("image", "", "path to the crop photo (required)")
	diagnoseCmd.Flags().String("notes", "", "what you observed on the plant")
	diagnoseCmd.Flags().String("language", "", "language code for the advice")
}

// --- queries ---

var queriesCmd = &cobra.Command{
	Use:   "queries",
	Short: "Inspect the question queue",
}

var queriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent questions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(fmt.Sprintf("/queries?limit=%d", limit))
		if err != nil {
			return err
		}

		var queries []struct {
			ID        int64  `json:"id"`
			Prompt    string `json:"prompt"`
			Kind      string `json:"kind"`
			Status    string `json:"status"`
			CreatedAt string `json:"created_at"`
		}
		if err := decodeJSON(resp, &queries); err != nil {
			return err
		}

		if len(queries) == 0 {
			fmt.Println("No questions yet.")
			return nil
		}

		for _, q := range queries {
			prompt := q.Prompt
			if len(prompt) > 80 {
				prompt = prompt[:80] + "..."
			}
			status := q.Status
			if status == "pending" {
				status = colorize(colorYellow, status)
			} else {
				status = colorize(colorGreen, status)
			}
			fmt.Printf("%s  %-9s  %s\n", colorize(colorCyan, fmt.Sprintf("#%d", q.ID)), status, prompt)
		}
		return nil
	},
}

var queriesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a question and its answer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/queries/" + args[0])
		if err != nil {
			return err
		}

		var q struct {
			ID        int64  `json:"id"`
			Prompt    string `json:"prompt"`
			Kind      string `json:"kind"`
			Status    string `json:"status"`
			CreatedAt string `json:"created_at"`
		}
		if err := decodeJSON(resp, &q); err != nil {
			return err
		}

		fmt.Printf("%s %s\n", colorize(colorBold, "Question:"), q.Prompt)
		fmt.Printf("%s %s  %s %s\n", colorize(colorBold, "Status:"), q.Status, colorize(colorBold, "Asked:"), q.CreatedAt)

		respResp, err := client.get("/queries/" + args[0] + "/responses")
		if err != nil {
			return err
		}
		var responses []struct {
			Body      string `json:"body"`
			CreatedAt string `json:"created_at"`
		}
		if err := decodeJSON(respResp, &responses); err != nil {
			return err
		}

		if len(responses) == 0 {
			printWarning("No answer yet; it will arrive when connectivity returns.")
			return nil
		}
		for _, r := range responses {
			fmt.Printf("\n%s\n", r.Body)
		}
		return nil
	},
}

var queriesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a question and its answer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete("/queries/" + args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted query %s", args[0])
		return nil
	},
}

func init() {
	queriesListCmd.Flags().Int("limit", 20, "maximum number of questions to list")
	queriesCmd.AddCommand(queriesListCmd)
	queriesCmd.AddCommand(queriesShowCmd)
	queriesCmd.AddCommand(queriesDeleteCmd)
}

// --- connectivity ---

var connectivityCmd = &cobra.Command{
	Use:   "connectivity [on|off]",
	Short: "Report or show network connectivity",
	Long: `Report or show network connectivity.

The daemon does not probe the network itself; whoever can observe it (a UI,
a supervisor script, this command) reports transitions. Reporting "on" after
an offline stretch replays queued questions in the order they were asked.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if len(args) == 0 {
			resp, err := client.get("/connectivity")
			if err != nil {
				return err
			}
			var state map[string]bool
			if err := decodeJSON(resp, &state); err != nil {
				return err
			}
			if state["online"] {
				fmt.Println("online")
			} else {
				fmt.Println("offline")
			}
			return nil
		}

		var online bool
		switch args[0] {
		case "on":
			online = true
		case "off":
			online = false
		default:
			return fmt.Errorf("argument must be \"on\" or \"off\", got %q", args[0])
		}

		resp, err := client.post("/connectivity", map[string]bool{"online": online})
		if err != nil {
			return err
		}
		var state map[string]bool
		if err := decodeJSON(resp, &state); err != nil {
			return err
		}

		if online {
			printSuccess("Reported online; queued questions are being replayed")
		} else {
			printSuccess("Reported offline; new questions will be queued")
		}
		return nil
	},
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage the farmer profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current profile as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/profile")
		if err != nil {
			return err
		}

		var p map[string]string
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a profile field",
	Long: "Set a profile field.\n\nKnown fields: " + strings.Join(profile.Fields(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.patch("/profile", map[string]string{key: value})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileSetCmd)
}

// --- experts / schemes ---

var expertsCmd = &cobra.Command{
	Use:   "experts",
	Short: "List agricultural expert helplines",
	RunE: func(cmd *cobra.Command, args []string) error {
		state, _ := cmd.Flags().GetString("state")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/experts?state=" + state)
		if err != nil {
			return err
		}

		var experts []struct {
			Name         string   `json:"name"`
			State        string   `json:"state"`
			Specialty    string   `json:"specialty"`
			Organization string   `json:"organization"`
			Phone        string   `json:"phone"`
			Languages    []string `json:"languages"`
		}
		if err := decodeJSON(resp, &experts); err != nil {
			return err
		}

		if len(experts) == 0 {
			fmt.Println("No experts found.")
			return nil
		}

		for _, e := range experts {
			fmt.Printf("%s — %s (%s)\n", colorize(colorBold, e.Name), e.Specialty, e.State)
			fmt.Printf("  %s, %s\n", e.Organization, e.Phone)
			langs := make([]string, len(e.Languages))
			for i, code := range e.Languages {
				langs[i] = locale.LanguageName(code)
			}
			fmt.Printf("  Languages: %s\n", strings.Join(langs, ", "))
		}
		return nil
	},
}

var schemesCmd = &cobra.Command{
	Use:   "schemes",
	Short: "List government support schemes",
	RunE: func(cmd *cobra.Command, args []string) error {
		category, _ := cmd.Flags().GetString("category")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/schemes?category=" + category)
		if err != nil {
			return err
		}

		var schemes []struct {
			Name        string `json:"name"`
			Category    string `json:"category"`
			Description string `json:"description"`
			Eligibility string `json:"eligibility"`
			Link        string `json:"link"`
		}
		if err := decodeJSON(resp, &schemes); err != nil {
			return err
		}

		if len(schemes) == 0 {
			fmt.Println("No schemes found.")
			return nil
		}

		for _, s := range schemes {
			fmt.Printf("%s [%s]\n", colorize(colorBold, s.Name), s.Category)
			fmt.Printf("  %s\n", s.Description)
			fmt.Printf("  Eligibility: %s\n", s.Eligibility)
			if s.Link != "" {
				fmt.Printf("  %s\n", s.Link)
			}
		}
		return nil
	},
}

func init() {
	expertsCmd.Flags().String("state", "", "filter by state (e.g. Karnataka)")
	schemesCmd.Flags().String("category", "", "filter by category (e.g. insurance)")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("%-24s %s\n", k.Key, k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration key",
	Long:  "Set a configuration key.\n\nValid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetKey(args[0], args[1]); err != nil {
			return err
		}
		printSuccess("Set %s = %s", args[0], args[1])
		return nil
	},
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret <name> <value>",
	Short: "Store a secret (e.g. advisory_api_key)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteSecret(args[0], args[1]); err != nil {
			return err
		}
		printSuccess("Stored secret %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configSetSecretCmd)
}

// --- data ---

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Export or purge stored data",
}

var dataExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all questions and answers as JSONL",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var writer *os.File
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			writer = f
		} else {
			writer = os.Stdout
		}

		enc := json.NewEncoder(writer)

		resp, err := client.get("/queries?limit=100")
		if err != nil {
			return err
		}
		var rawQueries []json.RawMessage
		if err := decodeJSON(resp, &rawQueries); err != nil {
			return err
		}

		for _, raw := range rawQueries {
			var q struct {
				ID int64 `json:"id"`
			}
			if err := json.Unmarshal(raw, &q); err != nil {
				continue
			}
			enc.Encode(map[string]any{"type": "query", "data": raw})

			respResp, err := client.get(fmt.Sprintf("/queries/%d/responses", q.ID))
			if err != nil {
				return err
			}
			var responses []json.RawMessage
			if err := decodeJSON(respResp, &responses); err != nil {
				return err
			}
			for _, r := range responses {
				enc.Encode(map[string]any{"type": "response", "data": r})
			}
		}

		if output != "" {
			printSuccess("Data exported to %s", output)
		}
		return nil
	},
}

var dataPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete all questions and answers",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will delete ALL questions and answers. Use --confirm to proceed.")
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Deleting questions...")
		for {
			resp, err := client.get("/queries?limit=100")
			if err != nil {
				return err
			}
			var queries []struct {
				ID int64 `json:"id"`
			}
			if err := decodeJSON(resp, &queries); err != nil {
				return err
			}
			if len(queries) == 0 {
				break
			}
			for _, q := range queries {
				if _, err := client.delete(fmt.Sprintf("/queries/%d", q.ID)); err != nil {
					printError("Failed to delete query %d: %v", q.ID, err)
				}
			}
		}

		printSuccess("All questions deleted")
		return nil
	},
}

func init() {
	dataExportCmd.Flags().String("output", "", "output file (default stdout)")
	dataPurgeCmd.Flags().Bool("confirm", false, "confirm the purge")
	dataCmd.AddCommand(dataExportCmd)
	dataCmd.AddCommand(dataPurgeCmd)
}
