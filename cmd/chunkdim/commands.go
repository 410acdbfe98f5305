package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/chunkdim/internal/compare"
	"github.com/kalambet/chunkdim/internal/config"
	"github.com/kalambet/chunkdim/internal/extraction"
	"github.com/kalambet/chunkdim/internal/generation"
	"github.com/kalambet/chunkdim/internal/storage"
	"github.com/kalambet/chunkdim/internal/templates"
)

type documentInfo struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	PrimaryCategory  string `json:"primary_category"`
	SourceType       string `json:"source_type"`
	ExtractionStatus string `json:"extraction_status"`
	ContentLength    int    `json:"content_length"`
}

type chunkInfo struct {
	ID             string  `json:"id"`
	ChunkID        string  `json:"chunk_id"`
	ChunkType      string  `json:"chunk_type"`
	SectionHeading string  `json:"section_heading"`
	CharStart      int     `json:"char_start"`
	CharEnd        int     `json:"char_end"`
	TokenCount     int     `json:"token_count"`
	AIConfidence   float64 `json:"ai_confidence"`
}

type jobInfo struct {
	ID                   string `json:"id"`
	DocumentID           string `json:"document_id"`
	Status               string `json:"status"`
	CurrentStep          string `json:"current_step"`
	ProgressPercentage   int    `json:"progress_percentage"`
	TotalChunksExtracted int    `json:"total_chunks_extracted"`
	ErrorMessage         string `json:"error_message"`
}

type runInfo struct {
	RunID           string  `json:"run_id"`
	RunName         string  `json:"run_name"`
	Model           string  `json:"model"`
	Status          string  `json:"status"`
	TotalChunks     int     `json:"total_chunks"`
	TotalDimensions int     `json:"total_dimensions"`
	TotalCostUSD    float64 `json:"total_cost_usd"`
	TotalDurationMS int64   `json:"total_duration_ms"`
	ErrorMessage    string  `json:"error_message"`
	HasData         *bool   `json:"has_data"`
}

// pollInterval is how often --wait checks job and run status.
var pollInterval = time.Second

// --- doc ---

var docCmd = &cobra.Command{
	Use:   "doc",
	Short: "Manage documents",
}

var docAddCmd = &cobra.Command{
	Use:   "add <file>",
	Short: "Upload a text, markdown, HTML or PDF file",
	Long: `Upload a document. The file is converted to text by the server.

Examples:
  chunkdim doc add ./handbook.pdf --category "Operations"
  chunkdim doc add ./notes.md --title "Field notes" --author "Ops team"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		meta := map[string]string{}
		for flag, field := range map[string]string{
			"title": "title", "category": "primary_category", "author": "author",
			"source-url": "source_url", "doc-date": "doc_date", "doc-version": "doc_version",
		} {
			if v, _ := flags.GetString(flag); v != "" {
				meta[field] = v
			}
		}
		doc, err := addDocument(cmd.Context(), client, args[0], meta)
		if err != nil {
			return err
		}
		printSuccess("Added document %s (%q, %s, %d chars)", doc.ID, doc.Title, doc.SourceType, doc.ContentLength)
		return nil
	},
}

func addDocument(ctx context.Context, c *apiClient, path string, meta map[string]string) (documentInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return documentInfo{}, fmt.Errorf("reading file: %w", err)
	}
	req := map[string]string{
		"file_name":   filepath.Base(path),
		"file_base64": base64.StdEncoding.EncodeToString(data),
	}
	for k, v := range meta {
		req[k] = v
	}
	var doc documentInfo
	err = c.postJSON(ctx, "/documents", req, &doc)
	return doc, err
}

var docListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		var docs []documentInfo
		if err := client.getJSON(cmd.Context(), fmt.Sprintf("/documents?limit=%d", limit), &docs); err != nil {
			return err
		}
		for _, d := range docs {
			fmt.Printf("%s  %-12s %s\n", d.ID, d.ExtractionStatus, d.Title)
		}
		return nil
	},
}

var docShowCmd = &cobra.Command{
	Use:   "show <document-id>",
	Short: "Show a document's metadata and extraction status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var doc documentInfo
		if err := client.getJSON(cmd.Context(), "/documents/"+url.PathEscape(args[0]), &doc); err != nil {
			return err
		}
		printStatus("Document", "%s", doc.ID)
		printStatus("Title", "%s", doc.Title)
		if doc.PrimaryCategory != "" {
			printStatus("Category", "%s", doc.PrimaryCategory)
		}
		printStatus("Source", "%s", doc.SourceType)
		printStatus("Length", "%d chars", doc.ContentLength)
		printStatus("Extraction", "%s", doc.ExtractionStatus)
		return nil
	},
}

var docChunksCmd = &cobra.Command{
	Use:   "chunks <document-id>",
	Short: "List the chunks of a document in reading order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var chunks []chunkInfo
		if err := client.getJSON(cmd.Context(), "/documents/"+url.PathEscape(args[0])+"/chunks", &chunks); err != nil {
			return err
		}
		writeChunks(os.Stdout, chunks)
		return nil
	},
}

func writeChunks(w io.Writer, chunks []chunkInfo) {
	for _, c := range chunks {
		fmt.Fprintf(w, "%s  %-18s %6d-%-6d %5d tok  %.2f  %s\n",
			c.ChunkID, c.ChunkType, c.CharStart, c.CharEnd, c.TokenCount, c.AIConfidence, c.SectionHeading)
		fmt.Fprintf(w, "    id: %s\n", c.ID)
	}
}

func init() {
	docAddCmd.Flags().String("title", "", "document title (default: taken from the file)")
	docAddCmd.Flags().String("category", "", "primary category")
	docAddCmd.Flags().String("author", "", "author")
	docAddCmd.Flags().String("source-url", "", "where the document came from")
	docAddCmd.Flags().String("doc-date", "", "document date")
	docAddCmd.Flags().String("doc-version", "", "document version")
	docListCmd.Flags().Int("limit", 20, "maximum number of documents")
	docCmd.AddCommand(docAddCmd, docListCmd, docShowCmd, docChunksCmd)
}

// --- extract / job ---

var extractCmd = &cobra.Command{
	Use:   "extract <document-id>",
	Short: "Queue chunk extraction for a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		user, _ := cmd.Flags().GetString("user")
		wait, _ := cmd.Flags().GetBool("wait")

		var job jobInfo
		if err := client.postJSON(cmd.Context(), "/documents/"+url.PathEscape(args[0])+"/extract",
			map[string]string{"user_id": user}, &job); err != nil {
			return err
		}
		printSuccess("Queued extraction job %s", job.ID)
		if !wait {
			return nil
		}
		printStep("Waiting for job %s", job.ID)
		job, err = waitForJob(cmd.Context(), client, job.ID, os.Stderr)
		if err != nil {
			return err
		}
		if job.Status == extraction.StatusFailed {
			return fmt.Errorf("extraction failed: %s", job.ErrorMessage)
		}
		printSuccess("Extracted %d chunks", job.TotalChunksExtracted)
		return nil
	},
}

// waitForJob polls the job until it completes or fails, reporting each
// progress change to w.
func waitForJob(ctx context.Context, c *apiClient, jobID string, w io.Writer) (jobInfo, error) {
	last := -1
	for {
		var job jobInfo
		if err := c.getJSON(ctx, "/jobs/"+url.PathEscape(jobID), &job); err != nil {
			return jobInfo{}, err
		}
		if job.ProgressPercentage != last {
			fmt.Fprintf(w, "%3d%%  %s\n", job.ProgressPercentage, job.CurrentStep)
			last = job.ProgressPercentage
		}
		if job.Status == extraction.StatusCompleted || job.Status == extraction.StatusFailed {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

var jobCmd = &cobra.Command{
	Use:   "job <document-id>",
	Short: "Show the latest extraction job of a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var job jobInfo
		if err := client.getJSON(cmd.Context(), "/documents/"+url.PathEscape(args[0])+"/job", &job); err != nil {
			return err
		}
		printStatus("Job", "%s", job.ID)
		printStatus("Status", "%s", job.Status)
		printStatus("Progress", "%d%% %s", job.ProgressPercentage, job.CurrentStep)
		printStatus("Chunks", "%d", job.TotalChunksExtracted)
		if job.ErrorMessage != "" {
			printStatus("Error", "%s", job.ErrorMessage)
		}
		return nil
	},
}

func init() {
	extractCmd.Flags().String("user", "", "user id recorded on the job")
	extractCmd.Flags().Bool("wait", false, "wait for the job to finish")
}

// --- generate / runs ---

var generateCmd = &cobra.Command{
	Use:   "generate <document-id>",
	Short: "Queue a dimension generation run",
	Long: `Queue a dimension generation run for a document.

Examples:
  chunkdim generate 3f2a... --wait
  chunkdim generate 3f2a... --chunk 9b1c... --template 77de... --temperature 0.2`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		chunks, _ := flags.GetStringSlice("chunk")
		tpls, _ := flags.GetStringSlice("template")
		user, _ := flags.GetString("user")
		model, _ := flags.GetString("model")
		wait, _ := flags.GetBool("wait")

		req := map[string]any{"user_id": user, "chunk_ids": chunks, "template_ids": tpls}
		params := map[string]any{}
		if model != "" {
			params["model"] = model
		}
		if flags.Changed("temperature") {
			temp, _ := flags.GetFloat64("temperature")
			params["temperature"] = temp
		}
		if len(params) > 0 {
			req["params"] = params
		}

		var run runInfo
		if err := client.postJSON(cmd.Context(), "/documents/"+url.PathEscape(args[0])+"/generate", req, &run); err != nil {
			return err
		}
		printSuccess("Queued run %s", run.RunID)
		if !wait {
			return nil
		}
		run, err = waitForRun(cmd.Context(), client, run.RunID)
		if err != nil {
			return err
		}
		if run.Status != generation.RunCompleted {
			return fmt.Errorf("run %s: %s", run.Status, run.ErrorMessage)
		}
		if run.TotalDimensions == 0 {
			printWarning("Run %s produced no dimensions", run.RunID)
			return nil
		}
		printSuccess("Generated dimensions for %d chunks ($%.4f, %dms)", run.TotalChunks, run.TotalCostUSD, run.TotalDurationMS)
		return nil
	},
}

func waitForRun(ctx context.Context, c *apiClient, runID string) (runInfo, error) {
	for {
		var run runInfo
		if err := c.getJSON(ctx, "/runs/"+url.PathEscape(runID), &run); err != nil {
			return runInfo{}, err
		}
		if run.Status != generation.RunRunning {
			return run, nil
		}
		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

var runsCmd = &cobra.Command{
	Use:   "runs [document-id]",
	Short: "List generation runs of a document or a chunk",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chunk, _ := cmd.Flags().GetString("chunk")
		var path string
		switch {
		case chunk != "":
			path = "/chunks/" + url.PathEscape(chunk) + "/runs"
		case len(args) == 1:
			path = "/documents/" + url.PathEscape(args[0]) + "/runs"
		default:
			return fmt.Errorf("a document id or --chunk is required")
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var runs []runInfo
		if err := client.getJSON(cmd.Context(), path, &runs); err != nil {
			return err
		}
		writeRuns(os.Stdout, runs)
		return nil
	},
}

func writeRuns(w io.Writer, runs []runInfo) {
	for _, r := range runs {
		data := ""
		if r.HasData != nil && !*r.HasData {
			data = "  (no data)"
		}
		fmt.Fprintf(w, "%s  %-9s %3d chunks  $%.4f  %s%s\n", r.RunID, r.Status, r.TotalChunks, r.TotalCostUSD, r.RunName, data)
		if r.ErrorMessage != "" {
			fmt.Fprintf(w, "    error: %s\n", r.ErrorMessage)
		}
	}
}

func init() {
	generateCmd.Flags().StringSlice("chunk", nil, "restrict to chunk ids (repeatable)")
	generateCmd.Flags().StringSlice("template", nil, "restrict to template ids (repeatable)")
	generateCmd.Flags().String("user", "", "user id recorded on the run")
	generateCmd.Flags().String("model", "", "model override")
	generateCmd.Flags().Float64("temperature", 0, "temperature override")
	generateCmd.Flags().Bool("wait", false, "wait for the run to finish")
	runsCmd.Flags().String("chunk", "", "list runs as seen from this chunk")
}

// --- dims / validate / compare ---

var dimsCmd = &cobra.Command{
	Use:   "dims <chunk-id>",
	Short: "Print the dimensions of a chunk as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		path := "/chunks/" + url.PathEscape(args[0]) + "/dimensions"
		if run, _ := cmd.Flags().GetString("run"); run != "" {
			path += "?run_id=" + url.QueryEscape(run)
		}
		var out any
		if err := client.getJSON(cmd.Context(), path, &out); err != nil {
			return err
		}
		return printJSON(os.Stdout, out)
	},
}

type validationInfo struct {
	RecordID            string  `json:"record_id"`
	RunID               string  `json:"run_id"`
	PopulatedCount      int     `json:"populated_count"`
	PopulatedPercentage int     `json:"populated_percentage"`
	AveragePrecision    float64 `json:"average_precision"`
	AverageAccuracy     float64 `json:"average_accuracy"`
	Rows                []struct {
		Name      string `json:"field_name"`
		Populated bool   `json:"populated"`
		Precision int    `json:"precision_confidence"`
		Accuracy  int    `json:"accuracy_confidence"`
	} `json:"rows"`
}

// reviewThreshold separates known fields from fields that need review.
const reviewThreshold = 8

var validateCmd = &cobra.Command{
	Use:   "validate <chunk-id>",
	Short: "Show per-field confidence of a chunk's dimensions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		path := "/chunks/" + url.PathEscape(args[0]) + "/validation"
		if run, _ := cmd.Flags().GetString("run"); run != "" {
			path += "?run_id=" + url.QueryEscape(run)
		}
		var v validationInfo
		if err := client.getJSON(cmd.Context(), path, &v); err != nil {
			return err
		}
		writeValidation(os.Stdout, v)
		return nil
	},
}

func writeValidation(w io.Writer, v validationInfo) {
	fmt.Fprintf(w, "run %s: %d populated (%d%%), precision %.1f, accuracy %.1f\n",
		v.RunID, v.PopulatedCount, v.PopulatedPercentage, v.AveragePrecision, v.AverageAccuracy)
	var review []string
	for _, r := range v.Rows {
		if r.Populated && r.Precision < reviewThreshold {
			review = append(review, fmt.Sprintf("%s (%d/%d)", r.Name, r.Precision, r.Accuracy))
		}
	}
	if len(review) == 0 {
		fmt.Fprintln(w, "no populated field needs review")
		return
	}
	fmt.Fprintln(w, "needs review:")
	for _, r := range review {
		fmt.Fprintf(w, "  %s\n", r)
	}
}

type comparisonInfo struct {
	Fields []string `json:"fields"`
	Stats  struct {
		TotalFields    int `json:"total_fields"`
		ChangedFields  int `json:"changed_fields"`
		ImprovedFields int `json:"improved_fields"`
		DegradedFields int `json:"degraded_fields"`
		NeutralChanges int `json:"neutral_changes"`
	} `json:"stats"`
	Differences map[string][]struct {
		RunID  string `json:"run_id"`
		Change string `json:"change_type"`
	} `json:"differences"`
}

var compareCmd = &cobra.Command{
	Use:   "compare <chunk-id>",
	Short: "Compare a chunk's dimensions across runs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		runs, _ := cmd.Flags().GetStringSlice("run")
		q := url.Values{}
		for _, r := range runs {
			q.Add("run_id", r)
		}
		path := "/chunks/" + url.PathEscape(args[0]) + "/compare"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}
		var cmp comparisonInfo
		if err := client.getJSON(cmd.Context(), path, &cmp); err != nil {
			return err
		}
		writeComparison(os.Stdout, cmp)
		return nil
	},
}

func writeComparison(w io.Writer, cmp comparisonInfo) {
	s := cmp.Stats
	fmt.Fprintf(w, "%d of %d fields changed: %d improved, %d degraded, %d neutral\n",
		s.ChangedFields, s.TotalFields, s.ImprovedFields, s.DegradedFields, s.NeutralChanges)
	for _, f := range cmp.Fields {
		diffs := cmp.Differences[f]
		if len(diffs) == 0 {
			continue
		}
		last := diffs[len(diffs)-1]
		if last.Change == string(compare.Unchanged) {
			continue
		}
		fmt.Fprintf(w, "  %-34s %s\n", f, last.Change)
	}
}

func init() {
	dimsCmd.Flags().String("run", "", "run id (default: every run)")
	validateCmd.Flags().String("run", "", "run id (default: latest run)")
	compareCmd.Flags().StringSlice("run", nil, "restrict to run ids (repeatable)")
}

// --- templates ---

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Manage prompt templates",
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var tpls []struct {
			ID         string   `json:"id"`
			Name       string   `json:"template_name"`
			Type       string   `json:"template_type"`
			Version    int      `json:"version"`
			Active     bool     `json:"is_active"`
			ChunkTypes []string `json:"applicable_chunk_types"`
		}
		if err := client.getJSON(cmd.Context(), "/templates", &tpls); err != nil {
			return err
		}
		for _, t := range tpls {
			state := "active"
			if !t.Active {
				state = "inactive"
			}
			applies := "all chunk types"
			if t.ChunkTypes != nil {
				applies = fmt.Sprint(t.ChunkTypes)
			}
			fmt.Printf("%s  %-26s v%d %-8s %s  %s\n", t.ID, t.Type, t.Version, state, t.Name, applies)
		}
		return nil
	},
}

var templatesSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Store the built-in templates that are missing",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(store *storage.Store) error {
			n, err := templates.Seed(store, templates.Defaults(), nil)
			if err != nil {
				return err
			}
			printSuccess("Created %d templates", n)
			return nil
		})
	},
}

var templatesImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Store templates defined in a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		specs, err := templates.LoadFile(args[0])
		if err != nil {
			return err
		}
		return withStore(func(store *storage.Store) error {
			n, err := templates.Seed(store, specs, nil)
			if err != nil {
				return err
			}
			printSuccess("Imported %d of %d templates", n, len(specs))
			return nil
		})
	},
}

// withStore opens the configured database for commands that work offline.
func withStore(fn func(*storage.Store) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func init() {
	templatesCmd.AddCommand(templatesListCmd, templatesSeedCmd, templatesImportCmd)
}

// --- models ---

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models offered by the model service",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var list struct {
			Data []struct {
				ID string `json:"id"`
			} `json:"data"`
		}
		if err := client.getJSON(cmd.Context(), "/models", &list); err != nil {
			return err
		}
		for _, m := range list.Data {
			fmt.Println(m.ID)
		}
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s  (%s)\n", colorize(colorBold, k.Key), k.Value, k.EnvVar)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:       "set <key> <value>",
	Short:     "Set a configuration value",
	Args:      cobra.ExactArgs(2),
	ValidArgs: config.ValidKeys(),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
