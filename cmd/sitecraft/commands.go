package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/sitecraft/internal/client"
	"github.com/kalambet/sitecraft/internal/config"
	"github.com/kalambet/sitecraft/internal/events"
	"github.com/kalambet/sitecraft/internal/files"
	"github.com/kalambet/sitecraft/internal/poller"
	"github.com/kalambet/sitecraft/internal/site"
)

// --- request flags ---

func addRequestFlags(cmd *cobra.Command) {
	cmd.Flags().String("description", "", "what the business does")
	cmd.Flags().String("type", "", "website type, e.g. restaurant or portfolio")
	cmd.Flags().String("features", "", "comma-separated features: about,services,contact,gallery,testimonials,pricing")
	cmd.Flags().String("scheme", "", "color scheme: light or dark")
	cmd.Flags().String("email", "", "contact email shown on the site")
	cmd.Flags().String("from", "", "read the request from a YAML or JSON file; flags override its fields")
}

func requestFromFlags(cmd *cobra.Command) (site.GenerationRequest, error) {
	var req site.GenerationRequest
	if from, _ := cmd.Flags().GetString("from"); from != "" {
		var err error
		if req, err = readRequestFile(from); err != nil {
			return req, err
		}
	}
	if v, _ := cmd.Flags().GetString("description"); v != "" {
		req.BusinessDescription = v
	}
	if v, _ := cmd.Flags().GetString("type"); v != "" {
		req.WebsiteType = v
	}
	if v, _ := cmd.Flags().GetString("features"); v != "" {
		req.SelectedFeatures = splitList(v)
	}
	if v, _ := cmd.Flags().GetString("scheme"); v != "" {
		req.ColorScheme = site.ColorScheme(v)
	}
	if v, _ := cmd.Flags().GetString("email"); v != "" {
		req.UserEmail = v
	}
	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}

// --- analyze ---

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Show which sections a website would get, without generating",
	Long: `Show which sections a website would get, without generating.

Examples:
  sitecraft analyze --description "Family pizza place in Naples" --type restaurant
  sitecraft analyze --from request.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := requestFromFlags(cmd)
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}

		plan, err := c.Analyze(cmd.Context(), req)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for i, id := range plan.Components {
			fmt.Fprintf(out, "%d. %s\n", i+1, id)
		}
		if plan.Reasoning != "" {
			fmt.Fprintf(out, "\n%s\n", plan.Reasoning)
		}
		return nil
	},
}

func init() {
	addRequestFlags(analyzeCmd)
}

// --- generate ---

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a website",
	Long: `Plan a website and queue generation of its sections. Sections are written
one at a time; use --wait to follow progress until the site is ready.

Examples:
  sitecraft generate --description "Yoga studio in Lisbon" --features gallery,pricing --wait
  sitecraft generate --from request.yaml --stream`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := requestFromFlags(cmd)
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}

		gen, err := c.Generate(cmd.Context(), req)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), gen.UserID)
		printSuccess("Queued %d sections: %s", gen.ExpectedCount, strings.Join(gen.Components, ", "))

		wait, _ := cmd.Flags().GetBool("wait")
		stream, _ := cmd.Flags().GetBool("stream")
		if !wait && !stream {
			return nil
		}
		return follow(cmd, c, gen.UserID, gen.ExpectedCount, stream)
	},
}

func init() {
	addRequestFlags(generateCmd)
	generateCmd.Flags().Bool("wait", false, "poll until the site is ready")
	generateCmd.Flags().Bool("stream", false, "follow progress over the event stream instead of polling")
}

// --- watch ---

var watchCmd = &cobra.Command{
	Use:   "watch <session-id>",
	Short: "Follow a generation until its sections are ready",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		id := args[0]

		expected, _ := cmd.Flags().GetInt("expected")
		if expected <= 0 {
			sess, err := c.Session(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("looking up session %s (pass --expected for sessions the server does not track): %w", id, err)
			}
			expected = sess.ExpectedCount
		}

		stream, _ := cmd.Flags().GetBool("stream")
		return follow(cmd, c, id, expected, stream)
	},
}

func init() {
	watchCmd.Flags().Int("expected", 0, "number of sections to wait for (default: from the session record)")
	watchCmd.Flags().Bool("stream", false, "follow progress over the event stream instead of polling")
}

// follow reports progress of a session until it is ready, the server is
// gone, or the user interrupts.
func follow(cmd *cobra.Command, c *client.Client, id string, expected int, stream bool) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if stream {
		err := streamEvents(ctx, c, id)
		if err == nil || ctx.Err() != nil {
			return printFiles(cmd, c, id)
		}
		printWarning("event stream unavailable (%v), polling instead", err)
	}

	bridge := poller.NewBridge(c, pollConfig, func(u poller.Update) {
		printStep("%s", progressLine(u))
	})
	if err := bridge.Start(ctx, id, expected); err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		bridge.Stop()
	}()
	res := bridge.Wait()

	switch {
	case res.Reason == poller.ReasonCancelled:
		printWarning("stopped after %d polls with %d/%d sections", res.Attempts, len(res.Components), expected)
	case res.State == poller.StateError:
		return fmt.Errorf("giving up after %d failed reads: %w", pollConfig.MaxFailures, res.Err)
	case res.Reason == poller.ReasonUnreachable:
		printWarning("server unreachable, showing the last known sections")
	default:
		printSuccess("%d/%d sections ready (%s)", len(res.Components), expected, res.Reason)
	}
	writeSections(cmd.OutOrStdout(), res.Components)
	return nil
}

// streamIdle bounds the wait for the next stream event before follow falls
// back to polling.
var streamIdle = 30 * time.Second

// streamEvents prints stream events until the session is finished.
func streamEvents(ctx context.Context, c *client.Client, id string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	evs, err := c.Subscribe(ctx, id)
	if err != nil {
		return err
	}
	idle := time.NewTimer(streamIdle)
	defer idle.Stop()

	for {
		select {
		case ev, ok := <-evs:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errors.New("event stream closed before generation completed")
			}
			printStep("%s", eventLine(ev))
			if ev.Kind == events.KindGenerationCompleted || (ev.Kind == events.KindSnapshot && ev.Done) {
				return nil
			}
			idle.Reset(streamIdle)
		case <-idle.C:
			return fmt.Errorf("no events for %s", streamIdle)
		}
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// --- sessions ---

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recent generation sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")

		list, err := c.Sessions(commandContext(cmd), limit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, s := range list {
			fmt.Fprintf(out, "%s  %-10s  %d sections  %s\n", s.ID, s.Status, s.ExpectedCount, s.CreatedAt.Local().Format("2006-01-02 15:04"))
		}
		return nil
	},
}

func init() {
	sessionsCmd.Flags().Int("limit", 20, "maximum number of sessions (max 100)")
}

// --- files ---

var filesCmd = &cobra.Command{
	Use:   "files <session-id>",
	Short: "Show the sections generated so far",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printFiles(cmd, nil, args[0])
	},
}

func init() {
	filesCmd.Flags().Bool("json", false, "print every file's content as JSON")
}

func printFiles(cmd *cobra.Command, c *client.Client, id string) error {
	if c == nil {
		var err error
		if c, err = newClient(); err != nil {
			return err
		}
	}
	s, err := c.GetFiles(commandContext(cmd), id)
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(s.Files())
	}
	writeSections(cmd.OutOrStdout(), s)
	return nil
}

func writeSections(w io.Writer, s site.Site) {
	for _, id := range s.IDs() {
		a := s[id]
		fmt.Fprintf(w, "%-14s html %6d  css %6d  js %6d", id, len(a.Markup), len(a.Style), len(a.Behavior))
		if a.Description != "" {
			fmt.Fprintf(w, "  %s", a.Description)
		}
		fmt.Fprintln(w)
	}
}

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat <session-id> <message...>",
	Short: "Change a section with a plain-language instruction",
	Long: `Change a section with a plain-language instruction.

Examples:
  sitecraft chat 3f1c... make the header blue
  sitecraft chat 3f1c... "change the hero title to Fresh pasta daily"`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		reply, err := c.Chat(commandContext(cmd), client.ChatRequest{
			Message: strings.Join(args[1:], " "),
			UserID:  args[0],
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, reply.Content)
		if showCode, _ := cmd.Flags().GetBool("show-code"); showCode && reply.UpdatedCode != nil {
			for _, name := range slices.Sorted(maps.Keys(reply.UpdatedCode)) {
				fmt.Fprintf(out, "\n--- %s ---\n%s\n", name, reply.UpdatedCode[name])
			}
		}
		return nil
	},
}

func init() {
	chatCmd.Flags().Bool("show-code", false, "print the updated files")
}

// --- download ---

var downloadCmd = &cobra.Command{
	Use:   "download <session-id>",
	Short: "Download the generated site as a zip archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		id := args[0]
		path, _ := cmd.Flags().GetString("output")
		if path == "" {
			path = files.ArchiveName(id)
		}

		f, err := os.Create(path)
		if err != nil {
			return err
		}
		n, err := c.Download(commandContext(cmd), id, f)
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			os.Remove(path)
			var se *client.StatusError
			if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
				return fmt.Errorf("session %s has no sections yet", id)
			}
			return err
		}

		printSuccess("Saved %s (%d bytes)", path, n)
		return nil
	},
}

func init() {
	downloadCmd.Flags().StringP("output", "o", "", "archive path (default website_<session-id>.zip)")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration and where each value comes from",
	RunE: func(cmd *cobra.Command, args []string) error {
		infos, err := config.Describe()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, k := range infos {
			fmt.Fprintf(out, "  %s = %s  (%s)\n", colorize(colorBold, k.Key), k.Value, k.Source)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := config.SetKey(key, value); err != nil {
			return err
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a stored value so the default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd, configUnsetCmd)
}
