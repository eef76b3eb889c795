package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/sitecraft/internal/engine"
	"github.com/kalambet/sitecraft/internal/events"
	"github.com/kalambet/sitecraft/internal/generator"
	"github.com/kalambet/sitecraft/internal/site"
)

// SourceChat marks artifacts written by the patcher.
const SourceChat = "chat"

// Caller runs one artifact-producing model exchange with retries.
// generator.Generator satisfies it.
type Caller interface {
	Call(ctx context.Context, purpose, id string, messages []engine.Message, schema *engine.Schema) (site.Artifact, int, error)
}

// Store is the artifact store used to read current components and persist
// edits.
type Store interface {
	ReadAll(sessionID string) (site.Site, error)
	WriteWithSource(sessionID, id string, a site.Artifact, source string) error
}

// PatchRequest is one chat instruction.
type PatchRequest struct {
	Message string
	// SessionID, when set, is used to load missing components and to persist
	// the edit.
	SessionID string
	// Known lists the components that may be edited. Defaults to the
	// components of Current.
	Known []string
	// Current holds the client's view of the components.
	Current site.Site
	Request site.GenerationRequest
}

// Reply is the patcher's answer to a chat instruction. UpdatedCode is nil
// unless a new artifact was produced.
type Reply struct {
	Content         string            `json:"content"`
	ComponentTarget *string           `json:"componentTarget"`
	ChangeType      *string           `json:"changeType"`
	UpdatedCode     map[string]string `json:"updatedCode"`
	Analysis        Analysis          `json:"-"`
	Saved           bool              `json:"-"`
}

// Patcher edits one existing component at a time.
type Patcher struct {
	classifier *Classifier
	caller     Caller
	store      Store
	events     events.Publisher
}

// NewPatcher creates a Patcher. store may be nil when edits are not persisted.
func NewPatcher(classifier *Classifier, caller Caller, store Store, pub events.Publisher) *Patcher {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Patcher{classifier: classifier, caller: caller, store: store, events: pub}
}

// Patch classifies the instruction and, when it is clear enough, replaces the
// target component with a regenerated artifact. Unclear instructions get a
// clarification reply and no model edit is attempted.
func (p *Patcher) Patch(ctx context.Context, req PatchRequest) Reply {
	current := make(site.Site, len(req.Current))
	for id, a := range req.Current {
		current[id] = a
	}
	if req.SessionID != "" && p.store != nil {
		stored, err := p.store.ReadAll(req.SessionID)
		if err != nil {
			slog.Warn("reading session for chat", "session_id", req.SessionID, "error", err)
		}
		for id, a := range stored {
			if _, ok := current[id]; !ok {
				current[id] = a
			}
		}
	}
	known := req.Known
	if len(known) == 0 {
		known = current.IDs()
	}

	analysis := p.classifier.Classify(ctx, req.Message, known)
	if !analysis.Actionable() {
		return Reply{Content: clarification(known), Analysis: analysis}
	}

	target := analysis.ComponentTarget
	change := analysis.ChangeType
	reply := Reply{ComponentTarget: &target, ChangeType: &change, Analysis: analysis}

	before := current[target]
	after, attempts, err := p.caller.Call(ctx, "patch", target, patchPrompt(analysis, before, req.Request), generator.ArtifactSchema(target))
	if err != nil {
		slog.Warn("chat edit failed", "component", target, "attempts", attempts, "error", err)
		reply.Content = failure(target, known)
		return reply
	}
	if after.Description == "" {
		after.Description = before.Description
	}
	reply.UpdatedCode = after.Files(target)

	var saveNote string
	if req.SessionID != "" && p.store != nil {
		if err := p.store.WriteWithSource(req.SessionID, target, after, SourceChat); err != nil {
			slog.Error("saving chat edit", "session_id", req.SessionID, "component", target, "error", err)
			saveNote = "\nThe change could not be saved on the server; apply it again or save it from Edit Mode.\n"
		} else {
			reply.Saved = true
			p.events.Publish(events.Event{
				Kind:      events.KindComponentUpdated,
				SessionID: req.SessionID,
				Component: target,
				Source:    SourceChat,
			})
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "I've updated the %s component!\n\nChanges made:\n", strings.ReplaceAll(target, "-", " "))
	for _, c := range analysis.SpecificChanges {
		fmt.Fprintf(&sb, "• %s\n", c)
	}
	fmt.Fprintf(&sb, "\nEdited: %s.\n", ChangeSummary(before, after))
	sb.WriteString(saveNote)
	sb.WriteString("\nThe changes should now be visible in your preview. Would you like any other adjustments?")
	reply.Content = sb.String()
	return reply
}

func clarification(known []string) string {
	if len(known) == 0 {
		return "No components have been generated yet. Wait for the preview to finish loading, then tell me what you'd like to change."
	}
	return fmt.Sprintf(`I can help you modify these available components: %s

Please specify which component you'd like to change. For example:
• "Change the hero section title"
• "Update the header navigation"
• "Make the footer background darker"`, strings.Join(known, ", "))
}

func failure(target string, known []string) string {
	return fmt.Sprintf(`I couldn't update the %s component right now, so nothing was changed.

Try sending the request again, or use Edit Mode to change the code directly.
Available components: %s`, target, strings.Join(known, ", "))
}
