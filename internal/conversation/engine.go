// Package conversation implements the link conversation: product, capacity
// and color selection followed by either trade-in device validation or a
// batch of cart links.
package conversation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"tradelink/internal/adapter"
	"tradelink/internal/catalog"
	"tradelink/internal/metrics"
	"tradelink/internal/model"
)

// Conversation outcomes for metrics.
const (
	outcomeStarted   = "started"
	outcomeRestarted = "restarted"
	outcomeCompleted = "completed"
	outcomeFailed    = "failed"
)

// Default command names.
const (
	DefaultStartCommand    = "start"
	DefaultGenerateCommand = "gerar"
)

// Config holds engine dependencies.
type Config struct {
	Catalog   *catalog.Catalog
	Resolver  adapter.CatalogResolver
	Devices   adapter.DeviceLookup
	Links     adapter.CartLinkBuilder
	Messenger Messenger
	Policy    Policy
	Metrics   metrics.Recorder
	Logger    *slog.Logger

	StartCommand    string
	GenerateCommand string
}

// Engine runs one state machine per user. It holds no shared mutable
// state besides the session table, which is locked only for lookup and
// replacement.
type Engine struct {
	catalog   *catalog.Catalog
	resolver  adapter.CatalogResolver
	devices   adapter.DeviceLookup
	links     adapter.CartLinkBuilder
	messenger Messenger
	policy    Policy
	metrics   metrics.Recorder
	logger    *slog.Logger

	startCommand    string
	generateCommand string

	mu       sync.Mutex
	sessions map[int64]*Session
}

// New creates an engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Catalog == nil || cfg.Resolver == nil || cfg.Links == nil || cfg.Messenger == nil {
		return nil, fmt.Errorf("catalog, resolver, link builder and messenger are required")
	}

	policy := cfg.Policy
	if policy == "" {
		policy = PolicyBatch
	}
	if _, err := ParsePolicy(string(policy)); err != nil {
		return nil, err
	}
	if policy == PolicyIMEI && cfg.Devices == nil {
		return nil, fmt.Errorf("device lookup is required for the %s policy", PolicyIMEI)
	}

	rec := cfg.Metrics
	if rec == nil {
		rec = metrics.Nop()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	startCmd := cfg.StartCommand
	if startCmd == "" {
		startCmd = DefaultStartCommand
	}
	generateCmd := cfg.GenerateCommand
	if generateCmd == "" {
		generateCmd = DefaultGenerateCommand
	}

	return &Engine{
		catalog:         cfg.Catalog,
		resolver:        cfg.Resolver,
		devices:         cfg.Devices,
		links:           cfg.Links,
		messenger:       cfg.Messenger,
		policy:          policy,
		metrics:         rec,
		logger:          logger,
		startCommand:    startCmd,
		generateCommand: generateCmd,
		sessions:        make(map[int64]*Session),
	}, nil
}

// Policy returns the configured link policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Session returns the live session of userID, or nil.
func (e *Engine) Session(userID int64) *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions[userID]
}

// Accepts reports whether ev matches a known command or a transition of
// the user's current state.
func (e *Engine) Accepts(ev Event) bool {
	if ev.Kind == EventCommand {
		return ev.Command == e.startCommand || ev.Command == e.generateCommand
	}
	s := e.Session(ev.UserID)
	if s == nil {
		return false
	}
	_, ok := findTransition(s, ev)
	return ok
}

// Handle processes one event. Events that match nothing are ignored.
// Returned errors are transport failures; domain failures are reported to
// the user and end or rewind the conversation.
func (e *Engine) Handle(ctx context.Context, ev Event) error {
	if ev.Kind == EventCommand {
		switch ev.Command {
		case e.generateCommand:
			return e.start(ctx, ev)
		case e.startCommand:
			_, err := e.messenger.Send(ctx, ev.ChatID, helpText(e.generateCommand), nil)
			return err
		default:
			return nil
		}
	}

	s := e.Session(ev.UserID)
	if s == nil {
		return nil
	}
	t, ok := findTransition(s, ev)
	if !ok {
		return nil
	}

	logger := e.sessionLogger(s)
	logger.Debug("transition", slog.String("name", t.name), slog.String("from", string(s.State)))

	next, err := t.handle(e, ctx, s, ev)
	if err != nil {
		logger.Error("transition failed", slog.String("name", t.name), slog.String("error", err.Error()))
		if IsTerminalState(next) {
			e.drop(s)
		}
		return fmt.Errorf("%s: %w", t.name, err)
	}
	if !t.permits(next) {
		return model.NewInternalError(fmt.Errorf("transition %q reached unexpected state %s", t.name, next))
	}

	s.State = next
	if IsTerminalState(next) {
		e.drop(s)
	}
	return nil
}

// start begins a new conversation, discarding any previous one of the user.
func (e *Engine) start(ctx context.Context, ev Event) error {
	s := newSession(ev.UserID, ev.ChatID, e.catalog.Len())
	s.trackUserMessage(ev.MessageID)

	e.mu.Lock()
	old := e.sessions[ev.UserID]
	e.sessions[ev.UserID] = s
	e.mu.Unlock()

	if old != nil {
		e.sessionLogger(old).Info("conversation restarted", slog.String("state", string(old.State)))
		e.metrics.IncConversation(outcomeRestarted)
		e.deleteMessages(ctx, old, old.trackedMessages()...)
	}
	e.metrics.IncConversation(outcomeStarted)

	id, err := e.messenger.Send(ctx, s.ChatID, textChooseProduct, e.productKeyboard())
	if err != nil {
		e.drop(s)
		return fmt.Errorf("sending product prompt: %w", err)
	}
	s.PromptMessageID = id

	e.sessionLogger(s).Info("conversation started", slog.String("policy", string(e.policy)))
	return nil
}

func (e *Engine) onProduct(ctx context.Context, s *Session, ev Event) (State, error) {
	i, _ := parseIndex(ev.Payload, payloadProduct, s.catalogSize)
	product, _ := e.catalog.At(i)
	return e.resolve(ctx, s, product.URL, 0)
}

func (e *Engine) onOtherProduct(ctx context.Context, s *Session, _ Event) (State, error) {
	return StateFreeformLink, e.editPrompt(ctx, s, textSendLink, nil)
}

func (e *Engine) onFreeformLink(ctx context.Context, s *Session, ev Event) (State, error) {
	return e.resolve(ctx, s, strings.TrimSpace(ev.Text), ev.MessageID)
}

// resolve fetches the variants of productURL. Any failure rewinds to
// product selection with the error shown above the catalog.
func (e *Engine) resolve(ctx context.Context, s *Session, productURL string, userMessageID int64) (State, error) {
	logger := e.sessionLogger(s).With(slog.String("url", productURL))

	if err := e.editPrompt(ctx, s, textCheckingStock, nil); err != nil {
		return "", err
	}

	started := time.Now()
	variants, err := e.resolver.Resolve(ctx, productURL)
	e.metrics.ObserveUpstream(metrics.OpResolve, errorCode(err), time.Since(started))

	if err != nil {
		logger.Warn("variant resolution failed",
			slog.String("code", model.CodeOf(err)),
			slog.String("error_kind", string(model.KindOf(err))),
			slog.String("error", err.Error()),
		)
		if userMessageID != 0 {
			e.deleteMessages(ctx, s, userMessageID)
		}
		s.resetSelections()
		return StateSelectProduct, e.editPrompt(ctx, s, withError(model.UserMessage(err), textChooseProduct), e.productKeyboard())
	}

	s.trackUserMessage(userMessageID)
	s.resetSelections()
	s.ProductURL = productURL
	s.Variants = variants
	s.capacities = variants.Capacities()

	logger.Info("variants resolved", slog.Int("capacities", len(s.capacities)))
	return StateSelectCapacity, e.editPrompt(ctx, s, textChooseCapacity, optionKeyboard(payloadCapacity, s.capacities))
}

func (e *Engine) onCapacity(ctx context.Context, s *Session, ev Event) (State, error) {
	i, _ := parseIndex(ev.Payload, payloadCapacity, len(s.capacities))
	s.Capacity = s.capacities[i]
	s.Color = ""

	v, _ := s.variant()
	s.colors = v.SortedColors()

	return StateSelectColor, e.editPrompt(ctx, s, textChooseColor, optionKeyboard(payloadColor, s.colors))
}

func (e *Engine) onColor(ctx context.Context, s *Session, ev Event) (State, error) {
	i, _ := parseIndex(ev.Payload, payloadColor, len(s.colors))
	s.Color = s.colors[i]

	if e.policy == PolicyIMEI {
		return StateCollectDeviceID, e.editPrompt(ctx, s, textSendIMEI, nil)
	}
	return StateSelectQuantity, e.editPrompt(ctx, s, textChooseQuantity, quantityKeyboard())
}

// onDeviceID validates the typed identifier. An invalid one is removed and
// the prompt is edited in place; the conversation stays on this step.
func (e *Engine) onDeviceID(ctx context.Context, s *Session, ev Event) (State, error) {
	imei := strings.ReplaceAll(strings.TrimSpace(ev.Text), " ", "")
	logger := e.sessionLogger(s)

	started := time.Now()
	device, err := e.devices.Lookup(ctx, imei)
	e.metrics.ObserveUpstream(metrics.OpDeviceLookup, errorCode(err), time.Since(started))

	if err != nil {
		logger.Info("device rejected",
			slog.String("code", model.CodeOf(err)),
			slog.String("error_kind", string(model.KindOf(err))),
			slog.String("error", err.Error()),
		)
		e.deleteMessages(ctx, s, ev.MessageID)
		return StateCollectDeviceID, e.editPrompt(ctx, s, invalidIMEIText(imei), nil)
	}

	s.trackUserMessage(ev.MessageID)
	s.Device = device
	s.deviceCapacities = model.SortCanonical(device.Capacities)
	if len(s.deviceCapacities) == 0 {
		s.deviceCapacities = append([]string(nil), model.CanonicalCapacities...)
	}

	logger.Info("device accepted", slog.String("brand", device.Brand), slog.String("model", device.Model))
	return StateSelectDeviceCapacity, e.editPrompt(ctx, s, textChooseDeviceCap, optionGrid(payloadDeviceCapacity, s.deviceCapacities, 4))
}

func (e *Engine) onDeviceCapacity(ctx context.Context, s *Session, ev Event) (State, error) {
	i, _ := parseIndex(ev.Payload, payloadDeviceCapacity, len(s.deviceCapacities))
	s.DeviceCapacity = s.deviceCapacities[i]

	if err := e.editPrompt(ctx, s, textGenerating, nil); err != nil {
		return "", err
	}

	v, _ := s.variant()
	dc := model.DiscountContext{
		ProductURL:     s.ProductURL,
		ProductID:      v.ProductID,
		ItemID:         s.itemID(),
		Color:          s.Color,
		Device:         *s.Device,
		DeviceCapacity: s.DeviceCapacity,
	}

	started := time.Now()
	link, err := e.links.BuildEnrolled(ctx, dc)
	e.metrics.ObserveUpstream(metrics.OpBuildLink, errorCode(err), time.Since(started))

	if err != nil {
		e.sessionLogger(s).Warn("enrolled link failed",
			slog.String("url", s.ProductURL),
			slog.String("item_id", dc.ItemID),
			slog.String("code", model.CodeOf(err)),
			slog.String("error_kind", string(model.KindOf(err))),
			slog.String("error", err.Error()),
		)
		return StateTerminated, e.finish(ctx, s, model.UserMessage(err), outcomeFailed)
	}

	e.metrics.IncLinks(string(PolicyIMEI), 1)
	return StateTerminated, e.finish(ctx, s, singleLinkText(link.URL), outcomeCompleted)
}

// onQuantity builds the requested links one after another and stops at the
// first failure. Links built before the failure are still delivered.
func (e *Engine) onQuantity(ctx context.Context, s *Session, ev Event) (State, error) {
	n, _ := parseQuantity(ev.Payload)
	s.RequestedLinks = n

	progress := textGenerating
	if n > 1 {
		progress = fmt.Sprintf(textGeneratingMultiple, n)
	}
	if err := e.editPrompt(ctx, s, progress, nil); err != nil {
		return "", err
	}

	v, _ := s.variant()
	itemID := s.itemID()
	logger := e.sessionLogger(s).With(slog.String("product_id", v.ProductID), slog.String("item_id", itemID))

	lines := make([]string, 0, n+1)
	var failure error
	for attempt := 1; attempt <= n; attempt++ {
		started := time.Now()
		link, err := e.links.Build(ctx, v.ProductID, itemID)
		e.metrics.ObserveUpstream(metrics.OpBuildLink, errorCode(err), time.Since(started))
		if err != nil {
			logger.Warn("link attempt failed",
				slog.Int("attempt", attempt),
				slog.Int("requested", n),
				slog.String("code", model.CodeOf(err)),
				slog.String("error_kind", string(model.KindOf(err))),
				slog.String("error", err.Error()),
			)
			failure = err
			break
		}
		lines = append(lines, batchLinkText(attempt, link.URL))
	}

	e.metrics.IncLinks(string(PolicyBatch), len(lines))

	outcome := outcomeCompleted
	if failure != nil {
		lines = append(lines, model.UserMessage(failure))
		outcome = outcomeFailed
	}
	return StateTerminated, e.finish(ctx, s, strings.Join(lines, "\n"), outcome)
}

// finish removes every message tied to the session and sends the result.
func (e *Engine) finish(ctx context.Context, s *Session, text, outcome string) error {
	e.deleteMessages(ctx, s, s.trackedMessages()...)
	s.PromptMessageID = 0
	s.UserMessageIDs = nil

	e.metrics.IncConversation(outcome)
	e.sessionLogger(s).Info("conversation finished",
		slog.String("outcome", outcome),
		slog.Duration("elapsed", time.Since(s.StartedAt)),
	)

	if _, err := e.messenger.Send(ctx, s.ChatID, text, nil); err != nil {
		return fmt.Errorf("sending result: %w", err)
	}
	return nil
}

func (e *Engine) editPrompt(ctx context.Context, s *Session, text string, kb Keyboard) error {
	if err := e.messenger.Edit(ctx, s.ChatID, s.PromptMessageID, text, kb); err != nil {
		return fmt.Errorf("editing prompt: %w", err)
	}
	return nil
}

// deleteMessages removes messages, logging instead of failing.
func (e *Engine) deleteMessages(ctx context.Context, s *Session, ids ...int64) {
	if len(ids) == 0 {
		return
	}
	if err := e.messenger.Delete(ctx, s.ChatID, ids...); err != nil {
		e.sessionLogger(s).Warn("deleting messages failed", slog.Int("count", len(ids)), slog.String("error", err.Error()))
	}
}

// drop removes s from the session table unless it was already replaced.
func (e *Engine) drop(s *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sessions[s.UserID] == s {
		delete(e.sessions, s.UserID)
	}
}

func (e *Engine) sessionLogger(s *Session) *slog.Logger {
	return e.logger.With(
		slog.String("session_id", s.ID),
		slog.Int64("user_id", s.UserID),
	)
}

func (e *Engine) productKeyboard() Keyboard {
	products := e.catalog.Products()
	buttons := make([]Button, 0, len(products)+1)
	for i, p := range products {
		buttons = append(buttons, Button{Text: p.Name, Payload: payloadProduct + strconv.Itoa(i)})
	}
	buttons = append(buttons, Button{Text: textOtherProduct, Payload: payloadOtherProduct})
	return column(buttons)
}

func optionButtons(prefix string, labels []string) []Button {
	buttons := make([]Button, len(labels))
	for i, l := range labels {
		buttons[i] = Button{Text: l, Payload: prefix + strconv.Itoa(i)}
	}
	return buttons
}

func optionKeyboard(prefix string, labels []string) Keyboard {
	return column(optionButtons(prefix, labels))
}

func optionGrid(prefix string, labels []string, width int) Keyboard {
	return grid(optionButtons(prefix, labels), width)
}

func quantityKeyboard() Keyboard {
	buttons := make([]Button, len(QuantityChoices))
	for i, n := range QuantityChoices {
		buttons[i] = Button{Text: strconv.Itoa(n), Payload: payloadQuantity + strconv.Itoa(n)}
	}
	return grid(buttons, 4)
}

// errorCode returns the metrics code of err, "" for success.
func errorCode(err error) string {
	if err == nil {
		return ""
	}
	return model.CodeOf(err)
}
