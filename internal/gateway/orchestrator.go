package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/messaging-gateway/internal/conversation"
	"github.com/wolfman30/messaging-gateway/internal/leads"
	"github.com/wolfman30/messaging-gateway/internal/messaging"
	"github.com/wolfman30/messaging-gateway/internal/observability/metrics"
	"github.com/wolfman30/messaging-gateway/pkg/logging"
)

var tracer = otel.Tracer("gateway.internal.gateway")

// ConversationResolver maps a sender to its conversation.
type ConversationResolver interface {
	Resolve(ctx context.Context, tenantID, phone string) (conversation.Resolution, error)
}

// Sender delivers a reply through the tenant's transport.
type Sender interface {
	Send(ctx context.Context, tenantID, to, body string) messaging.SendResult
}

// LeadNotifier is told about leads created by inbound messages.
type LeadNotifier interface {
	NotifyNewLead(ctx context.Context, tenantID string, lead *leads.Lead) error
}

// Config wires an Orchestrator. Notifier, Metrics and Logger are optional.
type Config struct {
	Normalizer *messaging.Normalizer
	Resolver   ConversationResolver
	Messages   messaging.MessageStore
	Responder  conversation.Responder
	Sender     Sender
	Notifier   LeadNotifier
	Metrics    *metrics.GatewayMetrics
	Logger     *logging.Logger
}

// Outcome reports how far one delivery got.
type Outcome struct {
	State State
	Path  []State

	Source         messaging.Source
	ConversationID uuid.UUID
	// InboundID and OutboundID are message record ids; zero when not stored.
	InboundID  uuid.UUID
	OutboundID uuid.UUID
	// ProviderMessageID is the id the transport assigned to the reply.
	ProviderMessageID string
	Reply             string

	Duplicate   bool
	LeadCreated bool

	// Warnings are failures that did not stop the pipeline.
	Warnings []string
	// Err is the failure that moved the delivery to FAILED.
	Err error
}

// Kind classifies the outcome.
func (o Outcome) Kind() ErrorKind {
	if o.Duplicate {
		return KindDuplicateMessage
	}
	return KindOf(o.Err)
}

func (o *Outcome) advance(s State) {
	o.State = s
	o.Path = append(o.Path, s)
}

func (o *Outcome) warn(format string, args ...any) {
	o.Warnings = append(o.Warnings, fmt.Sprintf(format, args...))
}

// Orchestrator runs the inbound pipeline: normalize, resolve, persist,
// gate on the bot flag, generate a reply, send it and persist it.
type Orchestrator struct {
	normalizer *messaging.Normalizer
	resolver   ConversationResolver
	messages   messaging.MessageStore
	responder  conversation.Responder
	sender     Sender
	notifier   LeadNotifier
	metrics    *metrics.GatewayMetrics
	logger     *logging.Logger
	now        func() time.Time
}

func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.Resolver == nil || cfg.Messages == nil || cfg.Responder == nil || cfg.Sender == nil {
		panic("gateway: resolver, message store, responder and sender are required")
	}
	if cfg.Normalizer == nil {
		cfg.Normalizer = messaging.NewNormalizer()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Orchestrator{
		normalizer: cfg.Normalizer,
		resolver:   cfg.Resolver,
		messages:   cfg.Messages,
		responder:  cfg.Responder,
		sender:     cfg.Sender,
		notifier:   cfg.Notifier,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		now:        time.Now,
	}
}

// Process handles one webhook delivery. It never retries; the returned
// outcome tells the caller whether the provider should redeliver.
func (o *Orchestrator) Process(ctx context.Context, payload messaging.Payload, tenantID string) (out Outcome) {
	ctx, span := tracer.Start(ctx, "gateway.process", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	started := o.now()
	out.Source = payload.Source()
	out.advance(StateReceived)
	span.SetAttributes(
		attribute.String("gateway.tenant_id", tenantID),
		attribute.String("gateway.source", string(out.Source)),
	)
	log := o.logger.With("tenant_id", tenantID, "source", out.Source)

	defer func() {
		label := string(out.Kind())
		switch {
		case out.Duplicate:
		case out.State == StateFailed:
			span.RecordError(out.Err)
			span.SetStatus(codes.Error, label)
		case contains(out.Path, StateBotSkipped):
			label = "bot_skipped"
		default:
			label = "replied"
		}
		span.SetAttributes(attribute.String("gateway.final_state", string(out.State)))
		o.metrics.ObserveInbound(string(out.Source), label)
		o.metrics.ObservePipelineLatency(string(out.Source), o.now().Sub(started).Seconds())
	}()

	fail := func(err error) Outcome {
		out.Err = err
		out.advance(StateFailed)
		return out
	}

	msg := o.normalizer.Normalize(payload, tenantID)
	if msg.FromMe {
		log.Debug("ignoring message sent by the tenant", "message_id", msg.MessageID)
		return fail(ErrOwnMessage)
	}
	if !msg.Actionable() {
		log.Warn("dropping inbound message without sender or content", "message_id", msg.MessageID)
		return fail(ErrMalformedPayload)
	}
	if msg.GeneratedID {
		log.Warn("inbound message has no provider id, deduplication disabled", "message_id", msg.MessageID)
	}
	out.advance(StateNormalized)
	span.SetAttributes(attribute.String("gateway.message_id", msg.MessageID))

	res, err := o.resolver.Resolve(ctx, tenantID, msg.From)
	if err != nil {
		log.Error("conversation resolution failed", "message_id", msg.MessageID, "error", err)
		return fail(fmt.Errorf("%w: %w", ErrResolutionFailure, err))
	}
	out.ConversationID = res.ConversationID
	out.LeadCreated = res.LeadCreated
	out.advance(StateResolved)
	log = log.With("conversation_id", res.ConversationID)
	span.SetAttributes(attribute.String("gateway.conversation_id", res.ConversationID.String()))

	if res.LeadCreated && res.Lead != nil {
		o.metrics.ObserveLeadCreated(string(out.Source))
		o.notifyLead(ctx, tenantID, res.Lead, &out, log)
	}

	inbound, err := o.messages.RecordInbound(ctx, res.ConversationID, msg)
	out.advance(StatePersistedIn)
	switch {
	case err != nil:
		log.Error("failed to store inbound message", "message_id", msg.MessageID, "error", err)
		out.warn("persist inbound: %v", err)
	case inbound.Duplicate:
		log.Info("duplicate inbound message ignored", "message_id", msg.MessageID)
		out.Duplicate = true
		out.advance(StateDone)
		return out
	default:
		out.InboundID = inbound.ID
	}

	if !res.IsBotActive {
		log.Info("bot inactive for conversation, not replying")
		out.advance(StateBotSkipped)
		out.advance(StateDone)
		return out
	}

	out.advance(StateAIProcessing)
	reply, err := o.responder.GenerateReply(ctx, conversation.ReplyRequest{
		TenantID:         tenantID,
		ConversationID:   res.ConversationID,
		CustomerPhone:    msg.From,
		CustomerMessage:  customerMessage(msg),
		InboundMessageID: out.InboundID,
	})
	if err != nil {
		log.Error("ai responder failed, no reply sent", "error", err)
		return fail(fmt.Errorf("%w: %w", ErrAICollaborator, err))
	}
	out.Reply = reply

	sent := o.sender.Send(ctx, tenantID, msg.From, reply)
	if !sent.Success {
		err := sent.Error()
		if err == nil {
			err = fmt.Errorf("%w: transport reported no success", messaging.ErrProviderSend)
		}
		return fail(err)
	}
	out.ProviderMessageID = sent.MessageID
	out.advance(StateSent)

	outboundID, err := o.messages.RecordOutbound(ctx, res.ConversationID, reply, sent.MessageID)
	out.advance(StatePersistedOut)
	if err != nil {
		log.Error("failed to store outbound message", "provider_message_id", sent.MessageID, "error", err)
		out.warn("persist outbound: %v", err)
	} else {
		out.OutboundID = outboundID
	}

	out.advance(StateDone)
	log.Info("inbound message answered", "message_id", msg.MessageID, "provider_message_id", sent.MessageID)
	return out
}

func (o *Orchestrator) notifyLead(ctx context.Context, tenantID string, lead *leads.Lead, out *Outcome, log *logging.Logger) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.NotifyNewLead(ctx, tenantID, lead); err != nil {
		log.Warn("new lead notification failed", "lead_id", lead.ID, "error", err)
		out.warn("notify lead: %v", err)
	}
}

// customerMessage is the text handed to the responder. Media without a
// caption is described by its type.
func customerMessage(msg messaging.NormalizedMessage) string {
	if msg.HasText() {
		return msg.Text
	}
	kind := string(msg.MediaType)
	if kind == "" {
		kind = "media"
	}
	return fmt.Sprintf("[%s attachment]", kind)
}

func contains(path []State, s State) bool {
	for _, p := range path {
		if p == s {
			return true
		}
	}
	return false
}
