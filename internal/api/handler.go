package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"lifetap/flow-backend/internal/crypto"
	"lifetap/flow-backend/internal/envelope"
	"lifetap/flow-backend/internal/flow"
	"lifetap/flow-backend/internal/incident"
	"lifetap/flow-backend/internal/metrics"
	"lifetap/flow-backend/internal/platform/ratelimiter"
	"lifetap/flow-backend/internal/session"
)

const (
	maxBodyBytes = 1 << 20

	// statusKeyRefresh tells the client to discard its cached public key and
	// re-fetch before retrying. Fixed by the flow protocol; must only ever
	// signal cryptographic failure.
	statusKeyRefresh = 421
	// statusBadSignature is the protocol's code for a failed request
	// signature check.
	statusBadSignature = 432
)

// Handler is the endpoint orchestrator: codec, transport, session store,
// state machine and the terminal downstream call, in that order.
type Handler struct {
	transport *crypto.Transport
	store     session.Store
	directory incident.MemberDirectory
	creator   incident.Creator
	notifier  incident.Notifier
	limiter   *ratelimiter.PerKey
	metrics   *metrics.Metrics
	logger    *slog.Logger
	verifier  *signatureVerifier

	flowVersion       string
	downstreamTimeout time.Duration
}

type HandlerOptions struct {
	Transport         *crypto.Transport
	Store             session.Store
	Directory         incident.MemberDirectory
	Creator           incident.Creator
	Notifier          incident.Notifier
	Limiter           *ratelimiter.PerKey
	Metrics           *metrics.Metrics
	Logger            *slog.Logger
	AppSecret         string
	FlowVersion       string
	DownstreamTimeout time.Duration
}

func NewHandler(opts HandlerOptions) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.FlowVersion == "" {
		opts.FlowVersion = "3.0"
	}
	if opts.DownstreamTimeout <= 0 {
		opts.DownstreamTimeout = 5 * time.Second
	}
	return &Handler{
		transport:         opts.Transport,
		store:             opts.Store,
		directory:         opts.Directory,
		creator:           opts.Creator,
		notifier:          opts.Notifier,
		limiter:           opts.Limiter,
		metrics:           opts.Metrics,
		logger:            opts.Logger,
		verifier:          newSignatureVerifier(opts.AppSecret),
		flowVersion:       opts.FlowVersion,
		downstreamTimeout: opts.DownstreamTimeout,
	}
}

// ServeFlow handles one encrypted exchange. HTTP status codes are part of the
// external contract: 400 for malformed envelopes before any crypto, 421 for
// crypto failure, 200 with a raw base64 body for everything else. Business
// errors travel inside the encrypted response because the client cannot read
// an unencrypted body.
func (h *Handler) ServeFlow(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.count("read_error")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if !h.verifier.verify(body, r.Header.Get("X-Hub-Signature-256")) {
		h.count("bad_signature")
		w.WriteHeader(statusBadSignature)
		return
	}

	env, err := envelope.ParseRequestBody(body)
	if err != nil {
		h.count("malformed")
		h.logger.Warn("malformed flow envelope", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	plaintext, key, err := h.transport.Decrypt(env)
	if err != nil {
		h.count("decrypt_failed")
		if h.metrics != nil {
			h.metrics.DecryptFailures.Inc()
		}
		h.logger.Warn("flow envelope decryption failed", "error", err)
		w.WriteHeader(statusKeyRefresh)
		return
	}
	defer crypto.ZeroKey(key)

	responsePlain := h.exchange(r.Context(), plaintext)

	ciphertext, err := h.transport.Encrypt(responsePlain, key, env.IV)
	if err != nil {
		h.count("encrypt_failed")
		h.logger.Error("flow response encryption failed", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(envelope.EncodeResponseBody(ciphertext))
}

// exchange runs the decrypted request through the state machine and always
// produces a plaintext response to seal; after a successful decrypt the
// client only ever sees encrypted outcomes.
func (h *Handler) exchange(ctx context.Context, plaintext []byte) []byte {
	req, err := envelope.DecodeRequest(plaintext)
	if err != nil {
		h.count("bad_request")
		return h.errorResponse(h.flowVersion, "Malformed flow request")
	}
	version := req.Version
	if version == "" {
		version = h.flowVersion
	}

	// Health checks bypass sessions entirely.
	if req.Action == envelope.ActionPing {
		h.count("ping")
		return h.encode(envelope.Response{
			Version: version,
			Data:    map[string]any{"status": "active"},
		})
	}

	if req.FlowToken == "" {
		h.count("bad_request")
		return h.errorResponse(version, "Missing flow token")
	}

	if !h.limiter.Allow(req.FlowToken, time.Now()) {
		h.count("rate_limited")
		h.logger.Warn("flow session rate limited", "flow_token", req.FlowToken)
		return h.errorResponse(version, "Too many requests, please wait a moment")
	}

	fingerprint := session.Fingerprint(plaintext)

	var responsePlain []byte
	err = h.store.WithSession(req.FlowToken, func(rec *session.Record) error {
		// Re-delivered requests replay the recorded response instead of
		// stepping the form twice.
		if rec.Duplicate(fingerprint) {
			h.count("duplicate")
			responsePlain = rec.CachedResponse
			return nil
		}

		responsePlain = h.step(ctx, rec, req, version, fingerprint)
		return nil
	})
	if err != nil {
		h.count("store_error")
		h.logger.Error("session store failure", "error", err, "flow_token", req.FlowToken)
		return h.errorResponse(version, "Temporary failure, please try again")
	}
	return responsePlain
}

// step mutates the session record under its per-key lock and returns the
// plaintext response. Responses are cached on the record for replay unless
// the downstream call failed, so a retried final submission reaches the
// incident service again.
func (h *Handler) step(ctx context.Context, rec *session.Record, req envelope.Request, version, fingerprint string) []byte {
	var prefill map[string]any
	if req.Action == envelope.ActionInit || (req.Action == envelope.ActionDataExchange && rec.Screen == "") {
		prefill = h.memberPrefill(ctx, req.FlowToken)
	}

	outcome, err := flow.Step(rec, req, prefill)
	if err != nil {
		if errors.Is(err, flow.ErrInvalidTransition) {
			h.count("invalid_transition")
			h.logger.Warn("invalid flow transition",
				"action", req.Action,
				"screen", req.Screen,
				"current", rec.Screen,
				"flow_token", req.FlowToken,
			)
			rec.Terminal = true
			return h.cache(rec, fingerprint, h.errorResponse(version, "This form session is no longer valid"))
		}
		h.count("step_error")
		h.logger.Error("flow step failed", "error", err, "flow_token", req.FlowToken)
		return h.errorResponse(version, "Temporary failure, please try again")
	}

	if outcome.PendingIncident {
		return h.finishIncident(ctx, rec, req, version, fingerprint)
	}

	h.count("ok")
	if h.metrics != nil {
		h.metrics.ScreenTransitions.WithLabelValues(outcome.Response.Screen).Inc()
	}
	outcome.Response.Version = version
	return h.cache(rec, fingerprint, h.encode(outcome.Response))
}

// finishIncident performs the one synchronous downstream call of the
// endpoint: creating the incident. Failure is recoverable: the session is
// left open on the confirmation screen and nothing is cached, so the user
// can resubmit.
func (h *Handler) finishIncident(ctx context.Context, rec *session.Record, req envelope.Request, version, fingerprint string) []byte {
	memberID := flow.MemberIDFromToken(req.FlowToken)
	inc := incident.FromFields(memberID, rec.Fields)

	callCtx, cancel := context.WithTimeout(ctx, h.downstreamTimeout)
	defer cancel()

	start := time.Now()
	ref, err := h.creator.CreateIncident(callCtx, inc)
	if h.metrics != nil {
		h.metrics.DownstreamLatency.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		h.count("downstream_failed")
		h.logger.Error("incident creation failed", "error", err, "flow_token", req.FlowToken)
		return h.errorResponse(version, "Could not register the emergency, please try again")
	}

	rec.Terminal = true
	rec.Screen = string(flow.ScreenSuccess)
	h.count("incident_created")
	if h.metrics != nil {
		h.metrics.ScreenTransitions.WithLabelValues(string(flow.ScreenSuccess)).Inc()
	}
	h.logger.Info("incident created",
		"incident_number", ref.Number,
		"member_id", memberID,
		"flow_token", req.FlowToken,
	)

	if h.notifier != nil {
		member := h.member(ctx, memberID)
		go h.notifier.EmergencyActivated(context.WithoutCancel(ctx), ref, member)
	}

	return h.cache(rec, fingerprint, h.encode(envelope.Response{
		Version: version,
		Screen:  string(flow.ScreenSuccess),
		Data: map[string]any{
			"extension_message_response": map[string]any{
				"params": map[string]any{
					"flow_token":  req.FlowToken,
					"incident_id": ref.Number,
				},
			},
		},
	}))
}

func (h *Handler) memberPrefill(ctx context.Context, flowToken string) map[string]any {
	member := h.member(ctx, flow.MemberIDFromToken(flowToken))
	return map[string]any{
		"member_name": member.Name,
		"member_id":   member.ID,
		"blood_type":  member.BloodType,
		"allergies":   member.Allergies,
		"conditions":  member.Conditions,
	}
}

// member resolves a member profile, falling back to placeholders: an
// unresolved member must never block the form.
func (h *Handler) member(ctx context.Context, memberID string) incident.Member {
	if memberID == "" || h.directory == nil {
		return incident.UnknownMember
	}
	lookupCtx, cancel := context.WithTimeout(ctx, h.downstreamTimeout)
	defer cancel()
	member, ok, err := h.directory.Lookup(lookupCtx, memberID)
	if err != nil {
		h.logger.Warn("member lookup failed", "error", err, "member_id", memberID)
		return incident.UnknownMember
	}
	if !ok {
		return incident.UnknownMember
	}
	return member
}

func (h *Handler) cache(rec *session.Record, fingerprint string, plaintext []byte) []byte {
	rec.LastFingerprint = fingerprint
	rec.CachedResponse = plaintext
	return plaintext
}

func (h *Handler) errorResponse(version, message string) []byte {
	return h.encode(envelope.Response{
		Version: version,
		Screen:  string(flow.ScreenError),
		Data:    map[string]any{"error_message": message},
	})
}

func (h *Handler) encode(resp envelope.Response) []byte {
	out, err := resp.Encode()
	if err != nil {
		// Response types marshal by construction; failing here is a bug.
		h.logger.Error("response encode failed", "error", err)
		return []byte(`{"screen":"error","data":{"error_message":"internal error"}}`)
	}
	return out
}

func (h *Handler) count(outcome string) {
	if h.metrics != nil {
		h.metrics.Requests.WithLabelValues(outcome).Inc()
	}
}
