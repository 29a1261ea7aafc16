package httptransport

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"certenrich/internal/enrichment/models"
	"certenrich/internal/lookup"
	"certenrich/internal/transport/stream"
	"certenrich/pkg/requestcontext"
)

// DefaultMaxBodyBytes caps the NDJSON request body.
const DefaultMaxBodyBytes = 64 << 20

const contentTypeNDJSON = "application/x-ndjson"

// Runner runs one enrichment invocation.
type Runner interface {
	Run(ctx context.Context, records iter.Seq2[*models.Record, error]) ([]*models.Record, error)
}

// Handler serves the enrichment endpoint. One request is one invocation.
type Handler struct {
	runner       Runner
	decoder      *stream.Decoder
	logger       *slog.Logger
	maxBodyBytes int64
}

type Option func(*Handler)

func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		h.maxBodyBytes = n
	}
}

// New creates a Handler reading fingerprints from fingerprintField.
func New(runner Runner, fingerprintField string, logger *slog.Logger, opts ...Option) (*Handler, error) {
	if runner == nil {
		return nil, errors.New("runner is required")
	}
	if fingerprintField == "" {
		return nil, errors.New("fingerprint field is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	h := &Handler{
		runner:       runner,
		decoder:      stream.NewDecoder(fingerprintField),
		logger:       logger,
		maxBodyBytes: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Register registers the enrichment routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/enrich", h.handleEnrich)
}

// handleEnrich enriches an NDJSON body and answers NDJSON in input order.
func (h *Handler) handleEnrich(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	records, err := h.runner.Run(ctx, h.decoder.Records(body))
	if err != nil {
		h.writeRunError(ctx, w, requestID, err)
		return
	}

	w.Header().Set("Content-Type", contentTypeNDJSON)
	w.WriteHeader(http.StatusOK)
	if err := stream.Encode(w, records); err != nil {
		h.logger.ErrorContext(ctx, "failed to write enrichment response",
			"request_id", requestID,
			"error", err,
		)
	}
}

func (h *Handler) writeRunError(ctx context.Context, w http.ResponseWriter, requestID string, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, stream.ErrMalformedRecord),
		errors.Is(err, stream.ErrMissingFingerprint),
		errors.As(err, &tooLarge):
		h.logger.WarnContext(ctx, "invalid enrichment request",
			"request_id", requestID,
			"error", err,
		)
		WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, lookup.ErrSchemaViolation):
		h.logger.ErrorContext(ctx, "lookup service returned an incompatible response",
			"request_id", requestID,
			"error", err,
		)
		WriteError(w, http.StatusBadGateway, "")
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		// Client went away; nobody reads the response.
		h.logger.InfoContext(ctx, "enrichment request cancelled",
			"request_id", requestID,
		)
	default:
		h.logger.ErrorContext(ctx, "enrichment failed",
			"request_id", requestID,
			"error", err,
		)
		WriteError(w, http.StatusInternalServerError, "")
	}
}
