package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/retroquest/storefront-backend/api/responses"
	pkgerrors "github.com/retroquest/storefront-backend/pkg/errors"
	"github.com/retroquest/storefront-backend/pkg/logger"
	pkgredis "github.com/retroquest/storefront-backend/pkg/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"
	maxKeyLength      = 255

	adminReplayTTL = 24 * time.Hour
	// Money and stock moving requests are remembered for a week.
	orderReplayTTL = 7 * 24 * time.Hour
	inFlightTTL    = time.Minute
)

// replayRoute is a method plus a path pattern where "*" matches one segment.
type replayRoute struct {
	method  string
	pattern []string
	ttl     time.Duration
}

func route(method, pattern string, ttl time.Duration) replayRoute {
	return replayRoute{method: method, pattern: splitPath(pattern), ttl: ttl}
}

var replayRoutes = []replayRoute{
	route(http.MethodPost, "/api/orders", orderReplayTTL),
	route(http.MethodPut, "/api/orders/*/cancel", orderReplayTTL),
	route(http.MethodPut, "/api/admin/orders/*/payment", orderReplayTTL),
	route(http.MethodPut, "/api/admin/orders/*/status", adminReplayTTL),
	route(http.MethodPost, "/api/admin/products", adminReplayTTL),
	route(http.MethodPut, "/api/admin/products/*/stock", adminReplayTTL),
}

func (rr replayRoute) matches(method string, segments []string) bool {
	if rr.method != method || len(rr.pattern) != len(segments) {
		return false
	}
	for i, want := range rr.pattern {
		if want != "*" && want != segments[i] {
			return false
		}
	}
	return true
}

func replayTTL(method, path string) (time.Duration, bool) {
	segments := splitPath(path)
	for _, rr := range replayRoutes {
		if rr.matches(method, segments) {
			return rr.ttl, true
		}
	}
	return 0, false
}

func splitPath(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}

// replayRecord is what gets stored under the key. A record without a status
// marks a request that is still being served.
type replayRecord struct {
	RequestHash string          `json:"request_hash"`
	Status      int             `json:"status,omitempty"`
	ContentType string          `json:"content_type,omitempty"`
	Body        json.RawMessage `json:"body,omitempty"`
}

func (r replayRecord) inFlight() bool { return r.Status == 0 }

// Idempotency replays the stored response of a checkout, cancellation or
// admin write when the client repeats it with the same Idempotency-Key.
// Requests without the header are served normally.
func Idempotency(store pkgredis.ReplayStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ttl, ok := replayTTL(r.Method, r.URL.Path)
			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if !ok || clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(clientKey) > maxKeyLength {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key is too long").
					WithDetails(map[string]any{"max_length": maxKeyLength}))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			sum := sha256.Sum256(body)
			hash := hex.EncodeToString(sum[:])
			key := store.ReplayKey(UserIDFromContext(ctx)+"|"+r.Method+"|"+r.URL.Path, clientKey)

			existing, err := loadReplay(r, store, key)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeTransientStore, err, "load idempotency record"))
				return
			}
			if existing != nil {
				writeReplay(w, r, logg, existing, hash)
				return
			}

			marker, _ := json.Marshal(replayRecord{RequestHash: hash})
			claimed, err := store.SetNX(ctx, key, string(marker), inFlightTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeTransientStore, err, "claim idempotency key"))
				return
			}
			if !claimed {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "a request with this Idempotency-Key is in progress"))
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			status := capture.statusCode()
			payload := capture.body.Bytes()
			if status >= http.StatusInternalServerError || (len(payload) > 0 && !json.Valid(payload)) {
				// Let the client retry with the same key.
				if delErr := store.Del(ctx, key); delErr != nil && logg != nil {
					logg.Error(ctx, "release idempotency key", delErr)
				}
				return
			}
			record, _ := json.Marshal(replayRecord{
				RequestHash: hash,
				Status:      status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        payload,
			})
			if setErr := store.Set(ctx, key, string(record), ttl); setErr != nil && logg != nil {
				logg.Error(ctx, "persist idempotency record", setErr)
			}
		})
	}
}

func loadReplay(r *http.Request, store pkgredis.ReplayStore, key string) (*replayRecord, error) {
	raw, err := store.Get(r.Context(), key)
	if errors.Is(err, redis.Nil) || (err == nil && raw == "") {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var record replayRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func writeReplay(w http.ResponseWriter, r *http.Request, logg *logger.Logger, record *replayRecord, hash string) {
	ctx := r.Context()
	switch {
	case record.RequestHash != hash:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case record.inFlight():
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "a request with this Idempotency-Key is in progress"))
	default:
		if record.ContentType != "" {
			w.Header().Set("Content-Type", record.ContentType)
		}
		w.Header().Set(replayedHeader, "true")
		w.WriteHeader(record.Status)
		_, _ = w.Write(record.Body)
	}
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
