package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// MaxGuardedBodyBytes bounds the JSON body InputGuard will read
const MaxGuardedBodyBytes = 1 << 20

const (
	bodyField  = "body"
	queryField = "query"
)

// Enforcer validates request fields and returns the values to continue with
type Enforcer interface {
	Enforce(ctx context.Context, fields map[string]any, clientIP, userAgent string) (map[string]any, error)
}

// errNotJSON marks a non-empty body that is not declared as JSON
var errNotJSON = errors.New("request body is not application/json")

// InputGuard runs every JSON object body and query string through the
// policy engine. Non-empty bodies must be JSON so no payload reaches the
// handler unscanned. Rejected requests get a generic security error; allowed
// requests continue with the sanitized values substituted back in, except
// for the top-level body fields named in verbatim (passwords), which are
// scanned but forwarded unchanged.
func InputGuard(engine Enforcer, ipConfig *pkghttp.IPConfig, logger *slog.Logger, verbatim ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fields := make(map[string]any, 2)

			body, hasBody, err := readJSONObject(w, r)
			if errors.Is(err, errNotJSON) {
				pkghttp.WriteUnsupportedMediaType(w, "Request body must be application/json")
				return
			}
			if err != nil {
				pkghttp.WriteBadRequest(w, "Invalid request body")
				return
			}
			if hasBody {
				fields[bodyField] = body
			}

			query := r.URL.Query()
			if len(query) > 0 {
				fields[queryField] = queryFields(query)
			}

			clientIP := pkghttp.ExtractClientIP(r, ipConfig)
			cleaned, err := engine.Enforce(r.Context(), fields, clientIP, r.UserAgent())
			if err != nil {
				pkghttp.WriteSecurityError(w, err)
				return
			}

			if hasBody {
				cleanedBody, _ := cleaned[bodyField].(map[string]any)
				for _, name := range verbatim {
					if v, ok := body[name]; ok && cleanedBody != nil {
						cleanedBody[name] = v
					}
				}
				if err := replaceBody(r, cleanedBody); err != nil {
					logger.Error("failed to re-encode guarded body", slog.Any("error", err))
					pkghttp.WriteInternalError(w, "Internal server error")
					return
				}
			}
			if len(query) > 0 {
				if q, ok := cleaned[queryField].(map[string]any); ok {
					r.URL.RawQuery = encodeQuery(q)
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// readJSONObject decodes a JSON object body. Empty bodies report hasBody
// false whatever their content type; any other body must be a JSON object.
func readJSONObject(w http.ResponseWriter, r *http.Request) (map[string]any, bool, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, false, nil
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxGuardedBodyBytes))
	if err != nil {
		return nil, false, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		r.Body = io.NopCloser(bytes.NewReader(raw))
		return nil, false, nil
	}
	if !pkghttp.IsJSON(r) {
		return nil, false, errNotJSON
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false, err
	}
	if obj == nil {
		return nil, false, errors.New("body is not a JSON object")
	}
	return obj, true, nil
}

func replaceBody(r *http.Request, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))
	r.ContentLength = int64(len(raw))
	r.Header.Set("Content-Length", strconv.Itoa(len(raw)))
	return nil
}

func queryFields(values url.Values) map[string]any {
	out := make(map[string]any, len(values))
	for k, vs := range values {
		if len(vs) == 1 {
			out[k] = vs[0]
			continue
		}
		out[k] = append([]string(nil), vs...)
	}
	return out
}

func encodeQuery(fields map[string]any) string {
	values := make(url.Values, len(fields))
	for k, v := range fields {
		switch t := v.(type) {
		case string:
			values.Set(k, t)
		case []string:
			values[k] = t
		}
	}
	return values.Encode()
}
