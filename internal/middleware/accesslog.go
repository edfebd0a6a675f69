// internal/middleware/accesslog.go
//
// Access log and HTTP metrics.
//
// Context
// -------
// One zap line per request plus the two Prometheus HTTP collectors.  The
// route label is chi's matched pattern ("/sites/{id}"), never the raw path,
// so label cardinality stays bounded.  Unmatched requests are labelled
// "unmatched".
//
// Notes
// -----
//   - Must run inside the chi router so RouteContext is populated by the
//     time next returns, and after requestinfo.Enrich.
//   - 5xx responses log at error level, 4xx at warn, the rest at info.
//   - Oxford commas, two spaces after periods.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/yanizio/sites/internal/metrics"
	"github.com/yanizio/sites/internal/requestinfo"
)

// AccessLog returns the logging and metrics middleware.
func AccessLog(log *zap.Logger) func(http.Handler) http.Handler {
	log = log.Named("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := routePattern(r)
			elapsed := time.Since(start)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", elapsed),
				zap.String("request_id", chimw.GetReqID(r.Context())),
			}
			if ri := requestinfo.FromContext(r.Context()); ri != nil {
				fields = append(fields,
					zap.Stringer("ip", ri.Geo.IP),
					zap.String("browser", ri.UA.Browser),
					zap.String("device", ri.UA.Device),
					zap.String("country", ri.Geo.CountryISO),
				)
			}

			if ce := log.Check(levelFor(status), "request"); ce != nil {
				ce.Write(fields...)
			}
		})
	}
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func levelFor(status int) zapcore.Level {
	switch {
	case status >= 500:
		return zapcore.ErrorLevel
	case status >= 400:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}
