package service

import (
	"net/http"
	"strings"

	"github.com/digineo/purged/config"
	"github.com/digineo/purged/purge"
	"github.com/digineo/purged/render"
	"github.com/digineo/purged/requestid"
	"go.uber.org/zap"
)

// purgeHandler serves one configured location. The key template sees
// the request path as $0 and the remainder after the route prefix as
// $1.
func (svc *service) purgeHandler(rt config.Route) http.Handler {
	return http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		log := svc.Logger().With(
			requestid.Field(req.Context()),
			zap.String("location", rt.Path))

		if !rt.Allow.Allowed(req.RemoteAddr) {
			log.Warn("purge denied",
				zap.String("remote", req.RemoteAddr),
				zap.Stringer("allow", rt.Allow))
			res.Header().Set("Content-Type", mimeTypePlain)
			res.Header().Set("X-Content-Type-Options", "nosniff")
			res.WriteHeader(http.StatusForbidden)
			_, _ = res.Write([]byte(http.StatusText(http.StatusForbidden) + "\n"))
			return
		}

		p := purge.NewRequest(req, req.URL.Path, strings.TrimPrefix(req.URL.Path, rt.Path))
		p.Log = log
		result := rt.Purge.Wait(p)

		if err := render.Write(res, req, rt.Response, result); err != nil {
			log.Error("failed to write response", zap.Error(err))
		}
	})
}
