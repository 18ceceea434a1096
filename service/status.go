package service

import (
	"encoding/json"
	"net/http"

	"github.com/digineo/purged"
	"github.com/digineo/purged/cache"
	"github.com/digineo/purged/requestid"
	"go.uber.org/zap"
)

type Status struct {
	Version   string           `json:"version"`
	Mirror    string           `json:"mirror,omitempty"`
	Zones     []cache.Stats    `json:"zones"`
	Locations []locationStatus `json:"locations"`
}

type locationStatus struct {
	Path     string   `json:"path"`
	Zone     string   `json:"zone"`
	Key      string   `json:"key"`
	PurgeAll bool     `json:"purge_all,omitempty"`
	Methods  []string `json:"methods"`
	Allow    string   `json:"allow"`
	Response string   `json:"response_type"`
}

func (svc *service) HandleStatus(res http.ResponseWriter, req *http.Request) {
	status := Status{
		Version:   purged.Version(),
		Mirror:    svc.mirror,
		Zones:     make([]cache.Stats, 0, len(svc.zones)),
		Locations: make([]locationStatus, 0, len(svc.routes)),
	}
	for _, z := range svc.zones {
		status.Zones = append(status.Zones, z.Stats())
	}
	for _, rt := range svc.routes {
		ls := locationStatus{
			Path:     rt.Path,
			Key:      rt.Purge.Key.String(),
			PurgeAll: rt.Purge.PurgeAll,
			Methods:  rt.Methods,
			Allow:    rt.Allow.String(),
			Response: rt.Response.String(),
		}
		if z, ok := rt.Purge.Cache.(*cache.Zone); ok {
			ls.Zone = z.Name()
		}
		status.Locations = append(status.Locations, ls)
	}

	res.Header().Set("Content-Type", mimeTypeJSON)
	res.Header().Set("X-Content-Type-Options", "nosniff")
	res.WriteHeader(http.StatusOK)
	if req.Method == http.MethodHead {
		return
	}
	if err := json.NewEncoder(res).Encode(&status); err != nil {
		svc.Logger().Error("failed to write response",
			requestid.Field(req.Context()),
			zap.Error(err))
	}
}
