package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns server health status with component checks",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)
}

// ComponentHealth describes the health of a single component.
type ComponentHealth struct {
	Status  string `json:"status" doc:"Component status: healthy, degraded, or unhealthy"`
	Latency string `json:"latency,omitempty" doc:"Response time for this component"`
	Message string `json:"message,omitempty" doc:"Additional status information"`
}

// HealthResponse contains health check data in API responses.
type HealthResponse struct {
	Status     string                     `json:"status" doc:"Overall status: healthy, degraded, or unhealthy"`
	Components map[string]ComponentHealth `json:"components" doc:"Individual component statuses"`
}

// HealthOutput wraps the health response for Huma.
type HealthOutput struct {
	Body HealthResponse
}

func (s *Server) handleHealthCheck(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	components := map[string]ComponentHealth{
		"database": s.checkDatabase(ctx),
		"search":   s.checkSearchIndex(),
		"sessions": s.checkSessions(),
	}

	overall := "healthy"
	for _, c := range components {
		switch {
		case c.Status == "unhealthy":
			overall = "unhealthy"
		case c.Status == "degraded" && overall == "healthy":
			overall = "degraded"
		}
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:     overall,
			Components: components,
		},
	}, nil
}

// checkDatabase verifies the catalog database is reachable.
func (s *Server) checkDatabase(ctx context.Context) ComponentHealth {
	if s.services.Catalog == nil {
		return ComponentHealth{
			Status:  "degraded",
			Message: "database not configured",
		}
	}

	start := time.Now()
	err := s.services.Catalog.Ping(ctx)
	latency := time.Since(start)

	if err != nil {
		return ComponentHealth{
			Status:  "unhealthy",
			Latency: latency.String(),
			Message: "database ping failed",
		}
	}

	return ComponentHealth{
		Status:  "healthy",
		Latency: latency.String(),
	}
}

// checkSearchIndex verifies the Bleve index is accessible.
func (s *Server) checkSearchIndex() ComponentHealth {
	if s.services.Search == nil {
		return ComponentHealth{
			Status:  "degraded",
			Message: "search service not configured",
		}
	}

	start := time.Now()
	docCount, err := s.services.Search.DocumentCount()
	latency := time.Since(start)

	if err != nil {
		return ComponentHealth{
			Status:  "unhealthy",
			Latency: latency.String(),
			Message: "search index unreachable",
		}
	}

	// An empty index is normal before the first apply.
	return ComponentHealth{
		Status:  "healthy",
		Latency: latency.String(),
		Message: fmt.Sprintf("%d documents", docCount),
	}
}

// checkSessions reports the live approval session count.
func (s *Server) checkSessions() ComponentHealth {
	if s.services.Sessions == nil {
		return ComponentHealth{
			Status:  "degraded",
			Message: "session store not configured",
		}
	}

	n := s.services.Sessions.Len()
	msg := fmt.Sprintf("%d active sessions", n)
	if n == 1 {
		msg = "1 active session"
	}
	return ComponentHealth{
		Status:  "healthy",
		Message: msg,
	}
}
