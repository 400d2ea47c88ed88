// cmd/mcp-server/main.go: Standalone HTTP MCP server for lmisdp
//
// Exposes the LMI preparation and solver tools as an HTTP endpoint for
// AI agent frameworks.
//
// Usage:
//
//	go run ./cmd/mcp-server -port 8080 -logtostderr
//
// Tool call endpoint: POST /tool
// Schema endpoint:    GET  /schema
// Health endpoint:    GET  /health
// Metrics endpoint:   GET  /metrics
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/njchilds90/lmisdp"
	"github.com/njchilds90/lmisdp/solver"
)

const maxBodyBytes = 1 << 20 // 1 MiB

type metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lmisdp",
			Name:      "tool_calls_total",
			Help:      "Tool calls by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lmisdp",
			Name:      "tool_call_duration_seconds",
			Help:      "Tool call latency by tool name.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"tool"}),
	}
	reg.MustRegister(m.calls, m.duration)
	return m
}

// dispatch routes solver tools to the solver package and everything else
// to the core handler.
func dispatch(ctx context.Context, req lmisdp.ToolRequest) lmisdp.ToolResponse {
	if req.Tool == "mcp_spec" {
		return lmisdp.ToolResponse{Result: schema(), String: "MCP tool specification"}
	}
	if resp, ok := solver.HandleToolCall(ctx, req); ok {
		return resp
	}
	return lmisdp.HandleToolCall(req)
}

func schema() string { return lmisdp.MCPToolSpec(solver.ToolSpecs()...) }

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func newMux(reg *prometheus.Registry) *http.ServeMux {
	m := newMetrics(reg)
	mux := http.NewServeMux()

	// POST /tool: handle a tool call
	mux.HandleFunc("/tool", func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				glog.Errorf("panic in /tool: %v\n%s", rec, string(debug.Stack()))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()

		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		defer r.Body.Close()

		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()

		var req lmisdp.ToolRequest
		if err := dec.Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		// Ensure there's no trailing junk.
		if dec.More() {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON: trailing data")
			return
		}

		start := time.Now()
		resp := dispatch(r.Context(), req)
		m.duration.WithLabelValues(req.Tool).Observe(time.Since(start).Seconds())
		outcome := "ok"
		if resp.Error != "" {
			outcome = "error"
			glog.V(1).Infof("tool %s failed: %s", req.Tool, resp.Error)
		}
		m.calls.WithLabelValues(req.Tool, outcome).Inc()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})

	// GET /schema: return tool schema for agent registration
	mux.HandleFunc("/schema", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, schema())
	})

	// GET /health: liveness check plus solver backend status
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		status := map[string]string{}
		for _, name := range solver.Backends() {
			b, _ := solver.Lookup(name)
			if err := b.Available(ctx); err != nil {
				status[name] = "unavailable"
			} else {
				status[name] = "available"
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":   "ok",
			"time":     time.Now().UTC().Format(time.RFC3339),
			"backends": status,
		})
	})

	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}

func main() {
	port := flag.Int("port", 8080, "Port to listen on")
	flag.Parse()
	defer glog.Flush()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	addr := fmt.Sprintf(":%d", *port)
	glog.Infof("lmisdp MCP server listening on %s", addr)
	glog.Infof("  POST /tool    - execute a tool call")
	glog.Infof("  GET  /schema  - tool schema for agent registration")
	glog.Infof("  GET  /health  - health check")
	glog.Infof("  GET  /metrics - Prometheus metrics")

	srv := &http.Server{
		Addr:              addr,
		Handler:           newMux(reg),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      solver.ToolTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		glog.Fatal(err)
	}
}
