// Package observability provides monitoring and debugging capabilities for
// the gateway through metrics, structured logging, and distributed tracing.
//
// # Overview
//
// The observability package implements the three pillars of observability:
//
//  1. Metrics - Quantitative measurements using Prometheus
//  2. Logging - Structured logs with sensitive data redaction
//  3. Tracing - Distributed request tracing with OpenTelemetry
//
// # Architecture
//
// The package is designed to be:
//   - Low-overhead: Minimal performance impact on production systems
//   - Type-safe: Strongly-typed APIs reduce configuration errors
//   - Production-ready: Built-in security (redaction) and reliability features
//   - Standards-based: Uses Prometheus, OpenTelemetry, and slog
//
// # Metrics
//
// Metrics are implemented using Prometheus client libraries and track:
//   - Routing decisions made by the pipeline, by mode
//   - Tool execution latency and outcome
//   - Bandit reward signal fed back into the scorer
//   - Active session counts and tool zoo size
//   - Downstream MCP server connection health
//   - Store (telemetry/sessions/toolzoo) query performance
//   - Config hot-reload outcomes
//   - Rows pruned by scheduled maintenance jobs
//
// Example usage:
//
//	metrics := observability.NewMetrics()
//	http.Handle("/metrics", promhttp.Handler())
//
//	start := time.Now()
//	decision, err := pipeline.Route(ctx, query)
//	metrics.RecordRoutingDecision(decision.Mode, time.Since(start).Seconds(), len(decision.Tools))
//
//	start = time.Now()
//	result, err := pool.CallTool(ctx, serverID, toolName, args)
//	status := "success"
//	if err != nil {
//	    status = "error"
//	}
//	metrics.RecordToolExecution(toolName, status, time.Since(start).Seconds())
//
// # Logging
//
// Logging is built on Go's slog package with enhancements for:
//   - Automatic request ID correlation from context
//   - Sensitive data redaction (API keys, passwords, tokens)
//   - JSON output for production, text for development
//   - Configurable log levels
//
// Example usage:
//
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    AddSource: true,
//	})
//
//	// Add context IDs for correlation
//	ctx := observability.AddRequestID(ctx, requestID)
//	ctx = observability.AddSessionID(ctx, sessionID)
//
//	// Structured logging with automatic context correlation
//	logger.Info(ctx, "routing decision",
//	    "mode", decision.Mode,
//	    "tools_selected", len(decision.Tools),
//	)
//
//	// Error logging with automatic redaction
//	logger.Error(ctx, "tool call failed",
//	    "error", err,
//	    "server_id", serverID,
//	    "api_key", apiKey, // Automatically redacted
//	)
//
// # Tracing
//
// Distributed tracing uses OpenTelemetry to track requests across components:
//   - End-to-end request visualization
//   - Performance bottleneck identification
//   - Service dependency mapping
//   - Error correlation across services
//
// Example usage:
//
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName:    "ucpgw",
//	    ServiceVersion: "1.0.0",
//	    Environment:    "production",
//	    Endpoint:       "localhost:4317", // OTLP collector
//	    SamplingRate:   0.1,              // Sample 10% of traces
//	})
//	defer shutdown(context.Background())
//
//	// Trace a routing decision
//	ctx, span := tracer.TraceRouteDecision(ctx, "hybrid", sessionID)
//	defer span.End()
//
//	// Trace a downstream tool call
//	ctx, toolSpan := tracer.TraceToolCall(ctx, "gmail.send_email")
//	defer toolSpan.End()
//	if err != nil {
//	    tracer.RecordError(toolSpan, err)
//	}
//
// # Context Propagation
//
// All three components integrate with Go's context for automatic correlation:
//
//	// Add IDs to context
//	ctx = observability.AddRequestID(ctx, "req-123")
//	ctx = observability.AddSessionID(ctx, "sess-456")
//	ctx = observability.AddToolName(ctx, "gmail.send_email")
//	ctx = observability.AddServerID(ctx, "gmail")
//
//	// IDs automatically appear in logs
//	logger.Info(ctx, "processing") // Includes request_id, session_id, etc.
//
//	// Spans inherit context
//	ctx, span := tracer.Start(ctx, "operation")
//	// Trace context propagates to child spans
//
// # Integration Example
//
// Complete example integrating all three components around a tool call:
//
//	func callTool(ctx context.Context, serverID, toolName string, args map[string]any) (any, error) {
//	    ctx = observability.AddServerID(ctx, serverID)
//	    ctx = observability.AddToolName(ctx, toolName)
//
//	    ctx, span := tracer.TraceToolCall(ctx, toolName)
//	    defer span.End()
//
//	    start := time.Now()
//	    result, err := pool.Call(ctx, serverID, toolName, args)
//	    duration := time.Since(start).Seconds()
//
//	    if err != nil {
//	        metrics.RecordError("pool", "tool_call_failed")
//	        tracer.RecordError(span, err)
//	        logger.Error(ctx, "tool call failed", "error", err)
//	        metrics.RecordToolExecution(toolName, "error", duration)
//	        return nil, err
//	    }
//
//	    metrics.RecordToolExecution(toolName, "success", duration)
//	    logger.Info(ctx, "tool call completed", "duration_ms", duration*1000)
//	    return result, nil
//	}
//
// # Security Considerations
//
// The logging component automatically redacts:
//   - API keys (Anthropic, OpenAI, generic)
//   - Passwords and secrets
//   - JWT tokens
//   - Bearer tokens
//   - Custom patterns via configuration
//
// Sensitive fields in maps are also redacted:
//   - password, passwd, pwd
//   - secret, api_key, apikey
//   - token, auth, authorization
//   - private_key, privatekey
//
// # Performance
//
// The observability system is designed for minimal overhead:
//   - Metrics use lock-free counters where possible
//   - Logging with slog is highly efficient
//   - Tracing supports sampling to reduce overhead
//   - Context propagation is zero-allocation in most cases
//
// Typical overhead:
//   - Metrics: <1% CPU, ~10KB memory per metric
//   - Logging: ~1-5μs per log call
//   - Tracing: ~2-10μs per span (when sampled)
//
// # Configuration
//
// All components support configuration via structs:
//
//	// Metrics - no configuration needed, auto-registered
//	metrics := observability.NewMetrics()
//
//	// Logging - configurable output, level, format
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:          os.Getenv("LOG_LEVEL"),
//	    Format:         "json",
//	    AddSource:      true,
//	    RedactPatterns: []string{`custom-secret-\d+`},
//	})
//
//	// Tracing - configurable sampling, endpoint, attributes
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName:    "ucpgw",
//	    ServiceVersion: version,
//	    Environment:    env,
//	    Endpoint:       os.Getenv("OTEL_ENDPOINT"),
//	    SamplingRate:   0.1,
//	    Attributes: map[string]string{
//	        "deployment.region": region,
//	        "deployment.cluster": cluster,
//	    },
//	})
//	defer shutdown(context.Background())
//
// # Testing
//
// All components provide testable interfaces:
//   - Metrics can be verified using prometheus/testutil
//   - Logging can write to bytes.Buffer for assertions
//   - Tracing works with no-op exporters in tests
//
// # Best Practices
//
//  1. Always propagate context to enable correlation
//  2. Use defer for span.End() to ensure spans are closed
//  3. Record errors on both metrics and traces
//  4. Use structured logging with key-value pairs
//  5. Set appropriate sampling rates for high-traffic systems
//  6. Add relevant attributes to spans for debugging
//  7. Use typed metric labels (avoid high-cardinality values)
//  8. Call shutdown() on tracer during graceful shutdown
//
// # Monitoring Dashboard
//
// The metrics exposed can be used to build dashboards:
//
//	# Routing decision throughput
//	rate(ucpgw_routing_decisions_total[5m])
//
//	# Tool execution latency (95th percentile)
//	histogram_quantile(0.95, rate(ucpgw_tool_execution_duration_seconds_bucket[5m]))
//
//	# Error rate
//	rate(ucpgw_errors_total[5m])
//
//	# Active sessions
//	ucpgw_active_sessions
//
//	# Tool execution time
//	rate(ucpgw_tool_execution_duration_seconds_sum[5m]) /
//	rate(ucpgw_tool_execution_duration_seconds_count[5m])
//
// # Alerting
//
// Recommended alerts based on metrics:
//   - High error rate: ucpgw_errors_total > threshold
//   - High tool latency: p95 latency > 10s
//   - Downstream disconnected: ucpgw_downstream_connection_status == 0
//   - Session accumulation: ucpgw_active_sessions growing unbounded
//
// # Further Reading
//
//   - Prometheus best practices: https://prometheus.io/docs/practices/naming/
//   - OpenTelemetry specification: https://opentelemetry.io/docs/specs/otel/
//   - slog documentation: https://pkg.go.dev/log/slog
package observability
