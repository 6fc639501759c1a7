package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/pagewise/internal/metrics"
)

const (
	maxArgLogLen   = 200
	methodCallTool = "tools/call"
)

// Tool calls may fetch pages or wait on a chat model, so they get a
// looser slow threshold than protocol requests.
const (
	slowRequest  = 100 * time.Millisecond
	slowToolCall = 2 * time.Second
)

// LoggingMiddleware logs each request with its duration. Tool calls carry
// the tool name and truncated arguments; tool results flagged as errors are
// logged at WARN.
func LoggingMiddleware(logger *slog.Logger) mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			start := time.Now()
			result, err := next(ctx, method, req)
			duration := time.Since(start)

			attrs := []any{"method", method, "duration_ms", duration.Milliseconds()}
			threshold := slowRequest
			if method == methodCallTool {
				threshold = slowToolCall
			}
			if name, args, ok := toolCall(req); ok {
				attrs = append(attrs, "tool", name)
				if args != "" {
					attrs = append(attrs, "args", truncate(args, maxArgLogLen))
				}
			} else if p := req.GetParams(); p != nil {
				attrs = append(attrs, "params", truncate(fmt.Sprintf("%+v", p), maxArgLogLen))
			}

			switch {
			case err != nil:
				logger.Error("request failed", append(attrs, "error", err.Error())...)
			case isToolError(result):
				logger.Warn("tool returned error", attrs...)
			case duration > threshold:
				logger.Warn("slow request", attrs...)
			default:
				logger.Debug("request completed", attrs...)
			}
			return result, err
		}
	}
}

// MetricsMiddleware records tool call durations under metrics.OpToolCall
// and per tool under "tool_call:<name>".
func MetricsMiddleware(mc *metrics.Collector) mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			if method != methodCallTool {
				return next(ctx, method, req)
			}
			name, _, _ := toolCall(req)
			start := time.Now()
			result, err := next(ctx, method, req)
			d := time.Since(start)
			mc.RecordTiming(metrics.OpToolCall, d)
			if name != "" {
				mc.RecordTiming(metrics.OpToolCall+":"+name, d)
			}
			return result, err
		}
	}
}

func toolCall(req mcp.Request) (name, args string, ok bool) {
	p, ok := req.GetParams().(*mcp.CallToolParamsRaw)
	if !ok || p == nil {
		return "", "", false
	}
	return p.Name, string(p.Arguments), true
}

func isToolError(result mcp.Result) bool {
	r, ok := result.(*mcp.CallToolResult)
	return ok && r != nil && r.IsError
}

// truncate shortens s to maxLen, ending in "..." when cut.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
