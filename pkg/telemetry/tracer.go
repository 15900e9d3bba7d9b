// Package telemetry 初始化 OpenTelemetry 链路追踪。
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"

	"legal-rag-go/internal/config"
	"legal-rag-go/pkg/log"
)

// InitTracer 按配置初始化全局 TracerProvider，返回关闭函数。
// 未启用时返回空操作，各处 otel.Tracer 得到的是 noop 实现。
func InitTracer(ctx context.Context, cfg config.TelemetryConfig) (func(context.Context), error) {
	if !cfg.Enabled {
		return func(context.Context) {}, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	ratio := cfg.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
	otel.SetTracerProvider(tp)

	log.Infof("OpenTelemetry tracer 初始化成功, service=%s, endpoint=%s", cfg.ServiceName, cfg.OTLPEndpoint)

	return func(ctx context.Context) {
		if err := tp.Shutdown(ctx); err != nil {
			log.Errorf("关闭 tracer 失败: %v", err)
		}
	}, nil
}
