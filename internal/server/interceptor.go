package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"connectrpc.com/connect"
)

// LoggingInterceptor writes one structured record per unary call.
func LoggingInterceptor(logger *slog.Logger) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			attrs := []any{
				slog.String("procedure", req.Spec().Procedure),
				slog.Duration("duration", time.Since(start)),
			}
			if err != nil {
				attrs = append(attrs, slog.String("code", connect.CodeOf(err).String()), slog.String("error", err.Error()))
				level := slog.LevelWarn
				if connect.CodeOf(err) == connect.CodeInternal {
					level = slog.LevelError
				}
				logger.Log(ctx, level, "rpc failed", attrs...)
				return resp, err
			}
			logger.Info("rpc", attrs...)
			return resp, nil
		}
	}
}

// RecoverInterceptor turns a panic inside a handler into CodeInternal.
func RecoverInterceptor(logger *slog.Logger) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (resp connect.AnyResponse, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("rpc panic", slog.String("procedure", req.Spec().Procedure), slog.Any("panic", r))
					err = connect.NewError(connect.CodeInternal, errors.New(fmt.Sprint(r)))
				}
			}()
			return next(ctx, req)
		}
	}
}
