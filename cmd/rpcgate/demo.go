package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/rpcgate/adapters/validator"
	"github.com/artpar/rpcgate/config"
	"github.com/artpar/rpcgate/core/call"
	"github.com/artpar/rpcgate/core/executor"
	"github.com/artpar/rpcgate/core/middleware"
	"github.com/artpar/rpcgate/core/procedure"
	"github.com/artpar/rpcgate/core/router"
	"github.com/artpar/rpcgate/core/rpcerror"
	"github.com/artpar/rpcgate/core/subscription"
	"github.com/artpar/rpcgate/core/telemetry"
)

// requestLogger logs every call with its procedure identity.
func requestLogger(logger zerolog.Logger) *middleware.Func {
	return &middleware.Func{
		ModuleName: "request_logger",
		CallFunc: func(ctx context.Context, c call.Context, _ any, next middleware.Next) (call.Context, error) {
			start := time.Now()
			out, err := next(ctx, c)
			logger.Info().
				Str("procedure", c.ProcedurePath).
				Str("kind", c.ProcedureKind).
				Str("request_id", c.RequestID()).
				Dur("duration", time.Since(start)).
				Err(err).
				Msg("call")
			return out, err
		},
	}
}

// adminCheck rejects calls whose context carries no admin principal.
// The demo reads the principal from an assign a real deployment would
// set in an authentication middleware.
func adminCheck() *middleware.Func {
	return &middleware.Func{
		ModuleName: "admin_check",
		CallFunc: func(ctx context.Context, c call.Context, _ any, next middleware.Next) (call.Context, error) {
			if role, _ := c.Assign("role"); role == "admin" {
				return next(ctx, c)
			}
			return c, rpcerror.Coded("forbidden")
		},
	}
}

// demoUsers is an in-memory fixture served by the demo procedures.
var demoUsers = map[string]map[string]any{
	"1": {"id": "1", "name": "Ada Lovelace", "email": "ada@example.com"},
	"2": {"id": "2", "name": "Alan Turing", "email": "alan@example.com"},
}

// buildDemoDeclaration assembles the example declaration tree used by
// serve, routes, and validate.
func buildDemoDeclaration(holder *config.Holder, logger zerolog.Logger, emitter *telemetry.Emitter) *router.Declaration {
	users := procedure.NewRegistry("users")

	users.MustRegister(procedure.NewQuery("get").
		Input(validator.NewMapSchema(map[string]validator.Field{
			"id": {Type: validator.TypeString, Required: true},
		})).
		Meta(procedure.MetaDescription, "Fetch a user by id").
		Handler(func(_ context.Context, _ call.Context, input any) (any, error) {
			id := input.(map[string]any)["id"].(string)
			user, ok := demoUsers[id]
			if !ok {
				return nil, rpcerror.Coded("user_not_found")
			}
			return user, nil
		}).Build())

	users.MustRegister(procedure.NewQuery("list").
		Meta(procedure.MetaDescription, "List all users").
		Handler(func(_ context.Context, _ call.Context, _ any) (any, error) {
			out := make([]map[string]any, 0, len(demoUsers))
			for _, u := range demoUsers {
				out = append(out, u)
			}
			return out, nil
		}).Build())

	users.MustRegister(procedure.NewMutation("create").
		Input(validator.NewMapSchema(map[string]validator.Field{
			"name":  {Type: validator.TypeString, Required: true, Min: floatPtr(2)},
			"email": {Type: validator.TypeEmail, Required: true},
		})).
		Meta(procedure.MetaDescription, "Create a user").
		Handler(func(_ context.Context, _ call.Context, input any) (any, error) {
			m := input.(map[string]any)
			return map[string]any{"name": m["name"], "email": m["email"]}, nil
		}).Build())

	admin := procedure.NewRegistry("admin")
	admin.MustRegister(procedure.NewQuery("stats").
		Meta(procedure.MetaDescription, "Routing and fixture statistics").
		Handler(func(_ context.Context, _ call.Context, _ any) (any, error) {
			return map[string]any{"users": len(demoUsers)}, nil
		}).Build())

	events := procedure.NewRegistry("events")
	events.MustRegister(procedure.NewSubscription("ticks").
		Input(validator.NewMapSchema(map[string]validator.Field{
			"count": {Type: validator.TypeInt, Default: int64(5), Min: floatPtr(1), Max: floatPtr(100)},
		})).
		Meta(procedure.MetaDescription, "Emit a bounded sequence of timestamps").
		Handler(func(ctx context.Context, _ call.Context, input any) (any, error) {
			count := input.(map[string]any)["count"].(int64)
			stream, emitterSide := subscription.New(8)
			go func() {
				defer emitterSide.Close()
				for i := int64(0); i < count; i++ {
					if !emitterSide.Emit(ctx, map[string]any{"seq": i, "at": time.Now().Format(time.RFC3339Nano)}) {
						return
					}
					time.Sleep(250 * time.Millisecond)
				}
			}()
			return stream, nil
		}).Build())

	return router.New(
		router.WithName("rpcgate_demo"),
		router.WithLogger(logger),
		router.WithEmitter(emitter),
		router.WithExecutorConfig(func() executor.Config {
			cfg := holder.Get()
			return executor.Config{
				ValidateOutput:          cfg.ValidateOutput(),
				IncludeExceptionDetails: cfg.Executor.IncludeExceptionDetails,
			}
		}),
		router.WithLimits(func() router.Limits {
			cfg := holder.Get()
			return router.Limits{
				MaxBatchSize:   cfg.Batch.MaxBatchSize,
				MaxConcurrency: cfg.Batch.MaxConcurrency,
				CallTimeout:    cfg.Batch.CallTimeout,
			}
		}),
	).
		Use(requestLogger(logger), nil).
		Mount(users, "users").
		Mount(events, "events").
		Scope("admin", func(s *router.Scope) {
			s.Use(adminCheck(), nil)
			s.Mount(admin, "reports")
		}).
		Alias("getUser", "users.get").
		DeprecatedAlias("listUsers", "users.list")
}

func floatPtr(v float64) *float64 { return &v }
