package router

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/artpar/rpcgate/core/call"
	"github.com/artpar/rpcgate/core/middleware"
	"github.com/artpar/rpcgate/core/procedure"
	"github.com/artpar/rpcgate/core/schema"
)

// rejectAllSchema fails every value it sees.
type rejectAllSchema struct{}

func (rejectAllSchema) Parse(map[string]any) (any, []schema.FieldError) {
	return nil, []schema.FieldError{{Path: []string{"x"}, Message: "rejected"}}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func passthrough(name string) *middleware.Func {
	return &middleware.Func{
		ModuleName: name,
		CallFunc: func(ctx context.Context, c call.Context, _ any, next middleware.Next) (call.Context, error) {
			return next(ctx, c)
		},
	}
}

func echoHandler(_ context.Context, _ call.Context, input any) (any, error) {
	return input, nil
}

func usersRegistry(t *testing.T) *procedure.Registry {
	t.Helper()
	reg := procedure.NewRegistry("users_unit")
	reg.MustRegister(procedure.NewQuery("get").Handler(echoHandler).Build())
	reg.MustRegister(procedure.NewQuery("list").Handler(echoHandler).Build())
	reg.MustRegister(procedure.NewMutation("create").Handler(echoHandler).Build())
	return reg
}

func TestBuild_PathsAndSegments(t *testing.T) {
	table, err := New(WithLogger(testLogger())).
		Mount(usersRegistry(t), "users").
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	paths := table.Paths()
	want := []string{"users.create", "users.get", "users.list"}
	if strings.Join(paths, ",") != strings.Join(want, ",") {
		t.Errorf("Paths() = %v, want %v", paths, want)
	}

	entry, ok := table.Entry("users.get")
	if !ok {
		t.Fatal("Entry(users.get) missing")
	}
	if strings.Join(entry.Segments, "|") != "users|get" {
		t.Errorf("Segments = %v", entry.Segments)
	}
	if entry.Kind != procedure.KindQuery {
		t.Errorf("Kind = %q", entry.Kind)
	}
	if entry.Unit != "users_unit" {
		t.Errorf("Unit = %q", entry.Unit)
	}
}

// Property P1: every constructed table has unique paths; duplicates
// are a build error naming both declaration sites.
func TestBuild_DuplicatePaths(t *testing.T) {
	_, err := New(WithLogger(testLogger())).
		Mount(usersRegistry(t), "users").
		Mount(usersRegistry(t), "users").
		Build()

	if err == nil {
		t.Fatal("Build() should fail on duplicate paths")
	}
	var berr *BuildError
	if !asBuildError(err, &berr) {
		t.Fatalf("err = %T, want *BuildError", err)
	}
	if !strings.Contains(err.Error(), "duplicate path") {
		t.Errorf("error = %v", err)
	}
	if !strings.Contains(err.Error(), ".go:") {
		t.Errorf("error should carry source locations: %v", err)
	}
}

func asBuildError(err error, target **BuildError) bool {
	if be, ok := err.(*BuildError); ok {
		*target = be
		return true
	}
	return false
}

// Property P3 / Scenario S4: root, then scopes outer to inner, then
// procedure-local, minus the skip list.
func TestBuild_MiddlewareComposition(t *testing.T) {
	admin := procedure.NewRegistry("admin_unit")
	admin.MustRegister(procedure.NewQuery("stats").
		Handler(echoHandler).
		Use(passthrough("local"), nil).
		Build())

	table, err := New(WithLogger(testLogger())).
		Use(passthrough("logger"), nil).
		Mount(usersRegistry(t), "users").
		Scope("admin", func(s *Scope) {
			s.Use(passthrough("auth"), nil)
			s.Use(passthrough("admin_check"), nil)
			s.Mount(admin, "actions")
		}).
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	adminChain, _ := table.MiddlewareFor("admin.actions.stats")
	if strings.Join(adminChain, ",") != "logger,auth,admin_check,local" {
		t.Errorf("admin chain = %v", adminChain)
	}

	usersChain, _ := table.MiddlewareFor("users.get")
	if strings.Join(usersChain, ",") != "logger" {
		t.Errorf("users chain = %v, want root middleware only", usersChain)
	}
}

func TestBuild_MiddlewareAppliesOnlyToLaterRegistrations(t *testing.T) {
	early := procedure.NewRegistry("early_unit")
	early.MustRegister(procedure.NewQuery("ping").Handler(echoHandler).Build())
	late := procedure.NewRegistry("late_unit")
	late.MustRegister(procedure.NewQuery("ping").Handler(echoHandler).Build())

	table, err := New(WithLogger(testLogger())).
		Mount(early, "early").
		Use(passthrough("logger"), nil).
		Mount(late, "late").
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	earlyChain, _ := table.MiddlewareFor("early.ping")
	if len(earlyChain) != 0 {
		t.Errorf("early chain = %v, middleware declared later must not apply", earlyChain)
	}
	lateChain, _ := table.MiddlewareFor("late.ping")
	if strings.Join(lateChain, ",") != "logger" {
		t.Errorf("late chain = %v", lateChain)
	}
}

func TestBuild_SkipList(t *testing.T) {
	table, err := New(WithLogger(testLogger())).
		Use(passthrough("logger"), nil).
		Use(passthrough("auth"), nil).
		Mount(usersRegistry(t), "users", "auth").
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	chain, _ := table.MiddlewareFor("users.get")
	if strings.Join(chain, ",") != "logger" {
		t.Errorf("chain = %v, want auth skipped", chain)
	}
}

func TestBuild_NestedScopes(t *testing.T) {
	deep := procedure.NewRegistry("deep_unit")
	deep.MustRegister(procedure.NewQuery("peek").Handler(echoHandler).Build())

	table, err := New(WithLogger(testLogger())).
		Scope("api", func(api *Scope) {
			api.Use(passthrough("outer"), nil)
			api.Scope("v2", func(v2 *Scope) {
				v2.Use(passthrough("inner"), nil)
				v2.Mount(deep, "things")
			})
		}).
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if !table.Has("api.v2.things.peek") {
		t.Fatalf("paths = %v", table.Paths())
	}
	chain, _ := table.MiddlewareFor("api.v2.things.peek")
	if strings.Join(chain, ",") != "outer,inner" {
		t.Errorf("chain = %v, want outer then inner", chain)
	}
}

func TestBuild_RejectsBadSegments(t *testing.T) {
	_, err := New(WithLogger(testLogger())).
		Mount(usersRegistry(t), "Users").
		Build()
	if err == nil || !strings.Contains(err.Error(), "Users") {
		t.Errorf("Build() = %v, want mount segment rejection", err)
	}

	_, err = New(WithLogger(testLogger())).
		Scope("Admin", func(s *Scope) {
			s.Mount(usersRegistry(t), "users")
		}).
		Build()
	if err == nil || !strings.Contains(err.Error(), "Admin") {
		t.Errorf("Build() = %v, want scope prefix rejection", err)
	}
}

func TestBuild_PropagatesFinalizeErrors(t *testing.T) {
	broken := procedure.NewRegistry("broken_unit")
	broken.MustRegister(procedure.NewQuery("orphan").Build())

	_, err := New(WithLogger(testLogger())).
		Mount(broken, "broken").
		Build()
	if err == nil || !strings.Contains(err.Error(), "orphan") {
		t.Errorf("Build() = %v, want finalize failure surfaced", err)
	}
}

// Property P2: alias targets exist, alias names never shadow paths.
func TestBuild_AliasValidation(t *testing.T) {
	build := func(mutate func(*Declaration)) error {
		d := New(WithLogger(testLogger())).Mount(usersRegistry(t), "users")
		mutate(d)
		_, err := d.Build()
		return err
	}

	if err := build(func(d *Declaration) { d.Alias("getUser", "users.get") }); err != nil {
		t.Errorf("valid alias rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Declaration)
		want   string
	}{
		{"missing_target", func(d *Declaration) { d.Alias("x", "users.missing") }, "does not exist"},
		{"self", func(d *Declaration) { d.Alias("users.get", "users.get") }, ""},
		{"shadows_path", func(d *Declaration) { d.Alias("users.list", "users.get") }, "shadows"},
		{"alias_to_alias", func(d *Declaration) {
			d.Alias("a", "users.get")
			d.Alias("b", "a")
		}, "itself an alias"},
		{"bad_grammar", func(d *Declaration) { d.Alias("9bad", "users.get") }, "relaxed path grammar"},
		{"duplicate", func(d *Declaration) {
			d.Alias("dup", "users.get")
			d.Alias("dup", "users.list")
		}, "more than once"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := build(tt.mutate)
			if err == nil {
				t.Fatal("Build() should have failed")
			}
			if tt.want != "" && !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want %q", err, tt.want)
			}
		})
	}
}

// Property P7: every entry path matches the strict grammar, every
// alias matches the relaxed one.
func TestBuild_GrammarProperty(t *testing.T) {
	table, err := New(WithLogger(testLogger())).
		Mount(usersRegistry(t), "users").
		Alias("getUser", "users.get").
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	for _, p := range table.Paths() {
		if !ValidPath(p) {
			t.Errorf("entry path %q violates the strict grammar", p)
		}
	}
	for _, a := range table.Aliases() {
		if !ValidAliasPath(a.From) {
			t.Errorf("alias %q violates the relaxed grammar", a.From)
		}
		if !table.Has(a.To) {
			t.Errorf("alias target %q not in table", a.To)
		}
		if table.Has(a.From) {
			t.Errorf("alias %q shadows a path", a.From)
		}
	}
}

func TestTable_Introspection(t *testing.T) {
	table, err := New(WithLogger(testLogger())).
		Mount(usersRegistry(t), "users").
		DeprecatedAlias("listUsers", "users.list").
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if got := len(table.Queries()); got != 2 {
		t.Errorf("Queries() len = %d", got)
	}
	if got := len(table.Mutations()); got != 1 {
		t.Errorf("Mutations() len = %d", got)
	}
	if got := len(table.Subscriptions()); got != 0 {
		t.Errorf("Subscriptions() len = %d", got)
	}

	byPrefix := table.EntriesByPrefix("users")
	if len(byPrefix) != 3 {
		t.Errorf("EntriesByPrefix(users) len = %d", len(byPrefix))
	}
	if got := table.EntriesByPrefix("user"); len(got) != 0 {
		t.Errorf("EntriesByPrefix(user) = %v, prefix must be segment-aligned", got)
	}

	if canonical, ok := table.Resolve("listUsers"); !ok || canonical != "users.list" {
		t.Errorf("Resolve(listUsers) = %q, %v", canonical, ok)
	}
	if canonical, ok := table.Resolve("users.get"); !ok || canonical != "users.get" {
		t.Errorf("Resolve(users.get) = %q, %v", canonical, ok)
	}
	if _, ok := table.Resolve("nope"); ok {
		t.Error("Resolve(nope) should miss")
	}

	aliases := table.Aliases()
	if len(aliases) != 1 || !aliases[0].Deprecated {
		t.Errorf("Aliases() = %v", aliases)
	}

	def, ok := table.ProcedureFor("listUsers")
	if !ok || def.Name != "list" {
		t.Errorf("ProcedureFor(listUsers) = %v, %v", def, ok)
	}

	units := table.DeclaringUnits()
	if len(units) != 1 || units[0] != "users_unit" {
		t.Errorf("DeclaringUnits() = %v", units)
	}
}
