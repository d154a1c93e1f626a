package registry

import "github.com/delacruz/cliflow-go/internal/model"

// builtins are the process types registered at startup (spec.md §4.3's
// static initializer). They exist to give a fresh deployment something
// runnable; operators are expected to Register their own types on top.
var builtins = []ProcessType{
	{
		Name:        "deploy",
		Description: "build the artifact, push it, then run smoke checks",
		Tasks: []model.TaskDef{
			{Name: "build", Command: "make build", TimeoutMinutes: 20, MaxRetries: 1},
			{Name: "push", Command: "make push", TimeoutMinutes: 10, MaxRetries: 2},
			{Name: "smoke-test", Command: "make smoke-test", TimeoutMinutes: 5, MaxRetries: 2},
		},
	},
	{
		Name:        "backup",
		Description: "snapshot a data volume and ship it to cold storage",
		Tasks: []model.TaskDef{
			{Name: "snapshot", Command: "${backup_script} snapshot ${volume}", TimeoutMinutes: 30, MaxRetries: 1},
			{Name: "upload", Command: "${backup_script} upload ${volume}", TimeoutMinutes: 60, MaxRetries: 3},
		},
	},
}

// NewWithBuiltins returns a Registry pre-populated with the built-in
// process types, which every deployment gets for free.
func NewWithBuiltins() *Registry {
	r := New()
	for _, pt := range builtins {
		r.Register(pt)
	}
	return r
}
