package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/datafold/datafold/pkg/atom"
	"github.com/datafold/datafold/pkg/atomref"
	"github.com/datafold/datafold/pkg/bus"
	"github.com/datafold/datafold/pkg/config"
	"github.com/datafold/datafold/pkg/log"
	"github.com/datafold/datafold/pkg/mutation"
	"github.com/datafold/datafold/pkg/orchestrator"
	"github.com/datafold/datafold/pkg/query"
	"github.com/datafold/datafold/pkg/resolver"
	"github.com/datafold/datafold/pkg/schema"
	"github.com/datafold/datafold/pkg/security"
	"github.com/datafold/datafold/pkg/storage"
	"github.com/datafold/datafold/pkg/transform"
	"github.com/datafold/datafold/pkg/types"
)

// engine wires every core package (A-L) into the facade the CLI drives,
// per SPEC_FULL.md §6: the CLI is the concrete producer/consumer of the
// wire shapes, not a network transport.
type engine struct {
	cfg config.Config

	db           *storage.DbOperations
	bus          *bus.Bus
	atoms        *atom.Store
	refs         *atomref.Store
	schemas      *schema.Manager
	resolver     *resolver.Resolver
	mutations    *mutation.Engine
	queries      *query.Engine
	transforms   *transform.Manager
	orchestrator *orchestrator.Orchestrator
	keys         *security.KeyRegistry
}

// loadConfig resolves the effective config.Config for a command: the
// --config file, if any, overlaid with the --data-dir flag.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	return cfg, nil
}

// newEngine opens the embedded store at cfg.DataDir and constructs every
// core component against it. The orchestrator's executor/trigger-lookup
// is the transform manager (pkg/orchestrator.Executor/TriggerLookup);
// the mutation engine's notifier is left nil because the orchestrator
// already drives itself off the bus's FieldValueSet topic (spec.md §4.K),
// so no direct notifier wiring is needed to avoid the construction cycle.
func newEngine(cfg config.Config) (*engine, error) {
	db, err := storage.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	b := bus.New()
	atoms := atom.New(db)
	refs := atomref.New(db)

	schemas := schema.New(db)
	if err := schemas.Load(); err != nil {
		db.Close()
		return nil, err
	}
	if err := schema.LoadDirectories(schemas, cfg.SchemaDirs...); err != nil {
		db.Close()
		return nil, err
	}

	res := resolver.New(schemas, refs, atoms)
	muts := mutation.New(schemas, refs, atoms, b, nil)
	qe := query.New(schemas, res, b)
	tm := transform.New(db, res, muts, b)
	if err := tm.Load(); err != nil {
		db.Close()
		return nil, err
	}

	orch := orchestrator.New(db, b, tm, tm, log.Logger,
		orchestrator.WithMaxRetries(cfg.MaxRetries),
		orchestrator.WithRetryDelay(time.Duration(cfg.RetryDelayMS)*time.Millisecond),
	)
	if err := orch.Load(); err != nil {
		db.Close()
		return nil, err
	}

	salt, err := security.LoadOrCreateSalt(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	masterKey := security.DeriveMasterKey(cfg.MasterPassphrase, salt, cfg.SecurityLevelValue())
	keys := security.NewKeyRegistry(db, masterKey)

	e := &engine{
		cfg:          cfg,
		db:           db,
		bus:          b,
		atoms:        atoms,
		refs:         refs,
		schemas:      schemas,
		resolver:     res,
		mutations:    muts,
		queries:      qe,
		transforms:   tm,
		orchestrator: orch,
		keys:         keys,
	}

	for name, state := range schemas.States() {
		if state != types.SchemaApproved {
			continue
		}
		if err := e.registerFieldTransforms(name); err != nil {
			db.Close()
			return nil, err
		}
	}

	return e, nil
}

func (e *engine) Close() error {
	return e.db.Close()
}

// registerFieldTransforms expands every field carrying an embedded
// TransformRef into a full TransformRegistration with the transform
// manager, so the orchestrator's TriggerLookup actually has something to
// find (spec.md §4.E: "the schema manager expands this into a full
// TransformRegistration when the schema is approved" — done here rather
// than inside pkg/schema because pkg/transform already imports
// pkg/mutation, which imports pkg/schema; a schema -> transform import
// would cycle). It is idempotent: a field whose transform is already
// registered (by output schema.field) is left alone.
func (e *engine) registerFieldTransforms(schemaName string) error {
	s, err := e.schemas.Get(schemaName)
	if err != nil {
		return err
	}
	for fieldName, field := range s.Fields {
		if field.Transform == nil {
			continue
		}
		if _, ok := e.transforms.ByOutput(schemaName, fieldName); ok {
			continue
		}
		_, err := e.transforms.Register(types.Transform{
			Name:         field.Transform.Name,
			LogicSource:  field.Transform.LogicSource,
			Reversible:   field.Transform.Reversible,
			Signature:    field.Transform.Signature,
			OutputSchema: schemaName,
			OutputField:  fieldName,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
