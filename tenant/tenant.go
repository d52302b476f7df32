/*
Package tenant owns one isolated set of books per tenant.

PURPOSE:
  A tenant is a pharmacy (or store group) with its own chart, entry log and
  subsidiary ledgers. Nothing is shared between tenants: each one gets its
  own SQLite file under the data directory, and every component is wired to
  that tenant's store only.

LIFECYCLE:
  1. Open: create <data_dir>/<tenant>.db (or an in-memory store)
  2. Seed: create any chart accounts the file is missing
  3. Resolve: bind every chart role once; a missing role fails the open
  4. Cache: the wired Workspace is reused for the life of the process

SEE ALSO:
  - factory/chart.go: chart definitions and seeding
  - ledger/chart.go: ResolveChart
*/
package tenant

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/ledger-engine/compose"
	"github.com/warp/ledger-engine/factory"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/ledger/store"
	"github.com/warp/ledger-engine/report"
	"github.com/warp/ledger-engine/store/sqlite"
)

// ErrInvalidTenant is returned for ids that cannot name a database file.
var ErrInvalidTenant = errors.New("tenant: invalid tenant id")

var tenantID = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)

// ValidID reports whether id can name a tenant.
func ValidID(id string) bool { return tenantID.MatchString(id) }

// =============================================================================
// WORKSPACE
// =============================================================================

// Workspace is one tenant's wired ledger engine.
type Workspace struct {
	ID       string
	Store    ledger.TxStore
	Journal  *ledger.Journal
	Registry *ledger.Registry
	Chart    *ledger.Chart
	Costs    *compose.CostBook
	Composer *compose.Composer
	Poster   *compose.Poster
	Reports  *report.Generator

	close func() error
}

// Drift is what a cache rebuild corrected.
type Drift struct {
	Accounts []ledger.CacheDrift
	Entities []ledger.CacheDrift
}

// RebuildCaches recomputes every account and counterparty cache from the log.
func (w *Workspace) RebuildCaches(ctx context.Context) (*Drift, error) {
	accounts, err := ledger.RebuildAccountCaches(ctx, w.Store)
	if err != nil {
		return nil, fmt.Errorf("rebuild account caches: %w", err)
	}
	entities, err := ledger.RebuildEntityCaches(ctx, w.Store)
	if err != nil {
		return nil, fmt.Errorf("rebuild counterparty caches: %w", err)
	}
	return &Drift{Accounts: accounts, Entities: entities}, nil
}

// =============================================================================
// MANAGER
// =============================================================================

type Options struct {
	// DataDir holds one <tenant>.db per tenant. Ignored when InMemory.
	DataDir  string
	InMemory bool

	// Chart seeds new tenants. Nil means the embedded default chart.
	Chart *factory.ChartDefinition

	RetryMaxElapsed time.Duration
	Logger          zerolog.Logger
}

// Manager opens tenants on first use and caches them.
type Manager struct {
	mu         sync.Mutex
	opts       Options
	chart      *factory.ChartDefinition
	factory    *factory.ChartFactory
	workspaces map[string]*Workspace
}

func NewManager(opts Options) (*Manager, error) {
	f := factory.NewChartFactory()
	chart := opts.Chart
	if chart == nil {
		def, err := f.Default()
		if err != nil {
			return nil, fmt.Errorf("default chart: %w", err)
		}
		chart = def
	}
	if !opts.InMemory {
		if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	return &Manager{
		opts:       opts,
		chart:      chart,
		factory:    f,
		workspaces: make(map[string]*Workspace),
	}, nil
}

// Get returns the tenant's workspace, opening and seeding it on first use.
func (m *Manager) Get(ctx context.Context, id string) (*Workspace, error) {
	if !ValidID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTenant, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if ws, ok := m.workspaces[id]; ok {
		return ws, nil
	}
	ws, err := m.open(ctx, id)
	if err != nil {
		return nil, err
	}
	m.workspaces[id] = ws
	return ws, nil
}

// IDs lists the tenants opened so far plus any database files on disk.
func (m *Manager) IDs() ([]string, error) {
	m.mu.Lock()
	seen := make(map[string]bool, len(m.workspaces))
	for id := range m.workspaces {
		seen[id] = true
	}
	m.mu.Unlock()

	if !m.opts.InMemory {
		files, err := filepath.Glob(filepath.Join(m.opts.DataDir, "*.db"))
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			id := filepath.Base(f)
			id = id[:len(id)-len(".db")]
			if ValidID(id) {
				seen[id] = true
			}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close releases every open tenant store.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for id, ws := range m.workspaces {
		if err := ws.close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", id, err))
		}
		delete(m.workspaces, id)
	}
	return errors.Join(errs...)
}

func (m *Manager) open(ctx context.Context, id string) (*Workspace, error) {
	logger := m.opts.Logger.With().Str("tenant", id).Logger()

	var (
		st      ledger.TxStore
		closeFn = func() error { return nil }
	)
	if m.opts.InMemory {
		st = store.NewMemory()
	} else {
		db, err := sqlite.New(filepath.Join(m.opts.DataDir, id+".db"))
		if err != nil {
			return nil, fmt.Errorf("open tenant %s: %w", id, err)
		}
		st, closeFn = db, db.Close
	}

	registry := ledger.NewRegistry(st)
	created, err := m.factory.Seed(ctx, registry, m.chart)
	if err != nil {
		closeFn()
		return nil, fmt.Errorf("seed tenant %s: %w", id, err)
	}
	if created > 0 {
		logger.Info().Int("accounts", created).Str("chart", m.chart.Name).Msg("seeded chart of accounts")
	}

	chart, err := ledger.ResolveChart(ctx, st, m.chart.RoleCodes())
	if err != nil {
		closeFn()
		return nil, fmt.Errorf("tenant %s: %w", id, err)
	}

	opts := []ledger.JournalOption{ledger.WithLogger(logger)}
	if m.opts.RetryMaxElapsed > 0 {
		opts = append(opts, ledger.WithRetry(m.opts.RetryMaxElapsed))
	}
	journal := ledger.NewJournal(st, opts...)
	costs := compose.NewCostBook()

	logger.Debug().Msg("tenant opened")
	return &Workspace{
		ID:       id,
		Store:    st,
		Journal:  journal,
		Registry: registry,
		Chart:    chart,
		Costs:    costs,
		Composer: compose.NewComposer(chart, costs),
		Poster:   compose.NewPoster(journal, logger),
		Reports:  report.NewGenerator(st, chart),
		close:    closeFn,
	}, nil
}
