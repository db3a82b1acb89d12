package mapping

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/satishbabariya/batis-go/internal/debug"
	"github.com/satishbabariya/batis-go/query/ast"
	"github.com/satishbabariya/batis-go/query/cache"
	"github.com/satishbabariya/batis-go/runtime/types"
)

// Fragment is a reusable template subtree referenced by include nodes.
type Fragment struct {
	ID         string
	Namespace  string
	DatabaseID string
	Root       ast.Node
	Resource   string
}

// Registry owns everything loaded from the mapper files of one
// configuration. It is built once, frozen, and read concurrently after that.
type Registry struct {
	mu       sync.RWMutex
	frozen   bool
	settings Settings
	types    *types.Registry
	logger   *slog.Logger

	statements  map[string]*Statement
	shortIDs    map[string][]string
	fragments   map[string]*Fragment
	caches      map[string]cache.Unit
	cacheRefs   map[string]string
	resultTypes map[string]reflect.Type
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithTypes replaces the type handler registry.
func WithTypes(t *types.Registry) RegistryOption {
	return func(r *Registry) { r.types = t }
}

// WithRegistryLogger sets the logger used while loading.
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates an empty registry for settings.
func NewRegistry(settings Settings, opts ...RegistryOption) *Registry {
	r := &Registry{
		settings:    settings,
		types:       types.NewRegistry(),
		statements:  map[string]*Statement{},
		shortIDs:    map[string][]string{},
		fragments:   map[string]*Fragment{},
		caches:      map[string]cache.Unit{},
		cacheRefs:   map[string]string{},
		resultTypes: map[string]reflect.Type{},
	}
	for _, opt := range opts {
		opt(r)
	}
	for name, v := range builtinResultTypes {
		r.resultTypes[name] = reflect.TypeOf(v)
	}
	return r
}

var builtinResultTypes = map[string]any{
	"map":     map[string]any{},
	"string":  "",
	"int":     int(0),
	"int64":   int64(0),
	"float64": float64(0),
	"bool":    false,
	"time":    time.Time{},
	"bytes":   []byte(nil),
	"decimal": types.Decimal{},
}

// Settings returns the configuration settings.
func (r *Registry) Settings() Settings { return r.settings }

// DatabaseID returns the active database id.
func (r *Registry) DatabaseID() string { return r.settings.DatabaseID }

// Types returns the type handler registry.
func (r *Registry) Types() *types.Registry { return r.types }

func (r *Registry) log() *slog.Logger { return debug.Or(r.logger) }

func (r *Registry) checkMutable() error {
	if r.frozen {
		return ErrFrozen
	}
	return nil
}

// applies reports whether a declaration for databaseID is loaded.
func (r *Registry) applies(databaseID string) bool {
	return databaseID == "" || databaseID == r.settings.DatabaseID
}

// replaces decides between two declarations with the same id. A vendor
// specific declaration replaces a generic one whatever the load order; two
// declarations of equal specificity conflict.
func replaces(existingDB, candidateDB string) (replace bool, conflict bool) {
	switch {
	case existingDB == "" && candidateDB != "":
		return true, false
	case existingDB != "" && candidateDB == "":
		return false, false
	}
	return false, true
}

// AddStatement registers s. Statements for another database id are
// skipped.
func (r *Registry) AddStatement(s *Statement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkMutable(); err != nil {
		return err
	}
	if s.ID == "" {
		return Configf(s.Resource, "", "statement without id")
	}
	if s.Root == nil {
		return Configf(s.Resource, s.ID, "statement has no sql")
	}
	if !r.applies(s.DatabaseID) {
		r.log().Debug("skipping statement for other database", "id", s.ID, "databaseId", s.DatabaseID)
		return nil
	}
	if existing, ok := r.statements[s.ID]; ok {
		replace, conflict := replaces(existing.DatabaseID, s.DatabaseID)
		if conflict {
			return Configf(s.Resource, s.ID, "statement already declared in %s", existing.Resource)
		}
		if !replace {
			r.log().Debug("keeping database specific statement", "id", s.ID, "databaseId", existing.DatabaseID)
			return nil
		}
		r.statements[s.ID] = s
		return nil
	}
	r.statements[s.ID] = s
	short := s.ShortID()
	if short != s.ID {
		r.shortIDs[short] = append(r.shortIDs[short], s.ID)
	}
	return nil
}

// AddFragment registers a fragment under namespace.id, with the same
// database id rule as statements.
func (r *Registry) AddFragment(f *Fragment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkMutable(); err != nil {
		return err
	}
	if !r.applies(f.DatabaseID) {
		return nil
	}
	id := qualify(f.Namespace, f.ID)
	if existing, ok := r.fragments[id]; ok {
		replace, conflict := replaces(existing.DatabaseID, f.DatabaseID)
		if conflict {
			return Configf(f.Resource, id, "fragment already declared in %s", existing.Resource)
		}
		if !replace {
			return nil
		}
	}
	r.fragments[id] = f
	return nil
}

// AddCache registers the shared cache unit of a namespace.
func (r *Registry) AddCache(namespace string, unit cache.Unit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkMutable(); err != nil {
		return err
	}
	if _, ok := r.caches[namespace]; ok {
		return Configf("", namespace, "cache already declared")
	}
	r.caches[namespace] = unit
	return nil
}

// AddCacheRef makes namespace share the cache unit of target.
func (r *Registry) AddCacheRef(namespace, target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkMutable(); err != nil {
		return err
	}
	r.cacheRefs[namespace] = target
	return nil
}

// RegisterResultType names a Go type for use as a statement result type.
func (r *Registry) RegisterResultType(name string, t reflect.Type) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkMutable(); err != nil {
		return err
	}
	r.resultTypes[name] = t
	return nil
}

// ResultType returns the type registered under name.
func (r *Registry) ResultType(name string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.resultTypes[name]
	return t, ok
}

// Statement returns the statement with the given full id, or with the given
// short id when exactly one namespace declares it.
func (r *Registry) Statement(id string) (*Statement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.statements[id]; ok {
		return s, nil
	}
	switch ids := r.shortIDs[id]; len(ids) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrStatementNotFound, id)
	case 1:
		return r.statements[ids[0]], nil
	default:
		sorted := append([]string(nil), ids...)
		sort.Strings(sorted)
		return nil, fmt.Errorf("%w: %s is ambiguous (%s)", ErrStatementNotFound, id, strings.Join(sorted, ", "))
	}
}

// Statements returns every statement ordered by id.
func (r *Registry) Statements() []*Statement {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Statement, 0, len(r.statements))
	for _, s := range r.statements {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Fragment returns the fragment with the given full id.
func (r *Registry) Fragment(id string) (*Fragment, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fragments[id]
	return f, ok
}

// Cache returns the shared cache unit with the given id.
func (r *Registry) Cache(id string) (cache.Unit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.caches[id]
	return u, ok
}

// Caches returns every shared cache unit ordered by id.
func (r *Registry) Caches() []cache.Unit {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.caches))
	for id := range r.caches {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]cache.Unit, len(ids))
	for i, id := range ids {
		out[i] = r.caches[id]
	}
	return out
}

// Frozen reports whether Freeze succeeded.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Freeze resolves cache references and includes, checks cross references
// and makes the registry read-only. Every problem found is reported.
func (r *Registry) Freeze() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return nil
	}
	var errs []error

	units := map[string]string{}
	for ns := range r.cacheRefs {
		id, err := r.resolveCacheRef(ns)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		units[ns] = id
	}

	resolving := map[string]bool{}
	resolved := map[string]bool{}
	for _, id := range sortedKeys(r.fragments) {
		f := r.fragments[id]
		if err := r.resolveIncludes(f.Root, f.Namespace, f.Resource, resolving, resolved); err != nil {
			errs = append(errs, err)
		}
	}
	for _, id := range sortedKeys(r.statements) {
		s := r.statements[id]
		if err := r.resolveIncludes(s.Root, s.Namespace, s.Resource, resolving, resolved); err != nil {
			errs = append(errs, err)
		}
		if unit, ok := units[s.Cache]; ok {
			s.Cache = unit
		}
		if s.Cache != "" {
			if _, ok := r.caches[s.Cache]; !ok {
				errs = append(errs, Configf(s.Resource, s.ID, "unknown cache %q", s.Cache))
			}
		}
		if s.SelectKey != nil {
			if _, ok := r.statements[s.SelectKey.StatementID]; !ok {
				errs = append(errs, Configf(s.Resource, s.ID, "select key statement %q is not registered", s.SelectKey.StatementID))
			}
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	r.frozen = true
	return nil
}

func (r *Registry) resolveCacheRef(ns string) (string, error) {
	seen := map[string]bool{}
	cur := ns
	for {
		if seen[cur] {
			return "", Configf("", ns, "cache-ref cycle through %q", cur)
		}
		seen[cur] = true
		next, ok := r.cacheRefs[cur]
		if !ok {
			if _, ok := r.caches[cur]; !ok {
				return "", Configf("", ns, "cache-ref to %q which declares no cache", cur)
			}
			return cur, nil
		}
		cur = next
	}
}

// resolveIncludes fills the body of every include below root. Fragment ids
// are tried qualified with namespace first, then as written.
func (r *Registry) resolveIncludes(root ast.Node, namespace, resource string, resolving, resolved map[string]bool) error {
	var err error
	ast.Walk(root, func(n ast.Node) bool {
		if err != nil {
			return false
		}
		inc, ok := n.(*ast.Include)
		if !ok {
			return true
		}
		f, id := r.lookupFragment(namespace, inc.RefID)
		if f == nil {
			if inc.Body == nil {
				err = &ConfigurationError{Resource: resource, ID: inc.RefID, Message: "cannot include fragment", Cause: ast.ErrUnresolvedFragment}
			}
			return false
		}
		if resolving[id] {
			err = Configf(resource, id, "fragment includes itself")
			return false
		}
		if !resolved[id] {
			resolving[id] = true
			err = r.resolveIncludes(f.Root, f.Namespace, f.Resource, resolving, resolved)
			delete(resolving, id)
			resolved[id] = true
		}
		inc.Body = f.Root
		return false
	})
	return err
}

func (r *Registry) lookupFragment(namespace, ref string) (*Fragment, string) {
	if id := qualify(namespace, ref); id != ref {
		if f, ok := r.fragments[id]; ok {
			return f, id
		}
	}
	if f, ok := r.fragments[ref]; ok {
		return f, ref
	}
	return nil, ""
}

func qualify(namespace, id string) string {
	if namespace == "" || strings.HasPrefix(id, namespace+".") {
		return id
	}
	return namespace + "." + id
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
