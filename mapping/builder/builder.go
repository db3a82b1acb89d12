// Package builder loads YAML mapper files into a mapping.Registry.
//
// A mapper file declares one namespace:
//
//	version: "1.0"
//	namespace: users
//	cache: {eviction: lru, size: 512, ttl: 10m}
//	fragments:
//	  - id: columns
//	    sql: id, name, email
//	statements:
//	  - id: search
//	    kind: select
//	    resultType: user
//	    sql:
//	      - SELECT
//	      - include: columns
//	      - FROM users
//	      - where:
//	          - if: {test: "name != null", sql: "AND name = #{name}"}
package builder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/hashicorp/go-version"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/satishbabariya/batis-go/internal/debug"
	"github.com/satishbabariya/batis-go/mapping"
	"github.com/satishbabariya/batis-go/query/cache"
)

// DefaultVersion is assumed for files without a version key.
const DefaultVersion = "1.0"

// SupportedVersions is the range of mapper file versions this package reads.
const SupportedVersions = ">= 1.0, < 2.0"

var supported = version.MustConstraints(version.NewConstraint(SupportedVersions))

// Builder adds mapper files to a registry.
type Builder struct {
	registry *mapping.Registry
	fs       afero.Fs
	logger   *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithFs reads mapper files from fsys instead of the OS file system.
func WithFs(fsys afero.Fs) Option {
	return func(b *Builder) { b.fs = fsys }
}

// WithLogger sets the logger used while loading.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// New creates a builder for reg.
func New(reg *mapping.Registry, opts ...Option) *Builder {
	b := &Builder{registry: reg, fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Builder) log() *slog.Logger { return debug.Or(b.logger) }

// Registry returns the registry being built.
func (b *Builder) Registry() *mapping.Registry { return b.registry }

// Parse decodes one mapper file. Unknown keys are rejected.
func Parse(resource string, data []byte) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, &mapping.ConfigurationError{Resource: resource, Message: "malformed mapper file", Cause: err}
	}
	if doc.Version == "" {
		doc.Version = DefaultVersion
	}
	v, err := version.NewVersion(doc.Version)
	if err != nil {
		return nil, &mapping.ConfigurationError{Resource: resource, Message: "invalid version", Cause: err}
	}
	if !supported.Check(v) {
		return nil, mapping.Configf(resource, "", "mapper version %s is not supported (want %s)", v, SupportedVersions)
	}
	if doc.Namespace == "" {
		return nil, mapping.Configf(resource, "", "namespace is required")
	}
	if doc.Cache != nil && doc.CacheRef != "" {
		return nil, mapping.Configf(resource, doc.Namespace, "cache and cacheRef are exclusive")
	}
	return &doc, nil
}

// Load parses data and registers its contents under the resource name.
func (b *Builder) Load(resource string, data []byte) error {
	doc, err := Parse(resource, data)
	if err != nil {
		return err
	}
	return b.Add(resource, doc)
}

// LoadFile reads and registers one mapper file.
func (b *Builder) LoadFile(path string) error {
	data, err := afero.ReadFile(b.fs, path)
	if err != nil {
		return fmt.Errorf("failed to read mapper file: %w", err)
	}
	return b.Load(path, data)
}

// LoadDir registers every .yaml and .yml file below dir. Files are parsed
// concurrently and registered in path order; every error found is
// reported.
func (b *Builder) LoadDir(ctx context.Context, dir string) error {
	paths, err := MapperFiles(b.fs, dir)
	if err != nil {
		return err
	}
	docs := make([]*Document, len(paths))
	errs := make([]error, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := afero.ReadFile(b.fs, path)
			if err != nil {
				errs[i] = fmt.Errorf("failed to read mapper file: %w", err)
				return nil
			}
			docs[i], errs[i] = Parse(path, data)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, path := range paths {
		if errs[i] != nil {
			continue
		}
		errs[i] = b.Add(path, docs[i])
	}
	b.log().Debug("loaded mapper directory", "dir", dir, "files", len(paths))
	return errors.Join(errs...)
}

// MapperFiles lists the mapper files below dir in sorted order.
func MapperFiles(fsys afero.Fs, dir string) ([]string, error) {
	var paths []string
	err := afero.Walk(fsys, dir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list mapper files: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}

// Add registers a decoded document.
func (b *Builder) Add(resource string, doc *Document) error {
	ns := doc.Namespace
	reg := b.registry
	cacheID := ""
	switch {
	case doc.Cache != nil:
		unit, err := newCache(ns, doc.Cache, b.logger)
		if err != nil {
			return &mapping.ConfigurationError{Resource: resource, ID: ns, Message: "invalid cache", Cause: err}
		}
		if err := reg.AddCache(ns, unit); err != nil {
			return err
		}
		cacheID = ns
	case doc.CacheRef != "":
		if err := reg.AddCacheRef(ns, doc.CacheRef); err != nil {
			return err
		}
		cacheID = ns
	}

	var errs []error
	for i := range doc.Fragments {
		f := &doc.Fragments[i]
		root, err := ParseSQL(&f.SQL)
		if err != nil {
			errs = append(errs, &mapping.ConfigurationError{Resource: resource, ID: ns + "." + f.ID, Message: "invalid sql", Cause: err})
			continue
		}
		errs = append(errs, reg.AddFragment(&mapping.Fragment{
			ID:         f.ID,
			Namespace:  ns,
			DatabaseID: f.DatabaseID,
			Root:       root,
			Resource:   resource,
		}))
	}
	for i := range doc.Statements {
		errs = append(errs, b.addStatement(resource, ns, cacheID, &doc.Statements[i]))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	b.log().Debug("loaded mapper", "resource", resource, "namespace", ns,
		"statements", len(doc.Statements), "fragments", len(doc.Fragments))
	return nil
}

func (b *Builder) addStatement(resource, ns, cacheID string, d *StatementDoc) error {
	if d.ID == "" {
		return mapping.Configf(resource, ns, "statement without id")
	}
	id := ns + "." + d.ID
	fail := func(msg string, err error) error {
		return &mapping.ConfigurationError{Resource: resource, ID: id, Message: msg, Cause: err}
	}

	kind, err := mapping.ParseKind(d.Kind)
	if err != nil {
		return fail("invalid kind", err)
	}
	typ := mapping.Prepared
	switch strings.ToLower(d.StatementType) {
	case "", "prepared":
	case "callable":
		typ = mapping.Callable
	default:
		return mapping.Configf(resource, id, "unknown statementType %q", d.StatementType)
	}
	timeout, err := parseDuration(d.Timeout)
	if err != nil {
		return fail("invalid timeout", err)
	}
	root, err := ParseSQL(&d.SQL)
	if err != nil {
		return fail("invalid sql", err)
	}

	settings := b.registry.Settings()
	s := &mapping.Statement{
		ID:               id,
		Namespace:        ns,
		Kind:             kind,
		Type:             typ,
		Root:             root,
		ParameterType:    d.ParameterType,
		ResultType:       d.ResultType,
		UseCache:         orDefault(d.UseCache, kind == mapping.KindSelect),
		FlushCache:       orDefault(d.FlushCache, kind != mapping.KindSelect),
		Cache:            cacheID,
		DatabaseID:       d.DatabaseID,
		Timeout:          timeout,
		FetchSize:        d.FetchSize,
		UseGeneratedKeys: orDefault(d.UseGeneratedKeys, settings.UseGeneratedKeys && kind == mapping.KindInsert),
		KeyProperty:      splitList(d.KeyProperty),
		KeyColumn:        splitList(d.KeyColumn),
		Resource:         resource,
	}
	if s.UseGeneratedKeys && len(s.KeyProperty) == 0 {
		return mapping.Configf(resource, id, "useGeneratedKeys needs keyProperty")
	}

	if sk := d.SelectKey; sk != nil {
		if kind == mapping.KindSelect {
			return mapping.Configf(resource, id, "selectKey on a select statement")
		}
		order := mapping.KeyAfter
		switch strings.ToLower(sk.Order) {
		case "", "after":
		case "before":
			order = mapping.KeyBefore
		default:
			return mapping.Configf(resource, id, "selectKey order must be before or after, got %q", sk.Order)
		}
		props := splitList(sk.KeyProperty)
		if len(props) == 0 {
			return mapping.Configf(resource, id, "selectKey needs keyProperty")
		}
		keyRoot, err := ParseSQL(&sk.SQL)
		if err != nil {
			return fail("invalid selectKey sql", err)
		}
		keyID := id + mapping.SelectKeySuffix
		if err := b.registry.AddStatement(&mapping.Statement{
			ID:         keyID,
			Namespace:  ns,
			Kind:       mapping.KindSelect,
			Root:       keyRoot,
			ResultType: sk.ResultType,
			DatabaseID: d.DatabaseID,
			Resource:   resource,
		}); err != nil {
			return err
		}
		s.SelectKey = &mapping.SelectKey{
			StatementID: keyID,
			KeyProperty: props,
			KeyColumn:   splitList(sk.KeyColumn),
			Order:       order,
		}
	}
	return b.registry.AddStatement(s)
}

func newCache(ns string, c *CacheConfig, logger *slog.Logger) (*cache.Shared, error) {
	eviction, err := cache.ParseEviction(c.Eviction)
	if err != nil {
		return nil, err
	}
	opts := []cache.SharedOption{cache.WithEviction(eviction)}
	if c.Size != 0 {
		opts = append(opts, cache.WithSize(c.Size))
	}
	if c.TTL != "" {
		ttl, err := parseDuration(c.TTL)
		if err != nil {
			return nil, err
		}
		opts = append(opts, cache.WithTTL(ttl))
	}
	if logger != nil {
		opts = append(opts, cache.WithLogger(logger))
	}
	return cache.NewShared(ns, opts...)
}

func orDefault(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// Build loads every mapper file below dir into a new registry and freezes
// it.
func Build(ctx context.Context, fsys afero.Fs, settings mapping.Settings, dir string, opts ...Option) (*mapping.Registry, error) {
	reg := mapping.NewRegistry(settings)
	b := New(reg, append([]Option{WithFs(fsys)}, opts...)...)
	if err := b.LoadDir(ctx, dir); err != nil {
		return nil, err
	}
	if err := reg.Freeze(); err != nil {
		return nil, err
	}
	return reg, nil
}
