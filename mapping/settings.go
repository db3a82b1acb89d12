package mapping

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// LocalCacheScope controls how long local cache entries live.
type LocalCacheScope int

const (
	// ScopeSession keeps entries until the session mutates, commits, rolls
	// back or closes.
	ScopeSession LocalCacheScope = iota
	// ScopeStatement clears the local cache after every read.
	ScopeStatement
)

func (s LocalCacheScope) String() string {
	if s == ScopeStatement {
		return "STATEMENT"
	}
	return "SESSION"
}

// ExecutorType selects how statements are sent to the database.
type ExecutorType int

const (
	ExecutorSimple ExecutorType = iota
	ExecutorReuse
	ExecutorBatch
)

func (t ExecutorType) String() string {
	switch t {
	case ExecutorReuse:
		return "REUSE"
	case ExecutorBatch:
		return "BATCH"
	}
	return "SIMPLE"
}

// ParseExecutorType parses SIMPLE, REUSE or BATCH.
func ParseExecutorType(s string) (ExecutorType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SIMPLE":
		return ExecutorSimple, nil
	case "REUSE":
		return ExecutorReuse, nil
	case "BATCH":
		return ExecutorBatch, nil
	}
	return 0, fmt.Errorf("unknown executor type %q", s)
}

// Settings are the global switches of a configuration.
type Settings struct {
	CacheEnabled             bool
	LocalCacheScope          LocalCacheScope
	DefaultExecutorType      ExecutorType
	UseGeneratedKeys         bool
	ShrinkWhitespace         bool
	NullableOnForEach        bool
	MapUnderscoreToCamelCase bool
	DefaultStatementTimeout  time.Duration
	DefaultFetchSize         int
	DatabaseID               string
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		CacheEnabled:        true,
		LocalCacheScope:     ScopeSession,
		DefaultExecutorType: ExecutorSimple,
	}
}

type settingFunc func(s *Settings, v string) error

var settingParsers = map[string]settingFunc{
	"cacheEnabled": func(s *Settings, v string) (err error) {
		s.CacheEnabled, err = strconv.ParseBool(v)
		return
	},
	"localCacheScope": func(s *Settings, v string) error {
		switch strings.ToUpper(v) {
		case "SESSION":
			s.LocalCacheScope = ScopeSession
		case "STATEMENT":
			s.LocalCacheScope = ScopeStatement
		default:
			return fmt.Errorf("want SESSION or STATEMENT")
		}
		return nil
	},
	"defaultExecutorType": func(s *Settings, v string) (err error) {
		s.DefaultExecutorType, err = ParseExecutorType(v)
		return
	},
	"useGeneratedKeys": func(s *Settings, v string) (err error) {
		s.UseGeneratedKeys, err = strconv.ParseBool(v)
		return
	},
	"shrinkWhitespacesInSql": func(s *Settings, v string) (err error) {
		s.ShrinkWhitespace, err = strconv.ParseBool(v)
		return
	},
	"nullableOnForEach": func(s *Settings, v string) (err error) {
		s.NullableOnForEach, err = strconv.ParseBool(v)
		return
	},
	"mapUnderscoreToCamelCase": func(s *Settings, v string) (err error) {
		s.MapUnderscoreToCamelCase, err = strconv.ParseBool(v)
		return
	},
	"defaultStatementTimeout": func(s *Settings, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			secs, convErr := strconv.Atoi(v)
			if convErr != nil {
				return err
			}
			d = time.Duration(secs) * time.Second
		}
		s.DefaultStatementTimeout = d
		return nil
	},
	"defaultFetchSize": func(s *Settings, v string) (err error) {
		s.DefaultFetchSize, err = strconv.Atoi(v)
		return
	},
	"databaseId": func(s *Settings, v string) error {
		s.DatabaseID = v
		return nil
	},
}

// SettingNames lists the recognised setting keys.
func SettingNames() []string {
	names := make([]string, 0, len(settingParsers))
	for k := range settingParsers {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Apply sets the named settings. Keys match case-insensitively; unknown keys
// and malformed values are configuration errors.
func (s *Settings) Apply(props map[string]string) error {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parse, name := lookupSetting(k)
		if parse == nil {
			return Configf("settings", k, "unknown setting; known settings are %s", strings.Join(SettingNames(), ", "))
		}
		if err := parse(s, strings.TrimSpace(props[k])); err != nil {
			return &ConfigurationError{Resource: "settings", ID: name, Message: fmt.Sprintf("invalid value %q", props[k]), Cause: err}
		}
	}
	return nil
}

func lookupSetting(key string) (settingFunc, string) {
	if f, ok := settingParsers[key]; ok {
		return f, key
	}
	for name, f := range settingParsers {
		if strings.EqualFold(name, key) {
			return f, name
		}
	}
	return nil, ""
}

// ApplySettings returns the default settings with props applied.
func ApplySettings(props map[string]string) (Settings, error) {
	s := DefaultSettings()
	if err := s.Apply(props); err != nil {
		return Settings{}, err
	}
	return s, nil
}
