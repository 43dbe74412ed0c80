package env

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

type Var map[string]string

// Env composes the environment handed to automation subprocesses
// (the crawler and the login/upload commands).
type Env struct {
	Var  Var // global variables (K->V)
	base Var // cached OS environment
	noOS bool
}

func New() *Env {
	return &Env{Var: make(Var)}
}

// Isolated returns an Env that does not inherit the daemon's OS environment.
func Isolated() *Env {
	return &Env{Var: make(Var), noOS: true}
}

// WithSet returns a copy of e with K=V applied.
func (e *Env) WithSet(k, v string) *Env {
	out := e.clone()
	if k != "" {
		out.Var[k] = v
	}
	return out
}

// WithPairs returns a copy of e with every "K=V" entry applied in order.
// Entries without '=' or with an empty key are skipped.
func (e *Env) WithPairs(kvs []string) *Env {
	out := e.clone()
	for _, kv := range kvs {
		if k, v, ok := split(kv); ok {
			out.Var[k] = v
		}
	}
	return out
}

// WithFiles returns a copy of e with the contents of the given dotenv files
// applied in order; later files override earlier ones.
func (e *Env) WithFiles(paths ...string) (*Env, error) {
	out := e.clone()
	for _, p := range paths {
		m, err := godotenv.Read(filepath.Clean(p))
		if err != nil {
			return nil, fmt.Errorf("read env file %s: %w", p, err)
		}
		for k, v := range m {
			if k == "" {
				continue
			}
			out.Var[k] = v
		}
	}
	return out, nil
}

func (e *Env) clone() *Env {
	out := &Env{Var: make(Var, len(e.Var)), base: e.base, noOS: e.noOS}
	for k, v := range e.Var {
		out.Var[k] = v
	}
	return out
}

func (e *Env) osBase() Var {
	if e.noOS {
		return nil
	}
	if e.base != nil {
		return e.base
	}
	base := make(Var)
	for _, kv := range os.Environ() {
		if k, v, ok := split(kv); ok {
			base[k] = v
		}
	}
	return base
}

// Merge composes the final environment list applying order:
// OS env (unless isolated), then global Var, then extra "K=V" overrides.
// ${VAR} references are expanded once against the composed map.
// The result is sorted by key so that callers get a stable slice.
func (e *Env) Merge(extra []string) []string {
	m := make(Var)
	for k, v := range e.osBase() {
		m[k] = v
	}
	for k, v := range e.Var {
		if k == "" {
			continue
		}
		m[k] = v
	}
	for _, kv := range extra {
		if k, v, ok := split(kv); ok {
			m[k] = v
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+expand(v, m))
	}
	sort.Strings(out)
	return out
}

func split(kv string) (string, string, bool) {
	i := strings.IndexByte(kv, '=')
	if i <= 0 {
		return "", "", false
	}
	return kv[:i], kv[i+1:], true
}

func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	res := s
	for k, v := range m {
		res = strings.ReplaceAll(res, "${"+k+"}", v)
	}
	return res
}
