// Package appcatalog holds the read-only-after-load set of configured
// applications a client can attach to. The catalogue is constructed once
// at startup and handed out as an immutable snapshot, mirroring how the
// teacher's stream.Manager treats its application-independent state: no
// mutation after wiring, so readers never need to lock.
package appcatalog

import (
	"fmt"
	"regexp"
	"time"
)

var nameRE = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// Application is one entry in the catalogue: a command line plus
// environment, optional XWayland, and home-directory isolation settings.
// Immutable for the lifetime of the server process.
type Application struct {
	Name         string
	Description  string
	Command      []string
	Environment  map[string]string
	AppPath      string // UI-only, Unix separators
	HeaderImage  []byte // PNG, <=1 MiB

	XWayland       bool
	Force1xScale   bool
	IsolateHome    bool
	SharedHomeName string
	TmpHome        bool
	SessionTimeout time.Duration
}

// Validate checks the structural invariants an Application must satisfy
// before it can be added to a Catalog.
func (a Application) Validate() error {
	if !nameRE.MatchString(a.Name) {
		return fmt.Errorf("application %q: name must match [a-z][a-z0-9_-]*", a.Name)
	}
	if len(a.Command) == 0 {
		return fmt.Errorf("application %q: command must not be empty", a.Name)
	}
	if a.HeaderImage != nil && len(a.HeaderImage) > 1<<20 {
		return fmt.Errorf("application %q: header_image exceeds 1 MiB", a.Name)
	}
	if a.TmpHome && a.SharedHomeName != "" {
		return fmt.Errorf("application %q: tmp_home and shared_home_name are mutually exclusive", a.Name)
	}
	return nil
}

// Catalog is the immutable, name-keyed set of configured applications.
type Catalog struct {
	apps map[string]Application
}

// New builds a Catalog from a list of applications, validating each.
// shared_home_name collisions across applications are coalesced by
// design (documented in DESIGN.md): multiple applications may point at
// the same on-disk home directory.
func New(apps []Application) (*Catalog, error) {
	c := &Catalog{apps: make(map[string]Application, len(apps))}
	for _, a := range apps {
		if err := a.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.apps[a.Name]; dup {
			return nil, fmt.Errorf("duplicate application name %q", a.Name)
		}
		c.apps[a.Name] = a
	}
	return c, nil
}

// Get looks up an application by name.
func (c *Catalog) Get(name string) (Application, bool) {
	a, ok := c.apps[name]
	return a, ok
}

// List returns every configured application, order unspecified.
func (c *Catalog) List() []Application {
	out := make([]Application, 0, len(c.apps))
	for _, a := range c.apps {
		out = append(out, a)
	}
	return out
}
