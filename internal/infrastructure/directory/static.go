// Package directory provides an in-process identity directory loaded from YAML.
package directory

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/careflow/approvals/internal/domain/models"
	"github.com/careflow/approvals/internal/domain/ports"
)

// StaticDirectory is a read-mostly directory of users and their roles.
type StaticDirectory struct {
	mu    sync.RWMutex
	users []models.User
	byID  map[string]int
}

var _ ports.Directory = (*StaticDirectory)(nil)

// NewStaticDirectory creates a directory holding users in the given order.
func NewStaticDirectory(users ...models.User) *StaticDirectory {
	d := &StaticDirectory{}
	d.Replace(users)
	return d
}

// Replace swaps the directory contents.
func (d *StaticDirectory) Replace(users []models.User) {
	byID := make(map[string]int, len(users))
	for i, u := range users {
		byID[u.ID] = i
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.users = append([]models.User(nil), users...)
	d.byID = byID
}

// UsersInRole returns role members in directory order.
func (d *StaticDirectory) UsersInRole(_ context.Context, role string) ([]models.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []models.User
	for _, u := range d.users {
		if u.HasRole(role) {
			out = append(out, u)
		}
	}
	return out, nil
}

// GetUser returns nil when id is unknown.
func (d *StaticDirectory) GetUser(_ context.Context, id string) (*models.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	i, ok := d.byID[id]
	if !ok {
		return nil, nil
	}
	u := d.users[i]
	return &u, nil
}

type directoryFile struct {
	Users []models.User `yaml:"users"`
}

// LoadFile reads a YAML file of the form `users: [{id, name, email, roles}]`.
func LoadFile(path string) (*StaticDirectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory file: %w", err)
	}

	var f directoryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse directory file %s: %w", path, err)
	}
	for i, u := range f.Users {
		if u.ID == "" {
			return nil, fmt.Errorf("directory file %s: user %d has no id", path, i)
		}
	}
	return NewStaticDirectory(f.Users...), nil
}
