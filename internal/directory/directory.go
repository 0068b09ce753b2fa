package directory

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/iurnickita/kiosk/internal/model"
)

// Users - справочник пользователей киоска.
type Users interface {
	User(id string) (model.User, error)
	Users() map[string]model.User
}

// Catalog - каталог товаров, только чтение.
type Catalog interface {
	Item(id string) (model.Item, error)
	Items() []model.Item
}

var ErrNotFound = errors.New("not found")

type Directory struct {
	users map[string]model.User
	items map[string]model.Item
}

type directoryFile struct {
	Users []model.User `yaml:"users"`
	Items []model.Item `yaml:"items"`
}

func New(users []model.User, items []model.Item) *Directory {
	d := &Directory{
		users: make(map[string]model.User, len(users)),
		items: make(map[string]model.Item, len(items)),
	}
	for _, u := range users {
		if u.DisplayName == "" {
			u.DisplayName = u.Username
		}
		d.users[u.ID] = u
	}
	for _, item := range items {
		d.items[item.ID] = item
	}
	return d
}

// Load читает справочник пользователей и каталог из YAML-файла.
func Load(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file directoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for _, u := range file.Users {
		if u.ID == "" {
			return nil, fmt.Errorf("parse %s: user without id", path)
		}
	}
	for _, item := range file.Items {
		if item.ID == "" {
			return nil, fmt.Errorf("parse %s: item without id", path)
		}
	}
	return New(file.Users, file.Items), nil
}

func (d *Directory) User(id string) (model.User, error) {
	u, ok := d.users[id]
	if !ok {
		return model.User{}, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	return u, nil
}

func (d *Directory) Users() map[string]model.User {
	users := make(map[string]model.User, len(d.users))
	for id, u := range d.users {
		users[id] = u
	}
	return users
}

func (d *Directory) Item(id string) (model.Item, error) {
	item, ok := d.items[id]
	if !ok {
		return model.Item{}, fmt.Errorf("%w: item %s", ErrNotFound, id)
	}
	return item, nil
}

func (d *Directory) Items() []model.Item {
	items := make([]model.Item, 0, len(d.items))
	for _, item := range d.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].ID < items[j].ID
	})
	return items
}
