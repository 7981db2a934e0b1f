package users

import (
	"crypto/subtle"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/permitflow/go-services/internal/models"
)

// LocalUser is an operator-provisioned login for password-mode auth. Meant
// for small deployments and integration environments that run without
// Keycloak.
type LocalUser struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Role     string `yaml:"role"`
}

type localUsersFile struct {
	Users []LocalUser `yaml:"users"`
}

// LocalDirectory answers password-mode logins from a YAML users file.
type LocalDirectory struct {
	users map[string]LocalUser
}

func LoadLocalDirectory(path string) (*LocalDirectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read users file: %w", err)
	}
	return ParseLocalDirectory(data)
}

func ParseLocalDirectory(data []byte) (*LocalDirectory, error) {
	var f localUsersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse users file: %w", err)
	}
	d := &LocalDirectory{users: make(map[string]LocalUser, len(f.Users))}
	for _, u := range f.Users {
		if u.Username == "" || u.Password == "" {
			return nil, fmt.Errorf("users file: entry missing username or password")
		}
		if _, dup := d.users[u.Username]; dup {
			return nil, fmt.Errorf("users file: duplicate username %q", u.Username)
		}
		d.users[u.Username] = u
	}
	return d, nil
}

// Authenticate checks the credentials and returns the matching user model.
// Subjects are prefixed so local accounts never collide with Keycloak subs.
func (d *LocalDirectory) Authenticate(username, password string) (*models.User, bool) {
	u, ok := d.users[username]
	if !ok {
		return nil, false
	}
	if subtle.ConstantTimeCompare([]byte(u.Password), []byte(password)) != 1 {
		return nil, false
	}
	name := u.Name
	if name == "" {
		name = u.Username
	}
	return &models.User{
		Sub:   "local:" + u.Username,
		Email: u.Email,
		Name:  name,
		Role:  u.Role,
	}, true
}

func (d *LocalDirectory) Len() int { return len(d.users) }
