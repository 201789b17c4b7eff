package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type Role string

const (
	RoleTrainer          Role = "trainer"
	RoleAssistantTrainer Role = "assistant_trainer"
	RolePlayer           Role = "player"
)

// TrainerEquivalent reports whether the role may act for the whole team.
func (r Role) TrainerEquivalent() bool {
	return r == RoleTrainer || r == RoleAssistantTrainer
}

type Membership struct {
	TeamID string `json:"team_id"`
	Role   Role   `json:"role"`
}

// Actor is the acting user as supplied by the membership collaborator.
type Actor struct {
	UserID      string       `json:"user_id"`
	Name        string       `json:"name"`
	Memberships []Membership `json:"memberships"`
	AdminOf     []string     `json:"admin_of,omitempty"`
}

func (a Actor) RoleIn(teamID string) (Role, bool) {
	for _, m := range a.Memberships {
		if m.TeamID == teamID {
			return m.Role, true
		}
	}
	return "", false
}

func (a Actor) IsTrainerOf(teamID string) bool {
	role, ok := a.RoleIn(teamID)
	return ok && role.TrainerEquivalent()
}

func (a Actor) IsAdminOf(clubID string) bool {
	for _, id := range a.AdminOf {
		if id == clubID {
			return true
		}
	}
	return false
}

// LoadActor reads the saved acting user. It returns nil when none is saved.
func LoadActor() (*Actor, error) {
	path, err := ActorPath()
	if err != nil {
		return nil, err
	}
	return loadActorFile(path)
}

func loadActorFile(path string) (*Actor, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("actor path is a directory: %s", path)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var actor Actor
	if err := json.NewDecoder(file).Decode(&actor); err != nil {
		return nil, err
	}
	return &actor, nil
}

func SaveActor(actor *Actor) error {
	if _, err := ensureConfigDir(); err != nil {
		return err
	}
	path, err := ActorPath()
	if err != nil {
		return err
	}
	return saveActorFile(path, actor)
}

func saveActorFile(path string, actor *Actor) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(actor)
}

func ClearActor() error {
	path, err := ActorPath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return nil
}
