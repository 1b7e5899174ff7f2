package workflow

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/workflow-service/internal/domain"
)

type queueFile struct {
	Queues []queueEntry `yaml:"queues"`
}

type queueEntry struct {
	ID           string   `yaml:"id"`
	Code         string   `yaml:"code"`
	Name         string   `yaml:"name"`
	Kind         string   `yaml:"kind"`
	Stage        string   `yaml:"stage"`
	Location     string   `yaml:"location"`
	AllowedRoles []string `yaml:"allowed_roles"`
	SLAHours     int      `yaml:"sla_hours"`
}

// LoadQueueFile reads a queue directory from a YAML file.
func LoadQueueFile(path string, table *TransitionTable) ([]domain.Queue, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read queue file: %w", err)
	}
	return ParseQueues(raw, table)
}

// ParseQueues decodes and validates a YAML queue directory. Every queue must name a
// stage of its kind, and (code, location) and (kind, stage, location) must be unique.
func ParseQueues(raw []byte, table *TransitionTable) ([]domain.Queue, error) {
	var file queueFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode queue file: %w", err)
	}

	codes := map[string]struct{}{}
	routes := map[routeKey]struct{}{}
	queues := make([]domain.Queue, 0, len(file.Queues))
	for i, entry := range file.Queues {
		kind := domain.Kind(strings.ToLower(strings.TrimSpace(entry.Kind)))
		stage := domain.Stage(strings.TrimSpace(entry.Stage))
		code := strings.ToUpper(strings.TrimSpace(entry.Code))
		location := strings.ToUpper(strings.TrimSpace(entry.Location))
		if code == "" || location == "" {
			return nil, fmt.Errorf("queue %d: code and location required", i)
		}
		if !kind.Valid() {
			return nil, fmt.Errorf("queue %s: unknown kind %q", code, entry.Kind)
		}
		if table != nil && (!table.HasStage(kind, stage) || table.IsClosing(kind, stage)) {
			return nil, fmt.Errorf("queue %s: stage %q cannot hold queued %s items", code, stage, kind)
		}
		if entry.SLAHours < 0 {
			return nil, fmt.Errorf("queue %s: sla_hours must not be negative", code)
		}
		codeKey := location + "/" + code
		if _, dup := codes[codeKey]; dup {
			return nil, fmt.Errorf("queue %s: duplicate code at %s", code, location)
		}
		codes[codeKey] = struct{}{}
		rk := routeKey{kind: kind, stage: stage, location: location}
		if _, dup := routes[rk]; dup {
			return nil, fmt.Errorf("queue %s: %s/%s already routed at %s", code, kind, stage, location)
		}
		routes[rk] = struct{}{}

		id := strings.TrimSpace(entry.ID)
		if id == "" {
			id = strings.ToLower(location + "-" + code)
		}
		name := entry.Name
		if name == "" {
			name = code
		}
		queues = append(queues, domain.Queue{
			ID:           id,
			Code:         code,
			Name:         name,
			Kind:         kind,
			Stage:        stage,
			LocationID:   location,
			AllowedRoles: entry.AllowedRoles,
			SLAHours:     entry.SLAHours,
		})
	}
	return queues, nil
}
