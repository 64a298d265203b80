// Package featureflags switches optional behavior of the API from the
// FEATURE_FLAGS setting, e.g. "explore_reels=off,chat_pubsub=25%".
package featureflags

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
)

// Known flags.
const (
	// ExploreReels adds the reels half of GET /api/explore.
	ExploreReels = "explore_reels"
	// ChatPubSub fans chat messages out through Redis instead of the local hub only.
	ChatPubSub = "chat_pubsub"
)

// Flag describes one switch.
type Flag struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Default     string `json:"default"`
}

// Registry lists every flag the service reads. Settings for other names are
// dropped and reported by Unknown.
var Registry = []Flag{
	{Name: ExploreReels, Description: "Include top reels next to posts on the explore page.", Default: "on"},
	{Name: ChatPubSub, Description: "Relay chat messages through Redis so every API instance can deliver them.", Default: "on"},
}

// State is a flag with its configured value and the result for one user.
type State struct {
	Flag
	Value   string `json:"value"`
	Enabled bool   `json:"enabled"`
}

// rule is a parsed value: pct is 100 for on, 0 for off, anything between for
// a per-user rollout.
type rule struct {
	value string
	pct   int
}

func parseRule(value string) (rule, bool) {
	switch value {
	case "on", "true", "1":
		return rule{value: value, pct: 100}, true
	case "off", "false", "0":
		return rule{value: value, pct: 0}, true
	}
	if !strings.HasSuffix(value, "%") {
		return rule{}, false
	}
	pct, err := strconv.Atoi(strings.TrimSuffix(value, "%"))
	if err != nil {
		return rule{}, false
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return rule{value: value, pct: pct}, true
}

// Manager evaluates the registered flags.
type Manager struct {
	rules   map[string]rule
	unknown []string
}

// NewManager layers raw over the registry defaults. Malformed pairs and
// unparseable values are ignored, unregistered names are kept for Unknown.
func NewManager(raw string) *Manager {
	m := &Manager{rules: make(map[string]rule, len(Registry))}
	for _, f := range Registry {
		r, _ := parseRule(f.Default)
		m.rules[f.Name] = r
	}

	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key, value = normalize(key), normalize(value)
		if key == "" || value == "" {
			continue
		}
		if _, known := m.rules[key]; !known {
			m.unknown = append(m.unknown, key)
			continue
		}
		if r, ok := parseRule(value); ok {
			m.rules[key] = r
		}
	}
	return m
}

// Unknown returns names set in FEATURE_FLAGS that no code reads.
func (m *Manager) Unknown() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.unknown...)
}

// Enabled reports whether name is on for userID. Partial rollouts bucket
// users deterministically and never include the anonymous user 0.
func (m *Manager) Enabled(name string, userID uint) bool {
	if m == nil {
		return false
	}
	r, ok := m.rules[normalize(name)]
	if !ok {
		return false
	}
	switch {
	case r.pct >= 100:
		return true
	case r.pct <= 0, userID == 0:
		return false
	}
	return rolloutBucket(name, userID) < r.pct
}

// Raw returns the configured value of every flag.
func (m *Manager) Raw() map[string]string {
	out := make(map[string]string, len(m.rules))
	for k, r := range m.rules {
		out[k] = r.value
	}
	return out
}

// Snapshot returns evaluated flag status for one user.
func (m *Manager) Snapshot(userID uint) map[string]bool {
	out := make(map[string]bool, len(m.rules))
	for name := range m.rules {
		out[name] = m.Enabled(name, userID)
	}
	return out
}

// Describe lists the registry with values and results for userID, by name.
func (m *Manager) Describe(userID uint) []State {
	out := make([]State, 0, len(Registry))
	for _, f := range Registry {
		out = append(out, State{Flag: f, Value: m.rules[f.Name].value, Enabled: m.Enabled(f.Name, userID)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func rolloutBucket(name string, userID uint) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(fmt.Sprintf("%s:%d", normalize(name), userID)))
	return int(h.Sum32() % 100)
}
